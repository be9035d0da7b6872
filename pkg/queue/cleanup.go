package queue

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

// CleanupResult reports a bulk delete. Warnings name surviving books whose
// files could not be verified before their images were reset.
type CleanupResult struct {
	Deleted  []int              `json:"deleted"`
	Reset    []int              `json:"reset"`
	Warnings []errcodes.Warning `json:"warnings"`
}

// DeleteAllLibraryBooks deletes every library book that isn't queued, then
// resets the images of every surviving book to SAVED. It blocks until both
// steps are done.
func (svc *Service) DeleteAllLibraryBooks(ctx context.Context) (*CleanupResult, error) {
	return svc.deleteAndReset(ctx, "library", func(ctx context.Context, tx bun.IDB) ([]int, error) {
		ids := []int{}
		err := tx.NewSelect().
			Model((*models.Content)(nil)).
			Column("c.id").
			Where("c.status IN (?)", bun.In(models.LibraryStatuses)).
			Where("c.id NOT IN (SELECT content_id FROM queue_records)").
			Order("c.id ASC").
			Scan(ctx, &ids)
		return ids, errors.WithStack(err)
	})
}

// DeleteAllQueuedBooks deletes every queued book with its queue record, then
// resets the images of every surviving book to SAVED.
func (svc *Service) DeleteAllQueuedBooks(ctx context.Context) (*CleanupResult, error) {
	return svc.deleteAndReset(ctx, "queue", func(ctx context.Context, tx bun.IDB) ([]int, error) {
		ids := []int{}
		err := tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Column("q.content_id").
			Order("q.content_id ASC").
			Scan(ctx, &ids)
		return ids, errors.WithStack(err)
	})
}

// deleteAndReset runs the delete and the reset as two transactions. If the
// process dies in between, the deleted books stay deleted and running the
// reset again is harmless.
func (svc *Service) deleteAndReset(ctx context.Context, target string, selectIDs func(context.Context, bun.IDB) ([]int, error)) (*CleanupResult, error) {
	log := logger.FromContext(ctx)
	result := &CleanupResult{Deleted: []int{}, Reset: []int{}, Warnings: []errcodes.Warning{}}

	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids, err := selectIDs(ctx, tx)
		if err != nil {
			return err
		}
		deleted, err := content.DeleteContents(ctx, tx, ids)
		if err != nil {
			return err
		}
		result.Deleted = append(result.Deleted[:0], deleted...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("deleted books", logger.Data{"target": target, "count": len(result.Deleted)})
	if len(result.Deleted) > 0 {
		svc.events.Publish(events.TopicContent, events.ActionDeleted, result.Deleted...)
		svc.events.Publish(events.TopicAttributes, events.ActionUpdated)
		svc.refreshLength(ctx)
	}

	reset, warnings, err := svc.ResetImages(ctx)
	if err != nil {
		return nil, err
	}
	result.Reset = reset
	result.Warnings = warnings

	cleanupRuns.WithLabelValues(target).Inc()
	return result, nil
}

// ResetImages forces every image that isn't SAVED back to SAVED. Books with
// downloaded images whose files can't be found get a warning.
func (svc *Service) ResetImages(ctx context.Context) ([]int, []errcodes.Warning, error) {
	ids := []int{}
	warnings := []errcodes.Warning{}
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids = ids[:0]
		warnings = warnings[:0]

		images := []*models.ImageFile{}
		err := tx.NewSelect().
			Model(&images).
			Column("i.id", "i.content_id", "i.status", "i.uri").
			Where("i.status != ?", models.ImageStatusSaved).
			Order("i.content_id ASC", "i.page_order ASC").
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(images) == 0 {
			return nil
		}

		unverified := map[int]int{}
		for _, img := range images {
			if len(ids) == 0 || ids[len(ids)-1] != img.ContentID {
				ids = append(ids, img.ContentID)
			}
			if img.Status == models.ImageStatusDownloaded && !fileExists(img.URI) {
				unverified[img.ContentID]++
			}
		}
		for _, id := range ids {
			if n := unverified[id]; n > 0 {
				warnings = append(warnings, errcodes.PartialIntegrity(id, fmt.Sprintf("%d downloaded images could not be found on disk.", n)))
			}
		}

		_, err = content.SetImageStatus(ctx, tx, ids, nil, models.ImageStatusSaved)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if len(warnings) > 0 {
		cleanupWarnings.Add(float64(len(warnings)))
		logger.FromContext(ctx).Warn("reset images with unverified files", logger.Data{"books": len(warnings)})
	}
	if len(ids) > 0 {
		svc.events.Publish(events.TopicImages, events.ActionReset, ids...)
		svc.events.Publish(events.TopicContent, events.ActionUpdated, ids...)
	}
	return ids, warnings, nil
}

func fileExists(uri *string) bool {
	if uri == nil {
		return false
	}
	path, ok := content.LocalPath(*uri)
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
