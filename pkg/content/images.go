package content

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type ListImageFilesOptions struct {
	ContentID      int
	DownloadedOnly bool
}

type UpdateImageFileOptions struct {
	Columns []string
}

var updatableImageColumns = map[string]bool{
	"status":    true,
	"uri":       true,
	"mime_type": true,
	"size":      true,
	"url":       true,
}

// ReplaceImages swaps the whole image set of a book in one transaction.
func (svc *Service) ReplaceImages(ctx context.Context, contentID int, images []*models.ImageFile) error {
	now := time.Now()
	for _, img := range images {
		if err := prepareImage(ctx, img, contentID, now); err != nil {
			return err
		}
	}

	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := ContentExists(ctx, tx, contentID)
		if err != nil {
			return err
		}
		if !exists {
			return errcodes.NotFound("Content")
		}

		_, err = tx.NewDelete().
			Model((*models.ImageFile)(nil)).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if len(images) > 0 {
			_, err = tx.NewInsert().Model(&images).Returning("*").Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return RecomputeProgress(ctx, tx, []int{contentID})
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicImages, events.ActionReset, contentID)
	return nil
}

func (svc *Service) InsertImageFile(ctx context.Context, img *models.ImageFile) error {
	if err := prepareImage(ctx, img, img.ContentID, time.Now()); err != nil {
		return err
	}

	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := ContentExists(ctx, tx, img.ContentID)
		if err != nil {
			return err
		}
		if !exists {
			return errcodes.NotFound("Content")
		}

		_, err = tx.NewInsert().Model(img).Returning("*").Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		return RecomputeProgress(ctx, tx, []int{img.ContentID})
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicImages, events.ActionCreated, img.ContentID)
	return nil
}

func (svc *Service) RetrieveImageFile(ctx context.Context, id int) (*models.ImageFile, error) {
	img := &models.ImageFile{}
	err := svc.store.NewSelect().Model(img).Where("i.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Image")
		}
		return nil, errors.WithStack(err)
	}
	return img, nil
}

func (svc *Service) ListImageFiles(ctx context.Context, opts ListImageFilesOptions) ([]*models.ImageFile, error) {
	images := []*models.ImageFile{}
	q := svc.store.
		NewSelect().
		Model(&images).
		Where("i.content_id = ?", opts.ContentID).
		Order("i.page_order ASC", "i.id ASC")
	if opts.DownloadedOnly {
		q = q.Where("i.status = ?", models.ImageStatusDownloaded)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return images, nil
}

// UpdateImageFile writes the given columns of img. Completion of the owning
// book is recomputed in the same transaction.
func (svc *Service) UpdateImageFile(ctx context.Context, img *models.ImageFile, opts UpdateImageFileOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}
	for _, col := range opts.Columns {
		if !updatableImageColumns[col] {
			return errcodes.ValidationError("Image column " + col + " can't be updated.")
		}
	}
	for _, col := range opts.Columns {
		if col == "status" && !isOneOf(models.ImageStatuses, img.Status) {
			return errcodes.ValidationError("Unknown image status \"" + img.Status + "\".")
		}
	}
	if img.MimeType == nil && img.URI != nil {
		if mime, ok := detectMimeType(ctx, *img.URI); ok {
			img.MimeType = &mime
			opts.Columns = append(opts.Columns, "mime_type")
		}
	}

	img.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		var contentID int
		err := tx.NewSelect().
			Model((*models.ImageFile)(nil)).
			Column("i.content_id").
			Where("i.id = ?", img.ID).
			Scan(ctx, &contentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Image")
			}
			return errors.WithStack(err)
		}
		img.ContentID = contentID

		_, err = tx.NewUpdate().
			Model(img).
			Column(columns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		return RecomputeProgress(ctx, tx, []int{contentID})
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicImages, events.ActionUpdated, img.ContentID)
	return nil
}

func (svc *Service) DeleteImageFile(ctx context.Context, id int) error {
	var contentID int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		img := &models.ImageFile{}
		err := tx.NewSelect().Model(img).Where("i.id = ?", id).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Image")
			}
			return errors.WithStack(err)
		}
		contentID = img.ContentID

		_, err = tx.NewDelete().Model(img).WherePK().Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		return RecomputeProgress(ctx, tx, []int{contentID})
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicImages, events.ActionDeleted, contentID)
	return nil
}

// UpdateImageStatusBulk moves the images of a book to status to. When from is
// nil every image is moved, otherwise only those in status from.
func (svc *Service) UpdateImageStatusBulk(ctx context.Context, contentID int, from *string, to string) (int, error) {
	if !isOneOf(models.ImageStatuses, to) || (from != nil && !isOneOf(models.ImageStatuses, *from)) {
		return 0, errcodes.ValidationError("Unknown image status.")
	}

	var n int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		n, err = SetImageStatus(ctx, tx, []int{contentID}, from, to)
		return err
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		svc.events.Publish(events.TopicImages, events.ActionUpdated, contentID)
	}
	return n, nil
}

// CountProcessedImages returns the number of images of a book per status.
// Every image status is present in the result.
func (svc *Service) CountProcessedImages(ctx context.Context, contentID int) (map[string]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Total  int    `bun:"total"`
	}
	err := svc.store.NewSelect().
		Model((*models.ImageFile)(nil)).
		ColumnExpr("i.status AS status, COUNT(*) AS total").
		Where("i.content_id = ?", contentID).
		Group("i.status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	counts := make(map[string]int, len(models.ImageStatuses))
	for _, s := range models.ImageStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// SetCover marks the image at pageOrder as the book's cover.
func (svc *Service) SetCover(ctx context.Context, contentID, pageOrder int) error {
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		cover := &models.ImageFile{}
		err := tx.NewSelect().
			Model(cover).
			Where("i.content_id = ? AND i.page_order = ?", contentID, pageOrder).
			Order("i.id ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Image")
			}
			return errors.WithStack(err)
		}

		_, err = tx.NewUpdate().
			Model((*models.ImageFile)(nil)).
			Set("is_cover = (id = ?)", cover.ID).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewUpdate().
			Model((*models.Content)(nil)).
			Set("cover_url = ?", cover.URL).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", contentID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicContent, events.ActionUpdated, contentID)
	return nil
}

// SetImageStatus moves images of the given books to status to, optionally
// only those currently in status from, and recomputes the books' progress.
func SetImageStatus(ctx context.Context, tx bun.IDB, contentIDs []int, from *string, to string) (int, error) {
	if len(contentIDs) == 0 {
		return 0, nil
	}

	q := tx.NewUpdate().
		Model((*models.ImageFile)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("content_id IN (?)", bun.In(contentIDs)).
		Where("status != ?", to)
	if from != nil {
		q = q.Where("status = ?", *from)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}

	if err := RecomputeProgress(ctx, tx, contentIDs); err != nil {
		return 0, err
	}
	return int(n), nil
}

// RecomputeProgress sets completion to processed images * 100 / total images
// and size to the summed image sizes.
func RecomputeProgress(ctx context.Context, tx bun.IDB, contentIDs []int) error {
	if len(contentIDs) == 0 {
		return nil
	}
	_, err := tx.NewRaw(`
		UPDATE contents
		SET completion = COALESCE((
				SELECT SUM(CASE WHEN i.status IN (?) THEN 1 ELSE 0 END) * 100 / COUNT(*)
				FROM image_files AS i WHERE i.content_id = contents.id
			), 0),
			size = COALESCE((SELECT SUM(i.size) FROM image_files AS i WHERE i.content_id = contents.id), 0)
		WHERE id IN (?)
	`, bun.In(models.ProcessedImageStatuses), bun.In(contentIDs)).Exec(ctx)
	return errors.WithStack(err)
}

func prepareImage(ctx context.Context, img *models.ImageFile, contentID int, now time.Time) error {
	if img == nil {
		return errcodes.ValidationError("Image can't be empty.")
	}
	img.ID = 0
	img.ContentID = contentID
	if img.Status == "" {
		img.Status = models.ImageStatusSaved
	}
	if !isOneOf(models.ImageStatuses, img.Status) {
		return errcodes.ValidationError("Unknown image status " + img.Status + ".")
	}
	img.CreatedAt = now
	img.UpdatedAt = now
	if img.MimeType == nil && img.URI != nil {
		if mime, ok := detectMimeType(ctx, *img.URI); ok {
			img.MimeType = &mime
		}
	}
	return nil
}

// LocalPath turns a file URI or absolute path into a filesystem path.
func LocalPath(uri string) (string, bool) {
	path := strings.TrimPrefix(uri, "file://")
	if !strings.HasPrefix(path, "/") {
		return "", false
	}
	return path, true
}

func detectMimeType(ctx context.Context, uri string) (string, bool) {
	path, ok := LocalPath(uri)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to detect mime type", logger.Data{"path": path, "error": err.Error()})
		return "", false
	}
	return mt.String(), true
}
