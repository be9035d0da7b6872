package errorlog

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type ListErrorsOptions struct {
	ContentID int
	AfterID   *int
	Types     []string
}

type Service struct {
	store  *database.Store
	events events.Publisher
}

func NewService(store *database.Store, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{store: store, events: publisher}
}

// RecordError appends an error record to a book's log.
func (svc *Service) RecordError(ctx context.Context, record *models.ErrorRecord) error {
	if record.Type == "" {
		record.Type = models.ErrorTypeUnknown
	}
	if !isErrorType(record.Type) {
		return errcodes.ValidationError("Unknown error type " + record.Type + ".")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := content.ContentExists(ctx, tx, record.ContentID)
		if err != nil {
			return err
		}
		if !exists {
			return errcodes.NotFound("Content")
		}

		_, err = tx.NewInsert().
			Model(record).
			Returning("*").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	svc.events.Publish(events.TopicErrors, events.ActionCreated, record.ContentID)
	return nil
}

// ListErrors returns a book's error records oldest first.
func (svc *Service) ListErrors(ctx context.Context, opts ListErrorsOptions) ([]*models.ErrorRecord, error) {
	records := []*models.ErrorRecord{}

	q := svc.store.
		NewSelect().
		Model(&records).
		Where("er.content_id = ?", opts.ContentID).
		Order("er.id ASC")

	if opts.AfterID != nil {
		q = q.Where("er.id > ?", *opts.AfterID)
	}
	if len(opts.Types) > 0 {
		q = q.Where("er.type IN (?)", bun.In(opts.Types))
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return records, nil
}

// Clear removes every error record of a book.
func (svc *Service) Clear(ctx context.Context, contentID int) (int, error) {
	var n int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.ErrorRecord)(nil)).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, err = res.RowsAffected()
		return errors.WithStack(err)
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		svc.events.Publish(events.TopicErrors, events.ActionDeleted, contentID)
	}
	return int(n), nil
}

// CountErrors returns the number of error records per book for the given ids.
func (svc *Service) CountErrors(ctx context.Context, contentIDs []int) (map[int]int, error) {
	counts := map[int]int{}
	if len(contentIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ContentID int `bun:"content_id"`
		Total     int `bun:"total"`
	}
	err := svc.store.NewSelect().
		Model((*models.ErrorRecord)(nil)).
		ColumnExpr("er.content_id AS content_id, COUNT(*) AS total").
		Where("er.content_id IN (?)", bun.In(contentIDs)).
		Group("er.content_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, r := range rows {
		counts[r.ContentID] = r.Total
	}
	return counts, nil
}

func isErrorType(t string) bool {
	for _, v := range models.ErrorTypes {
		if v == strings.ToLower(t) {
			return true
		}
	}
	return false
}
