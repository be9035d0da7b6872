package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type EnqueueOptions struct {
	// TargetImageStatus, when set, is applied to every image of the book.
	TargetImageStatus *string
}

// Entry is a queued book at its position in the queue.
type Entry struct {
	Position   int             `json:"position"`
	Rank       int             `json:"rank"`
	RetryCount int             `json:"retry_count"`
	Content    *models.Content `json:"content"`
}

type ReconcileResult struct {
	Paused   []int `json:"paused"`
	Orphaned []int `json:"orphaned"`
	Stale    []int `json:"stale"`
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

// Enqueue appends a book to the end of the queue and marks it DOWNLOADING.
func (svc *Service) Enqueue(ctx context.Context, contentID int, opts EnqueueOptions) (*models.QueueRecord, error) {
	if opts.TargetImageStatus != nil && !isOneOf(models.ImageStatuses, *opts.TargetImageStatus) {
		return nil, errcodes.ValidationError("Unknown image status " + *opts.TargetImageStatus + ".")
	}

	record := &models.QueueRecord{ContentID: contentID}
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := content.ContentExists(ctx, tx, contentID)
		if err != nil {
			return err
		}
		if !exists {
			return errcodes.NotFound("Content")
		}

		queued, err := tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Where("q.content_id = ?", contentID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if queued {
			return errcodes.Conflict("Content is already queued.")
		}

		if opts.TargetImageStatus != nil {
			if _, err := content.SetImageStatus(ctx, tx, []int{contentID}, nil, *opts.TargetImageStatus); err != nil {
				return err
			}
		}
		if err := content.TransitionStatus(ctx, tx, []int{contentID}, models.StatusDownloading); err != nil {
			return err
		}

		rank, err := nextRank(ctx, tx)
		if err != nil {
			return err
		}
		record.Rank = rank
		record.CreatedAt = time.Now()
		_, err = tx.NewInsert().Model(record).Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	queueOperations.WithLabelValues("enqueue").Inc()
	svc.refreshLength(ctx)
	svc.events.Publish(events.TopicQueue, events.ActionCreated, contentID)
	svc.events.Publish(events.TopicContent, events.ActionUpdated, contentID)
	return record, nil
}

func nextRank(ctx context.Context, tx bun.IDB) (int, error) {
	var max sql.NullInt64
	err := tx.NewSelect().
		Model((*models.QueueRecord)(nil)).
		ColumnExpr("MAX(q.rank)").
		Scan(ctx, &max)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(max.Int64) + 1, nil
}

// Pause moves every DOWNLOADING queued book to PAUSED. Ranks don't change.
func (svc *Service) Pause(ctx context.Context) (int, error) {
	return svc.switchQueued(ctx, "pause", models.StatusDownloading, models.StatusPaused)
}

// Resume moves every PAUSED queued book back to DOWNLOADING.
func (svc *Service) Resume(ctx context.Context) (int, error) {
	return svc.switchQueued(ctx, "resume", models.StatusPaused, models.StatusDownloading)
}

func (svc *Service) switchQueued(ctx context.Context, op, from, to string) (int, error) {
	var ids []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids = nil
		err := tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Column("q.content_id").
			Join("JOIN contents AS c ON c.id = q.content_id").
			Where("c.status = ?", from).
			Scan(ctx, &ids)
		if err != nil {
			return errors.WithStack(err)
		}
		return content.TransitionStatus(ctx, tx, ids, to)
	})
	if err != nil {
		return 0, err
	}

	queueOperations.WithLabelValues(op).Inc()
	if len(ids) > 0 {
		svc.events.Publish(events.TopicQueue, events.ActionUpdated, ids...)
		svc.events.Publish(events.TopicContent, events.ActionUpdated, ids...)
	}
	return len(ids), nil
}

// Cancel takes a book out of the queue. Its status is left for the caller to
// deal with.
func (svc *Service) Cancel(ctx context.Context, contentID int) error {
	var n int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.QueueRecord)(nil)).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, err = res.RowsAffected()
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return errcodes.NotFound("Queue record")
	}

	queueOperations.WithLabelValues("cancel").Inc()
	svc.refreshLength(ctx)
	svc.events.Publish(events.TopicQueue, events.ActionDeleted, contentID)
	return nil
}

// CancelAll empties the queue and returns the ids of the books that were in
// it.
func (svc *Service) CancelAll(ctx context.Context) ([]int, error) {
	ids := []int{}
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids = ids[:0]
		err := tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Column("q.content_id").
			Order("q.rank ASC").
			Scan(ctx, &ids)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.QueueRecord)(nil)).
			Where("1 = 1").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	queueOperations.WithLabelValues("cancel_all").Inc()
	svc.refreshLength(ctx)
	if len(ids) > 0 {
		svc.events.Publish(events.TopicQueue, events.ActionReset, ids...)
	}
	return ids, nil
}

// DeleteAt removes the record at the given 0-based position.
func (svc *Service) DeleteAt(ctx context.Context, position int) (int, error) {
	if position < 0 {
		return 0, errcodes.ValidationError("Position must be 0 or greater.")
	}

	var contentID int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		record := &models.QueueRecord{}
		err := tx.NewSelect().
			Model(record).
			Order("q.rank ASC").
			Offset(position).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Queue record")
		}
		if err != nil {
			return errors.WithStack(err)
		}
		contentID = record.ContentID

		_, err = tx.NewDelete().
			Model((*models.QueueRecord)(nil)).
			Where("content_id = ?", contentID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return 0, err
	}

	queueOperations.WithLabelValues("delete").Inc()
	svc.refreshLength(ctx)
	svc.events.Publish(events.TopicQueue, events.ActionDeleted, contentID)
	return contentID, nil
}

// Move puts the record at position from at position to. The records in
// between shift by one and the set of ranks in use stays the same.
func (svc *Service) Move(ctx context.Context, from, to int) error {
	if from < 0 || to < 0 {
		return errcodes.ValidationError("Positions must be 0 or greater.")
	}

	var moved []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		records, err := orderedRecords(ctx, tx)
		if err != nil {
			return err
		}
		if from >= len(records) || to >= len(records) {
			return errcodes.NotFound("Queue record")
		}
		if from == to {
			return nil
		}

		ranks := make([]int, len(records))
		for i, r := range records {
			ranks[i] = r.Rank
		}

		record := records[from]
		reordered := append(records[:from:from], records[from+1:]...)
		reordered = append(reordered[:to], append([]*models.QueueRecord{record}, reordered[to:]...)...)

		lo, hi := from, to
		if lo > hi {
			lo, hi = hi, lo
		}
		moved, err = assignRanks(ctx, tx, reordered[lo:hi+1], ranks[lo:hi+1])
		return err
	})
	if err != nil {
		return err
	}

	if len(moved) > 0 {
		queueOperations.WithLabelValues("move").Inc()
		svc.events.Publish(events.TopicQueue, events.ActionUpdated, moved...)
	}
	return nil
}

// Invert reverses the queue order.
func (svc *Service) Invert(ctx context.Context) error {
	var moved []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		records, err := orderedRecords(ctx, tx)
		if err != nil {
			return err
		}
		ranks := make([]int, len(records))
		reversed := make([]*models.QueueRecord, len(records))
		for i, r := range records {
			ranks[i] = r.Rank
			reversed[len(records)-1-i] = r
		}
		moved, err = assignRanks(ctx, tx, reversed, ranks)
		return err
	})
	if err != nil {
		return err
	}

	if len(moved) > 0 {
		queueOperations.WithLabelValues("invert").Inc()
		svc.events.Publish(events.TopicQueue, events.ActionUpdated, moved...)
	}
	return nil
}

func orderedRecords(ctx context.Context, tx bun.IDB) ([]*models.QueueRecord, error) {
	records := []*models.QueueRecord{}
	err := tx.NewSelect().
		Model(&records).
		Order("q.rank ASC").
		Scan(ctx)
	return records, errors.WithStack(err)
}

// assignRanks gives records[i] ranks[i]. Changed records are parked on
// negative ranks first so the unique rank index never sees a duplicate.
func assignRanks(ctx context.Context, tx bun.IDB, records []*models.QueueRecord, ranks []int) ([]int, error) {
	var changed []int
	for i, r := range records {
		if r.Rank != ranks[i] {
			changed = append(changed, r.ContentID)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	_, err := tx.NewUpdate().
		Model((*models.QueueRecord)(nil)).
		Set("rank = -rank").
		Where("content_id IN (?)", bun.In(changed)).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for i, r := range records {
		if r.Rank == ranks[i] {
			continue
		}
		_, err := tx.NewUpdate().
			Model((*models.QueueRecord)(nil)).
			Set("rank = ?", ranks[i]).
			Where("content_id = ?", r.ContentID).
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		r.Rank = ranks[i]
	}
	return changed, nil
}

// List returns the queue in download order.
func (svc *Service) List(ctx context.Context) ([]*Entry, error) {
	entries := []*Entry{}
	err := svc.store.Read(ctx, func(ctx context.Context, tx bun.Tx) error {
		records := []*models.QueueRecord{}
		err := tx.NewSelect().
			Model(&records).
			Relation("Content").
			Order("q.rank ASC").
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		contents := make([]*models.Content, 0, len(records))
		for i, r := range records {
			entries = append(entries, &Entry{
				Position:   i,
				Rank:       r.Rank,
				RetryCount: r.RetryCount,
				Content:    r.Content,
			})
			if r.Content != nil {
				contents = append(contents, r.Content)
			}
		}
		return content.LoadAttributes(ctx, tx, contents)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Active returns the head of the queue while it is downloading, or nil when
// the queue is empty or paused.
func (svc *Service) Active(ctx context.Context) (*Entry, error) {
	record := &models.QueueRecord{}
	err := svc.store.NewSelect().
		Model(record).
		Relation("Content").
		Order("q.rank ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if record.Content == nil || record.Content.Status != models.StatusDownloading {
		return nil, nil
	}
	return &Entry{
		Position:   0,
		Rank:       record.Rank,
		RetryCount: record.RetryCount,
		Content:    record.Content,
	}, nil
}

// SetRetryCount stores the downloader's retry counter for a queued book.
func (svc *Service) SetRetryCount(ctx context.Context, contentID, n int) error {
	if n < 0 {
		return errcodes.ValidationError("Retry count must be 0 or greater.")
	}

	var affected int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.QueueRecord)(nil)).
			Set("retry_count = ?", n).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		affected, err = res.RowsAffected()
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errcodes.NotFound("Queue record")
	}

	svc.events.Publish(events.TopicQueue, events.ActionUpdated, contentID)
	return nil
}

// Complete takes a downloaded book out of the queue. It ends up SAVED, or
// ERROR when any of its images failed, and its download date is stamped.
func (svc *Service) Complete(ctx context.Context, contentID int) (string, error) {
	var status string
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.QueueRecord)(nil)).
			Where("content_id = ?", contentID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("Queue record")
		}

		failed, err := tx.NewSelect().
			Model((*models.ImageFile)(nil)).
			Where("i.content_id = ?", contentID).
			Where("i.status = ?", models.ImageStatusError).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		status = models.StatusSaved
		if failed {
			status = models.StatusError
		}

		if err := content.TransitionStatus(ctx, tx, []int{contentID}, status); err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.Content)(nil)).
			Set("download_date = ?", time.Now()).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", contentID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return "", err
	}

	logger.FromContext(ctx).Info("download complete", logger.Data{"content_id": contentID, "status": status})
	queueOperations.WithLabelValues("complete").Inc()
	svc.refreshLength(ctx)
	svc.events.Publish(events.TopicQueue, events.ActionDeleted, contentID)
	svc.events.Publish(events.TopicContent, events.ActionUpdated, contentID)
	return status, nil
}

// Reconcile repairs the queue after a restart. Queued books that were
// downloading are paused. Books left DOWNLOADING or PAUSED without a queue
// record can't be trusted any more: their images go back to SAVED and the
// book to ERROR so it can be queued again. Records of books that are no
// longer in a queue status are dropped. Running it twice changes nothing the
// second time.
func (svc *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		*result = ReconcileResult{Paused: []int{}, Orphaned: []int{}, Stale: []int{}}

		err := tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Column("q.content_id").
			Join("JOIN contents AS c ON c.id = q.content_id").
			Where("c.status NOT IN (?)", bun.In(models.QueueStatuses)).
			Scan(ctx, &result.Stale)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(result.Stale) > 0 {
			_, err = tx.NewDelete().
				Model((*models.QueueRecord)(nil)).
				Where("content_id IN (?)", bun.In(result.Stale)).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		err = tx.NewSelect().
			Model((*models.QueueRecord)(nil)).
			Column("q.content_id").
			Join("JOIN contents AS c ON c.id = q.content_id").
			Where("c.status = ?", models.StatusDownloading).
			Scan(ctx, &result.Paused)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := content.TransitionStatus(ctx, tx, result.Paused, models.StatusPaused); err != nil {
			return err
		}

		err = tx.NewSelect().
			Model((*models.Content)(nil)).
			Column("c.id").
			Where("c.status IN (?)", bun.In(models.QueueStatuses)).
			Where("c.id NOT IN (SELECT content_id FROM queue_records)").
			Order("c.id ASC").
			Scan(ctx, &result.Orphaned)
		if err != nil {
			return errors.WithStack(err)
		}
		if _, err := content.SetImageStatus(ctx, tx, result.Orphaned, nil, models.ImageStatusSaved); err != nil {
			return err
		}
		return content.TransitionStatus(ctx, tx, result.Orphaned, models.StatusError)
	})
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	if len(result.Paused)+len(result.Orphaned)+len(result.Stale) > 0 {
		log.Info("reconciled queue", logger.Data{
			"paused":   len(result.Paused),
			"orphaned": len(result.Orphaned),
			"stale":    len(result.Stale),
		})
		svc.events.Publish(events.TopicQueue, events.ActionReset)
		svc.events.Publish(events.TopicContent, events.ActionUpdated, append(result.Paused, result.Orphaned...)...)
	}
	svc.refreshLength(ctx)
	return result, nil
}

// Length returns the number of queued books.
func (svc *Service) Length(ctx context.Context) (int, error) {
	n, err := svc.store.NewSelect().Model((*models.QueueRecord)(nil)).Count(ctx)
	return n, errors.WithStack(err)
}

func (svc *Service) refreshLength(ctx context.Context) {
	n, err := svc.Length(ctx)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("couldn't read queue length")
		return
	}
	queueLength.Set(float64(n))
}

func isOneOf(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
