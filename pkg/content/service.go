package content

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveContentOptions struct {
	ID   *int
	Site *string
	URL  *string
}

type ListContentsOptions struct {
	IDs           []int
	Statuses      []string
	IncludeImages bool
	Limit         *int
	Offset        *int
}

type SelectStoredIDsOptions struct {
	NonFavouritesOnly bool
	IncludeQueued     bool
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

func (svc *Service) RetrieveContent(ctx context.Context, opts RetrieveContentOptions) (*models.Content, error) {
	c := &models.Content{}

	q := svc.store.
		NewSelect().
		Model(c).
		Relation("Images", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("i.page_order ASC", "i.id ASC")
		}).
		Relation("QueueRecord")

	switch {
	case opts.ID != nil:
		q = q.Where("c.id = ?", *opts.ID)
	case opts.Site != nil && opts.URL != nil:
		q = q.Where("c.site = ? AND c.url = ?", *opts.Site, *opts.URL)
	default:
		return nil, errors.New("either an id or a site and url is required")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Content")
		}
		return nil, errors.WithStack(err)
	}

	if err := LoadAttributes(ctx, svc.store, []*models.Content{c}); err != nil {
		return nil, err
	}

	return c, nil
}

func (svc *Service) ListContents(ctx context.Context, opts ListContentsOptions) ([]*models.Content, error) {
	contents := []*models.Content{}

	q := svc.store.
		NewSelect().
		Model(&contents).
		Order("c.id ASC")

	if opts.IDs != nil {
		if len(opts.IDs) == 0 {
			return contents, nil
		}
		q = q.Where("c.id IN (?)", bun.In(opts.IDs))
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("c.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.IncludeImages {
		q = q.Relation("Images", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("i.page_order ASC", "i.id ASC")
		})
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := LoadAttributes(ctx, svc.store, contents); err != nil {
		return nil, err
	}

	return contents, nil
}

// UpsertContent inserts c, or updates it when a book with its id exists. The
// book's attribute set is replaced by c.Attributes and usage counts are kept
// in step in the same transaction. On update, an empty status, nil dates,
// a nil cover and nil attributes keep their stored values, and moving a book
// into or out of a queue status is rejected.
func (svc *Service) UpsertContent(ctx context.Context, c *models.Content) error {
	c.Site = strings.TrimSpace(c.Site)
	c.URL = strings.TrimSpace(c.URL)
	if c.Site == "" || c.URL == "" {
		return errcodes.ValidationError("Content needs a site and a url.")
	}
	if c.Status != "" && !isOneOf(models.ContentStatuses, c.Status) {
		return errcodes.ValidationError("Unknown content status " + c.Status + ".")
	}

	created := false
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = upsertContent(ctx, tx, c)
		return err
	})
	if err != nil {
		return err
	}

	action := events.ActionUpdated
	if created {
		action = events.ActionCreated
	}
	svc.events.Publish(events.TopicContent, action, c.ID)
	svc.events.Publish(events.TopicAttributes, events.ActionUpdated, c.ID)
	return nil
}

func upsertContent(ctx context.Context, tx bun.IDB, c *models.Content) (bool, error) {
	var owner models.Content
	err := tx.NewSelect().
		Model(&owner).
		Column("c.id").
		Where("c.site = ? AND c.url = ?", c.Site, c.URL).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, errors.WithStack(err)
	}
	if err == nil && owner.ID != c.ID {
		return false, errcodes.Conflict("Content with this site and url already exists.")
	}

	var existing *models.Content
	if c.ID != 0 {
		existing = &models.Content{}
		err := tx.NewSelect().Model(existing).Where("c.id = ?", c.ID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			existing = nil
		} else if err != nil {
			return false, errors.WithStack(err)
		}
	}

	now := time.Now()
	c.UpdatedAt = now
	if existing == nil {
		if c.Status == "" {
			c.Status = models.StatusOnline
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		_, err = tx.NewInsert().Model(c).Returning("*").Exec(ctx)
		if err != nil {
			return false, errors.WithStack(err)
		}
		err = adjustStatusCounts(ctx, tx, map[string]int{c.Status: 1})
		if err != nil {
			return false, err
		}
	} else {
		if c.Status == "" {
			c.Status = existing.Status
		}
		// Queue records and queue statuses change together, only through the
		// queue.
		if c.Status != existing.Status && (models.IsQueueStatus(existing.Status) || models.IsQueueStatus(c.Status)) {
			return false, errcodes.ValidationError("Status can't change from " + existing.Status + " to " + c.Status + " outside the queue.")
		}
		c.CreatedAt = existing.CreatedAt
		c.Completion = existing.Completion
		c.Size = existing.Size
		if c.CoverURL == nil {
			c.CoverURL = existing.CoverURL
		}
		if c.DownloadDate == nil {
			c.DownloadDate = existing.DownloadDate
		}
		if c.LastReadAt == nil {
			c.LastReadAt = existing.LastReadAt
		}
		_, err = tx.NewUpdate().
			Model(c).
			Column("site", "url", "title", "author", "status", "favourite", "cover_url", "download_date", "last_read_at", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return false, errors.WithStack(err)
		}
		if existing.Status != c.Status {
			err = adjustStatusCounts(ctx, tx, map[string]int{existing.Status: -1, c.Status: 1})
			if err != nil {
				return false, err
			}
		}
	}

	if existing != nil && c.Attributes == nil {
		return false, LoadAttributes(ctx, tx, []*models.Content{c})
	}

	attrs, err := replaceAttributes(ctx, tx, c.ID, c.Attributes)
	if err != nil {
		return false, err
	}
	c.Attributes = attrs

	return existing == nil, nil
}

// DeleteContent removes a book together with its images, queue record, error
// records and attribute links.
func (svc *Service) DeleteContent(ctx context.Context, id int) error {
	var deleted []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		deleted, err = DeleteContents(ctx, tx, []int{id})
		return err
	})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return errcodes.NotFound("Content")
	}

	logger.FromContext(ctx).Info("deleted content", logger.Data{"content_id": id})
	svc.events.Publish(events.TopicContent, events.ActionDeleted, id)
	svc.events.Publish(events.TopicAttributes, events.ActionUpdated, id)
	return nil
}

// UpdateContentStatus moves every book in status from to status to.
func (svc *Service) UpdateContentStatus(ctx context.Context, from, to string) (int, error) {
	if !isOneOf(models.ContentStatuses, from) || !isOneOf(models.ContentStatuses, to) {
		return 0, errcodes.ValidationError("Unknown content status.")
	}
	if from == to {
		return 0, nil
	}

	var ids []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		ids = nil
		err := tx.NewSelect().
			Model((*models.Content)(nil)).
			Column("c.id").
			Where("c.status = ?", from).
			Scan(ctx, &ids)
		if err != nil {
			return errors.WithStack(err)
		}
		return TransitionStatus(ctx, tx, ids, to)
	})
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		svc.events.Publish(events.TopicContent, events.ActionUpdated, ids...)
	}
	return len(ids), nil
}

// SelectStoredIDs returns the ids of library books, optionally restricted to
// non-favourites and optionally including queued books, in ascending order.
func (svc *Service) SelectStoredIDs(ctx context.Context, opts SelectStoredIDsOptions) ([]int, error) {
	statuses := append([]string{}, models.LibraryStatuses...)
	if opts.IncludeQueued {
		statuses = append(statuses, models.QueueStatuses...)
	}

	ids := []int{}
	q := svc.store.
		NewSelect().
		Model((*models.Content)(nil)).
		Column("c.id").
		Where("c.status IN (?)", bun.In(statuses)).
		Order("c.id ASC")
	if opts.NonFavouritesOnly {
		q = q.Where("c.favourite = ?", false)
	}

	if err := q.Scan(ctx, &ids); err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func (svc *Service) MarkRead(ctx context.Context, id int) error {
	var n int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Content)(nil)).
			Set("last_read_at = ?", time.Now()).
			Where("id = ?", id).
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
		return errcodes.NotFound("Content")
	}

	svc.events.Publish(events.TopicContent, events.ActionUpdated, id)
	return nil
}

func (svc *Service) CountLibrary(ctx context.Context) (int, error) {
	return countStatuses(ctx, svc.store, models.LibraryStatuses)
}

func (svc *Service) CountQueued(ctx context.Context) (int, error) {
	return countStatuses(ctx, svc.store, models.QueueStatuses)
}

// ContentExists reports whether a book with the id is stored.
func ContentExists(ctx context.Context, db bun.IDB, id int) (bool, error) {
	exists, err := db.NewSelect().
		Model((*models.Content)(nil)).
		Where("c.id = ?", id).
		Exists(ctx)
	return exists, errors.WithStack(err)
}

func isOneOf(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
