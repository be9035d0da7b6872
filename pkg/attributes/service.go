package attributes

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/shishobooks/stacks/pkg/search"
	"github.com/uptrace/bun"
)

const (
	SortByName  = "name"
	SortByCount = "count"
)

// FacetOptions narrows facets to the books matching the current search.
type FacetOptions struct {
	Text           string
	Selected       []search.AttributeFilter
	FavouritesOnly bool
}

type MasterDataOptions struct {
	Types []string
	// Text filters attribute names.
	Text           string
	Selected       []search.AttributeFilter
	FavouritesOnly bool
	// Page counts from 1.
	Page     int
	PageSize int
	Sort     string
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

func (opts FacetOptions) filter() search.Filter {
	return search.Filter{
		Mode:           search.ModeModular,
		Text:           opts.Text,
		Attributes:     opts.Selected,
		FavouritesOnly: opts.FavouritesOnly,
	}
}

// matchingContent selects the ids of the library books matching f.
func matchingContent(db bun.IDB, f search.Filter) *bun.SelectQuery {
	return f.Apply(db.NewSelect().
		Model((*models.Content)(nil)).
		ColumnExpr("c.id"))
}

// CountAttributesPerType counts, for every attribute type, the distinct
// attributes carried by at least one matching book. The source count is the
// number of distinct sites among those books.
func (svc *Service) CountAttributesPerType(ctx context.Context, opts FacetOptions) (map[string]int, error) {
	counts := make(map[string]int, len(models.AttributeTypes))
	for _, t := range models.AttributeTypes {
		counts[t] = 0
	}

	// Both counts come from one snapshot.
	err := svc.store.Read(ctx, func(ctx context.Context, tx bun.Tx) error {
		var rows []struct {
			Type  string `bun:"type"`
			Total int    `bun:"total"`
		}
		err := tx.NewSelect().
			TableExpr("attributes AS a").
			ColumnExpr("a.type").
			ColumnExpr("COUNT(DISTINCT a.id) AS total").
			Join("JOIN content_attributes AS ca ON ca.attribute_id = a.id").
			Where("ca.content_id IN (?)", matchingContent(tx, opts.filter())).
			Group("a.type").
			Scan(ctx, &rows)
		if err != nil {
			return errors.WithStack(err)
		}
		for _, r := range rows {
			counts[r.Type] = r.Total
		}

		sources, err := availableSources(ctx, tx, opts)
		if err != nil {
			return err
		}
		counts[models.AttributeTypeSource] = len(sources)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return counts, nil
}

// AvailableSources lists the sites of the matching books as source
// attributes. Matches holds the number of matching books per site.
func (svc *Service) AvailableSources(ctx context.Context, opts FacetOptions) ([]*models.Attribute, error) {
	return availableSources(ctx, svc.store.DB, opts)
}

func availableSources(ctx context.Context, db bun.IDB, opts FacetOptions) ([]*models.Attribute, error) {
	var rows []struct {
		Site  string `bun:"site"`
		Total int    `bun:"total"`
	}
	q := db.NewSelect().
		Model((*models.Content)(nil)).
		ColumnExpr("c.site").
		ColumnExpr("COUNT(*) AS total")
	err := opts.filter().Apply(q).
		Group("c.site").
		OrderExpr("c.site COLLATE NOCASE ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sources := make([]*models.Attribute, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, &models.Attribute{
			Type:    models.AttributeTypeSource,
			Name:    r.Site,
			Count:   r.Total,
			Matches: r.Total,
		})
	}
	return sources, nil
}

// MasterDataPaged lists the attributes of the requested types that occur in
// the matching books. A request for sources alone returns every source
// unpaged. Otherwise each type is paged on its own and the pages are
// concatenated, so ordering only holds within a type; the total is the sum
// of the per-type totals.
func (svc *Service) MasterDataPaged(ctx context.Context, opts MasterDataOptions) ([]*models.Attribute, int, error) {
	if len(opts.Types) == 0 {
		return nil, 0, errcodes.ValidationError("At least one attribute type is required.")
	}
	for _, t := range opts.Types {
		if !models.IsAttributeType(t) {
			return nil, 0, errcodes.ValidationError("Unknown attribute type " + t + ".")
		}
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		return nil, 0, errcodes.ValidationError("Page size must be greater than 0.")
	}

	facet := FacetOptions{Selected: opts.Selected, FavouritesOnly: opts.FavouritesOnly}
	text := search.NormalizeText(opts.Text)

	if len(opts.Types) == 1 && opts.Types[0] == models.AttributeTypeSource {
		sources, err := svc.sources(ctx, facet, text, opts.Sort)
		if err != nil {
			return nil, 0, err
		}
		return sources, len(sources), nil
	}

	result := []*models.Attribute{}
	total := 0
	for _, t := range opts.Types {
		var (
			attrs []*models.Attribute
			n     int
			err   error
		)
		if t == models.AttributeTypeSource {
			attrs, err = svc.sources(ctx, facet, text, opts.Sort)
			n = len(attrs)
			attrs = pageOf(attrs, opts.Page, opts.PageSize)
		} else {
			attrs, n, err = svc.pageType(ctx, t, facet, text, opts)
		}
		if err != nil {
			return nil, 0, err
		}
		result = append(result, attrs...)
		total += n
	}
	return result, total, nil
}

func (svc *Service) pageType(ctx context.Context, attrType string, facet FacetOptions, text string, opts MasterDataOptions) ([]*models.Attribute, int, error) {
	attrs := []*models.Attribute{}
	q := svc.store.NewSelect().
		Model(&attrs).
		ColumnExpr("a.*").
		ColumnExpr("COUNT(DISTINCT ca.content_id) AS matches").
		Join("JOIN content_attributes AS ca ON ca.attribute_id = a.id").
		Where("a.type = ?", attrType).
		Where("ca.content_id IN (?)", matchingContent(svc.store.DB, facet.filter())).
		Group("a.id")
	if text != "" {
		q = q.Where("LOWER(a.name) LIKE ? ESCAPE '!'", search.ContainsPattern(text))
	}
	if opts.Sort == SortByCount {
		q = q.OrderExpr("matches DESC")
	}
	q = q.OrderExpr("a.name COLLATE NOCASE ASC").
		Limit(opts.PageSize).
		Offset((opts.Page - 1) * opts.PageSize)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return attrs, total, nil
}

func (svc *Service) sources(ctx context.Context, facet FacetOptions, text, sortBy string) ([]*models.Attribute, error) {
	sources, err := svc.AvailableSources(ctx, facet)
	if err != nil {
		return nil, err
	}
	if text != "" {
		filtered := sources[:0]
		for _, s := range sources {
			if strings.Contains(strings.ToLower(s.Name), text) {
				filtered = append(filtered, s)
			}
		}
		sources = filtered
	}
	if sortBy == SortByCount {
		sort.SliceStable(sources, func(i, j int) bool {
			return sources[i].Matches > sources[j].Matches
		})
	}
	return sources, nil
}

func pageOf(attrs []*models.Attribute, page, pageSize int) []*models.Attribute {
	start := (page - 1) * pageSize
	if start >= len(attrs) {
		return []*models.Attribute{}
	}
	end := start + pageSize
	if end > len(attrs) {
		end = len(attrs)
	}
	return attrs[start:end]
}

// CleanupOrphaned deletes attributes no book references.
func (svc *Service) CleanupOrphaned(ctx context.Context) (int, error) {
	var n int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewDelete().
			Model((*models.Attribute)(nil)).
			Where("usage_count = 0").
			Where("id NOT IN (SELECT DISTINCT attribute_id FROM content_attributes)").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		logger.FromContext(ctx).Info("removed orphaned attributes", logger.Data{"count": n})
		svc.events.Publish(events.TopicAttributes, events.ActionDeleted)
	}
	return int(n), nil
}

// Recount sets every usage count to the number of books referencing the
// attribute and returns how many counts were wrong.
func (svc *Service) Recount(ctx context.Context) (int, error) {
	var n int64
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewRaw(`
			UPDATE attributes
			SET usage_count = (SELECT COUNT(*) FROM content_attributes AS ca WHERE ca.attribute_id = attributes.id),
				updated_at = ?
			WHERE usage_count != (SELECT COUNT(*) FROM content_attributes AS ca WHERE ca.attribute_id = attributes.id)
		`, time.Now()).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		logger.FromContext(ctx).Warn("repaired attribute usage counts", logger.Data{"count": n})
		svc.events.Publish(events.TopicAttributes, events.ActionUpdated)
	}
	return int(n), nil
}

// MergeAttributes moves every book from source to target and deletes source.
// Both attributes must have the same type.
func (svc *Service) MergeAttributes(ctx context.Context, targetID, sourceID int) (*models.Attribute, error) {
	if targetID == sourceID {
		return nil, errcodes.ValidationError("An attribute can't be merged into itself.")
	}

	target := &models.Attribute{}
	var contentIDs []int
	err := svc.store.Write(ctx, func(ctx context.Context, tx bun.Tx) error {
		source := &models.Attribute{}
		if err := retrieve(ctx, tx, sourceID, source); err != nil {
			return err
		}
		if err := retrieve(ctx, tx, targetID, target); err != nil {
			return err
		}
		if source.Type != target.Type {
			return errcodes.ValidationError("Only attributes of the same type can be merged.")
		}

		err := tx.NewSelect().
			Model((*models.ContentAttribute)(nil)).
			Column("content_id").
			Where("attribute_id = ?", sourceID).
			Scan(ctx, &contentIDs)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewRaw(`
			UPDATE content_attributes
			SET attribute_id = ?
			WHERE attribute_id = ?
			AND content_id NOT IN (SELECT content_id FROM content_attributes WHERE attribute_id = ?)
		`, targetID, sourceID, targetID).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.ContentAttribute)(nil)).
			Where("attribute_id = ?", sourceID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.Attribute)(nil)).
			Where("id = ?", sourceID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewRaw(`
			UPDATE attributes
			SET usage_count = (SELECT COUNT(*) FROM content_attributes AS ca WHERE ca.attribute_id = attributes.id),
				updated_at = ?
			WHERE id = ?
		`, time.Now(), targetID).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		return retrieve(ctx, tx, targetID, target)
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(events.TopicAttributes, events.ActionUpdated, contentIDs...)
	return target, nil
}

func retrieve(ctx context.Context, db bun.IDB, id int, attr *models.Attribute) error {
	err := db.NewSelect().Model(attr).Where("a.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return errcodes.NotFound("Attribute")
	}
	return errors.WithStack(err)
}
