package search

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	store *database.Store
}

func NewService(store *database.Store) *Service {
	return &Service{store}
}

// SearchIDs returns the ids of every matching book in query order. Random
// order reshuffles on every call.
func (svc *Service) SearchIDs(ctx context.Context, q Query) ([]int, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	defer observeSearch(q.Mode, time.Now())

	ids, err := searchIDs(ctx, svc.store.DB, q)
	if err != nil {
		return nil, err
	}
	if q.Sort == SortRandom {
		shuffle(ids)
	}
	return ids, nil
}

// Count returns the number of books matching f.
func (svc *Service) Count(ctx context.Context, f Filter) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	return count(ctx, svc.store.DB, f)
}

// RecentIDs lists the whole library in the given order, optionally limited
// to favourites.
func (svc *Service) RecentIDs(ctx context.Context, sort string, desc, favouritesOnly bool) ([]int, error) {
	return svc.SearchIDs(ctx, Query{
		Filter: Filter{Mode: ModeModular, FavouritesOnly: favouritesOnly},
		Sort:   sort,
		Desc:   desc,
	})
}

func searchIDs(ctx context.Context, db bun.IDB, q Query) ([]int, error) {
	ids := []int{}
	sel := db.NewSelect().
		Model((*models.Content)(nil)).
		ColumnExpr("c.id")
	sel = q.Filter.Apply(sel)
	sel = applySort(sel, q.Sort, q.Desc)
	if err := sel.Scan(ctx, &ids); err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func count(ctx context.Context, db bun.IDB, f Filter) (int, error) {
	sel := db.NewSelect().Model((*models.Content)(nil))
	n, err := f.Apply(sel).Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return n, nil
}

func loadRange(ctx context.Context, db bun.IDB, q Query, offset, limit int) ([]*models.Content, error) {
	contents := []*models.Content{}
	if limit <= 0 {
		return contents, nil
	}
	sel := db.NewSelect().Model(&contents)
	sel = q.Filter.Apply(sel)
	sel = applySort(sel, q.Sort, q.Desc).Offset(offset).Limit(limit)
	if err := sel.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := content.LoadAttributes(ctx, db, contents); err != nil {
		return nil, err
	}
	return contents, nil
}

// hydrate loads the books with the given ids in that order. Ids that no
// longer exist are skipped.
func hydrate(ctx context.Context, db bun.IDB, ids []int) ([]*models.Content, error) {
	contents := []*models.Content{}
	if len(ids) == 0 {
		return contents, nil
	}
	err := db.NewSelect().
		Model(&contents).
		Where("c.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	byID := make(map[int]*models.Content, len(contents))
	for _, c := range contents {
		byID[c.ID] = c
	}
	ordered := make([]*models.Content, 0, len(contents))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	if err := content.LoadAttributes(ctx, db, ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

func shuffle(ids []int) {
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}
