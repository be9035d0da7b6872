package search

import (
	"context"
	"sync"
	"time"

	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/uptrace/bun"
)

const errorPageSize = 20

type PageOptions struct {
	PageSize int
	LoadAll  bool
}

// Pager pages through the results of one query. A random query fixes its
// permutation when the pager is created and every page is cut from it, so
// each id is returned exactly once.
type Pager struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	svc      *Service
	query    Query
	pageSize int
	loadAll  bool

	mu    sync.Mutex
	total int
	ids   []int
}

// NewPager counts the results up front. For random order the shuffled id
// list is materialized here and kept for the pager's lifetime.
func (svc *Service) NewPager(ctx context.Context, q Query, opts PageOptions) (*Pager, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if opts.PageSize <= 0 {
		return nil, errcodes.ValidationError("Page size must be greater than 0.")
	}

	p := &Pager{
		CreatedAt: time.Now(),
		svc:       svc,
		query:     q,
		pageSize:  opts.PageSize,
		loadAll:   opts.LoadAll,
	}

	if q.Sort == SortRandom {
		ids, err := svc.SearchIDs(ctx, q)
		if err != nil {
			return nil, err
		}
		p.ids = ids
		p.total = len(ids)
		return p, nil
	}

	total, err := count(ctx, svc.store.DB, q.Filter)
	if err != nil {
		return nil, err
	}
	p.total = total
	return p, nil
}

// NewErrorPager pages through the books that failed to download, most
// recent first.
func (svc *Service) NewErrorPager(ctx context.Context, opts PageOptions) (*Pager, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = errorPageSize
	}
	return svc.NewPager(ctx, Query{
		Filter: Filter{Mode: ModeModular, Statuses: []string{models.StatusError}},
		Sort:   SortDownloadDate,
		Desc:   true,
	}, opts)
}

func (p *Pager) PageSize() int {
	return p.pageSize
}

func (p *Pager) Query() Query {
	return p.query
}

// Total is the result count as of the last count taken by the pager.
func (p *Pager) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// InitialLoadSize is two pages, or with load-all the total rounded up to the
// next multiple of the page size so the first load covers every result.
func (p *Pager) InitialLoadSize() int {
	total := p.Total()
	if p.loadAll {
		return initialLoadAll(total, p.pageSize)
	}
	return 2 * p.pageSize
}

func initialLoadAll(total, pageSize int) int {
	return (total + pageSize - 1) / pageSize * pageSize
}

// LoadInitial returns the first InitialLoadSize results. With load-all the
// count and the rows come from the same read snapshot so a concurrent write
// can't truncate the result.
func (p *Pager) LoadInitial(ctx context.Context) ([]*models.Content, error) {
	if !p.loadAll || p.query.Sort == SortRandom {
		return p.Range(ctx, 0, p.InitialLoadSize())
	}

	defer observeSearch(p.query.Mode, time.Now())
	var contents []*models.Content
	err := p.svc.store.Read(ctx, func(ctx context.Context, tx bun.Tx) error {
		total, err := count(ctx, tx, p.query.Filter)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.total = total
		p.mu.Unlock()

		contents, err = loadRange(ctx, tx, p.query, 0, initialLoadAll(total, p.pageSize))
		return err
	})
	if err != nil {
		return nil, err
	}
	return contents, nil
}

// Page returns page n, counting from 0.
func (p *Pager) Page(ctx context.Context, n int) ([]*models.Content, error) {
	if n < 0 {
		return nil, errcodes.ValidationError("Page must be 0 or greater.")
	}
	return p.Range(ctx, n*p.pageSize, p.pageSize)
}

// Range returns up to limit results starting at offset.
func (p *Pager) Range(ctx context.Context, offset, limit int) ([]*models.Content, error) {
	if offset < 0 || limit < 0 {
		return nil, errcodes.ValidationError("Offset and limit must be 0 or greater.")
	}
	defer observeSearch(p.query.Mode, time.Now())

	if p.query.Sort != SortRandom {
		return loadRange(ctx, p.svc.store.DB, p.query, offset, limit)
	}

	if offset >= len(p.ids) {
		return []*models.Content{}, nil
	}
	end := offset + limit
	if end > len(p.ids) {
		end = len(p.ids)
	}
	return hydrate(ctx, p.svc.store.DB, p.ids[offset:end])
}
