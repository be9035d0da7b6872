package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/migrations"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.New(config.NewForTest())
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), store.DB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	var e *errcodes.Error
	require.True(t, errors.As(err, &e), "expected an errcodes.Error, got %v", err)
	assert.Equal(t, "validation_error", e.Code)
}

type seed struct {
	site      string
	title     string
	author    string
	status    string
	favourite bool
	size      int64
	attrs     []*models.Attribute
}

func tag(name string) *models.Attribute {
	return &models.Attribute{Type: models.AttributeTypeTag, Name: name}
}

func lang(name string) *models.Attribute {
	return &models.Attribute{Type: models.AttributeTypeLanguage, Name: name}
}

func insertBooks(t *testing.T, store *database.Store, seeds ...seed) []int {
	t.Helper()
	svc := content.NewService(store, nil)
	ids := make([]int, 0, len(seeds))
	for i, s := range seeds {
		if s.site == "" {
			s.site = "nhentai"
		}
		if s.status == "" {
			s.status = models.StatusSaved
		}
		c := &models.Content{
			Site:       s.site,
			URL:        fmt.Sprintf("/g/%d", i+1),
			Title:      s.title,
			Author:     s.author,
			Status:     s.status,
			Favourite:  s.favourite,
			Size:       s.size,
			Attributes: s.attrs,
		}
		require.NoError(t, svc.UpsertContent(context.Background(), c))
		ids = append(ids, c.ID)
	}
	return ids
}

func TestSearchIDs_ModularTagAndText(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "Foo Zeta", attrs: []*models.Attribute{tag("comedy")}},
		seed{title: "Bar", attrs: []*models.Attribute{tag("comedy")}},
		seed{title: "foo alpha", attrs: []*models.Attribute{tag("Comedy"), tag("drama")}},
		seed{title: "Foo without tag"},
		seed{title: "Foo online", status: models.StatusOnline, attrs: []*models.Attribute{tag("comedy")}},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{
		Filter: Filter{
			Mode:       ModeModular,
			Text:       "FOO",
			Attributes: []AttributeFilter{{Type: models.AttributeTypeTag, Name: "comedy"}},
		},
		Sort: SortTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[2], ids[0]}, got)
}

func TestSearchIDs_AttributesAndAcrossTypesOrWithin(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "a", attrs: []*models.Attribute{tag("comedy"), lang("english")}},
		seed{title: "b", attrs: []*models.Attribute{tag("drama"), lang("english")}},
		seed{title: "c", attrs: []*models.Attribute{tag("comedy"), lang("japanese")}},
		seed{title: "d", attrs: []*models.Attribute{tag("horror"), lang("english")}},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{Filter: Filter{
		Mode: ModeModular,
		Attributes: []AttributeFilter{
			{Type: models.AttributeTypeTag, Name: "comedy"},
			{Type: models.AttributeTypeTag, Name: "drama"},
			{Type: models.AttributeTypeLanguage, Name: "english"},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[0], ids[1]}, got)
}

func TestSearchIDs_SourceFilterMatchesSite(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{site: "nhentai", title: "a"},
		seed{site: "hitomi", title: "b"},
		seed{site: "tsumino", title: "c"},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{Filter: Filter{
		Attributes: []AttributeFilter{
			{Type: models.AttributeTypeSource, Name: "Hitomi"},
			{Type: models.AttributeTypeSource, Name: "tsumino"},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[1], ids[2]}, got)
}

func TestSearchIDs_Universal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "Summer days"},
		seed{title: "Other", author: "Summerfield"},
		seed{title: "Third", attrs: []*models.Attribute{tag("summer")}, favourite: true},
		seed{title: "Nothing"},
		seed{site: "summersite", title: "Site match"},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{Filter: Filter{Mode: ModeUniversal, Text: "summer"}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[0], ids[1], ids[2], ids[4]}, got)

	got, err = svc.SearchIDs(ctx, Query{Filter: Filter{Mode: ModeUniversal, Text: "summer", FavouritesOnly: true}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[2]}, got)
}

func TestSearchIDs_WildcardsMatchLiterally(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "100% pure"},
		seed{title: "1000 pure"},
		seed{title: "snake_case"},
		seed{title: "snakescase"},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{Filter: Filter{Text: "100%"}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[0]}, got)

	got, err = svc.SearchIDs(ctx, Query{Filter: Filter{Text: "e_c"}})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[2]}, got)
}

func TestSearchIDs_SortBySizeWithIDTiebreak(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "a", size: 10},
		seed{title: "b", size: 30},
		seed{title: "c", size: 10},
		seed{title: "d", size: 20},
	)
	svc := NewService(store)

	got, err := svc.SearchIDs(ctx, Query{Sort: SortSize, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []int{ids[1], ids[3], ids[0], ids[2]}, got)
}

func TestSearchIDs_Validation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	svc := NewService(store)

	_, err := svc.SearchIDs(context.Background(), Query{Sort: "pages"})
	assertValidationError(t, err)

	_, err = svc.SearchIDs(context.Background(), Query{Filter: Filter{Attributes: []AttributeFilter{{Type: "mood", Name: "x"}}}})
	assertValidationError(t, err)
}

func TestRecentIDs_EmptyLibrary(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	ids, err := NewService(store).RecentIDs(context.Background(), SortDownloadDate, true, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCount(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	insertBooks(t, store,
		seed{title: "a", favourite: true},
		seed{title: "b"},
		seed{title: "c", status: models.StatusDownloading},
	)
	svc := NewService(store)

	n, err := svc.Count(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Count(context.Background(), Filter{FavouritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInitialLoadAll(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total, pageSize, want int
	}{
		{0, 20, 0},
		{1, 20, 20},
		{20, 20, 20},
		{21, 20, 40},
		{7, 3, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, initialLoadAll(tt.total, tt.pageSize), "total %d page size %d", tt.total, tt.pageSize)
	}
}

func TestPager_LoadAllNeverTruncates(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	seeds := make([]seed, 7)
	for i := range seeds {
		seeds[i] = seed{title: fmt.Sprintf("book %d", i)}
	}
	insertBooks(t, store, seeds...)
	svc := NewService(store)

	p, err := svc.NewPager(ctx, Query{Sort: SortTitle}, PageOptions{PageSize: 3, LoadAll: true})
	require.NoError(t, err)
	assert.Equal(t, 7, p.Total())
	assert.Equal(t, 9, p.InitialLoadSize())

	contents, err := p.LoadInitial(ctx)
	require.NoError(t, err)
	assert.Len(t, contents, 7)

	p, err = svc.NewPager(ctx, Query{Sort: SortTitle}, PageOptions{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, p.InitialLoadSize())
	contents, err = p.LoadInitial(ctx)
	require.NoError(t, err)
	assert.Len(t, contents, 6)
}

func TestPager_PagesDoNotOverlap(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "same"}, seed{title: "same"}, seed{title: "same"},
		seed{title: "same"}, seed{title: "same"},
	)
	svc := NewService(store)

	p, err := svc.NewPager(ctx, Query{Sort: SortTitle}, PageOptions{PageSize: 2})
	require.NoError(t, err)

	var got []int
	for n := 0; n < 3; n++ {
		page, err := p.Page(ctx, n)
		require.NoError(t, err)
		for _, c := range page {
			got = append(got, c.ID)
		}
	}
	assert.Equal(t, ids, got)

	page, err := p.Page(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPager_RandomReturnsEachIDOnce(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	seeds := make([]seed, 11)
	for i := range seeds {
		seeds[i] = seed{title: fmt.Sprintf("book %d", i), attrs: []*models.Attribute{tag("random")}}
	}
	ids := insertBooks(t, store, seeds...)
	svc := NewService(store)

	p, err := svc.NewPager(ctx, Query{Sort: SortRandom}, PageOptions{PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 11, p.Total())

	collect := func() []int {
		var out []int
		for n := 0; n < 3; n++ {
			page, err := p.Page(ctx, n)
			require.NoError(t, err)
			for _, c := range page {
				assert.Len(t, c.Attributes, 1)
				out = append(out, c.ID)
			}
		}
		return out
	}

	first := collect()
	assert.ElementsMatch(t, ids, first)
	assert.Equal(t, first, collect())
}

func TestPager_RandomSkipsDeletedBooks(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store, seed{title: "a"}, seed{title: "b"}, seed{title: "c"})
	svc := NewService(store)

	p, err := svc.NewPager(ctx, Query{Sort: SortRandom}, PageOptions{PageSize: 10})
	require.NoError(t, err)
	require.NoError(t, content.NewService(store, nil).DeleteContent(ctx, ids[1]))

	page, err := p.Page(ctx, 0)
	require.NoError(t, err)
	got := []int{}
	for _, c := range page {
		got = append(got, c.ID)
	}
	assert.ElementsMatch(t, []int{ids[0], ids[2]}, got)
}

func TestPager_InvalidOptions(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	svc := NewService(store)

	_, err := svc.NewPager(context.Background(), Query{}, PageOptions{})
	assertValidationError(t, err)

	p, err := svc.NewPager(context.Background(), Query{}, PageOptions{PageSize: 5})
	require.NoError(t, err)
	_, err = p.Page(context.Background(), -1)
	assertValidationError(t, err)
}

func TestNewErrorPager(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	ids := insertBooks(t, store,
		seed{title: "ok"},
		seed{title: "broken", status: models.StatusError},
		seed{title: "queued", status: models.StatusDownloading},
	)
	svc := NewService(store)

	p, err := svc.NewErrorPager(ctx, PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, errorPageSize, p.PageSize())
	assert.Equal(t, 1, p.Total())

	page, err := p.LoadInitial(ctx)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestPagerCache(t *testing.T) {
	t.Parallel()
	cache := NewPagerCache(2, time.Minute)

	a := &Pager{pageSize: 1}
	b := &Pager{pageSize: 2}
	c := &Pager{pageSize: 3}
	idA := cache.Add(a)
	idB := cache.Add(b)
	assert.NotEqual(t, idA, idB)

	got, ok := cache.Get(idA)
	require.True(t, ok)
	assert.Same(t, a, got)

	// b is now the least recently used entry.
	cache.Add(c)
	_, ok = cache.Get(idB)
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Len())

	assert.True(t, cache.Remove(idA))
	assert.False(t, cache.Remove(idA))
}

func TestPagerCache_Expires(t *testing.T) {
	t.Parallel()
	cache := NewPagerCache(2, 10*time.Millisecond)
	id := cache.Add(&Pager{})

	time.Sleep(50 * time.Millisecond)
	_, ok := cache.Get(id)
	assert.False(t, ok)
}

func TestParseAttributeFilter(t *testing.T) {
	t.Parallel()

	f, err := ParseAttributeFilter("tag: big boss ")
	require.NoError(t, err)
	assert.Equal(t, AttributeFilter{Type: models.AttributeTypeTag, Name: "big boss"}, f)

	for _, s := range []string{"tag", "mood:happy", "tag:  "} {
		_, err := ParseAttributeFilter(s)
		assertValidationError(t, err)
	}
}

func TestContainsPattern(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "%100!%%", ContainsPattern("100%"))
	assert.Equal(t, "%a!_b!!c%", ContainsPattern("a_b!c"))
	assert.Equal(t, "abc", NormalizeText("  ABC "))
}
