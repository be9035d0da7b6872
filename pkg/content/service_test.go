package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/events"
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

func newBook(site, url, title, status string, attrs ...*models.Attribute) *models.Content {
	return &models.Content{Site: site, URL: url, Title: title, Status: status, Attributes: attrs}
}

func attr(attrType, name string) *models.Attribute {
	return &models.Attribute{Type: attrType, Name: name}
}

func usageCount(t *testing.T, store *database.Store, attrType, name string) int {
	t.Helper()
	a := &models.Attribute{}
	err := store.NewSelect().Model(a).Where("a.type = ? AND a.name = ?", attrType, name).Scan(context.Background())
	require.NoError(t, err)
	return a.Count
}

// linkCount counts the books that actually reference the attribute.
func linkCount(t *testing.T, store *database.Store, attrType, name string) int {
	t.Helper()
	n, err := store.NewSelect().
		Model((*models.ContentAttribute)(nil)).
		Join("JOIN attributes AS a ON a.id = ca.attribute_id").
		Where("a.type = ? AND a.name = ?", attrType, name).
		Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestUpsertContent_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("nhentai", "/g/1", "First", models.StatusSaved,
		attr(models.AttributeTypeTag, "comedy"),
		attr(models.AttributeTypeLanguage, "english"),
	)
	require.NoError(t, svc.UpsertContent(ctx, book))
	assert.NotZero(t, book.ID)

	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	require.Len(t, got.Attributes, 2)
	assert.Equal(t, models.AttributeTypeLanguage, got.Attributes[0].Type)
	assert.Equal(t, 1, got.Attributes[0].Count)

	site, url := "nhentai", "/g/1"
	bySource, err := svc.RetrieveContent(ctx, RetrieveContentOptions{Site: &site, URL: &url})
	require.NoError(t, err)
	assert.Equal(t, book.ID, bySource.ID)

	missing := 999
	_, err = svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &missing})
	assert.True(t, errors.Is(err, errcodes.NotFound("Content")))
}

func TestUpsertContent_SiteURLConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	require.NoError(t, svc.UpsertContent(ctx, newBook("hitomi", "/1", "A", models.StatusSaved)))

	err := svc.UpsertContent(ctx, newBook("hitomi", "/1", "B", models.StatusSaved))
	var e *errcodes.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "conflict", e.Code)
}

func TestUpsertContent_AttributeCountsFollowReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	a := newBook("s", "/a", "A", models.StatusSaved, attr(models.AttributeTypeTag, "comedy"), attr(models.AttributeTypeTag, "drama"))
	b := newBook("s", "/b", "B", models.StatusSaved, attr(models.AttributeTypeTag, "Comedy"))
	require.NoError(t, svc.UpsertContent(ctx, a))
	require.NoError(t, svc.UpsertContent(ctx, b))

	assert.Equal(t, 2, usageCount(t, store, models.AttributeTypeTag, "comedy"))
	assert.Equal(t, 1, usageCount(t, store, models.AttributeTypeTag, "drama"))

	// Swap drama for horror on A.
	a.Attributes = []*models.Attribute{attr(models.AttributeTypeTag, "comedy"), attr(models.AttributeTypeTag, "horror")}
	require.NoError(t, svc.UpsertContent(ctx, a))
	assert.Equal(t, 0, usageCount(t, store, models.AttributeTypeTag, "drama"))
	assert.Equal(t, 1, usageCount(t, store, models.AttributeTypeTag, "horror"))

	require.NoError(t, svc.DeleteContent(ctx, b.ID))
	for _, name := range []string{"comedy", "drama", "horror"} {
		assert.Equal(t, linkCount(t, store, models.AttributeTypeTag, name), usageCount(t, store, models.AttributeTypeTag, name), name)
	}
	assert.Equal(t, 1, usageCount(t, store, models.AttributeTypeTag, "comedy"))
}

func TestUpsertContent_RejectsSourceAttributes(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	svc := NewService(store, nil)

	err := svc.UpsertContent(context.Background(), newBook("s", "/a", "A", models.StatusSaved, attr(models.AttributeTypeSource, "s")))
	var e *errcodes.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "validation_error", e.Code)
}

func TestDeleteContent_Cascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("s", "/a", "A", models.StatusDownloading, attr(models.AttributeTypeTag, "comedy"))
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.ReplaceImages(ctx, book.ID, []*models.ImageFile{{Order: 1}, {Order: 2}}))
	_, err := store.NewInsert().Model(&models.QueueRecord{ContentID: book.ID, Rank: 1}).Exec(ctx)
	require.NoError(t, err)
	_, err = store.NewInsert().Model(&models.ErrorRecord{ContentID: book.ID, Type: models.ErrorTypeIO}).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteContent(ctx, book.ID))

	for _, model := range []interface{}{
		(*models.ImageFile)(nil),
		(*models.QueueRecord)(nil),
		(*models.ErrorRecord)(nil),
		(*models.ContentAttribute)(nil),
	} {
		n, err := store.NewSelect().Model(model).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	queued, err := svc.CountQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)

	err = svc.DeleteContent(ctx, book.ID)
	assert.True(t, errors.Is(err, errcodes.NotFound("Content")))
}

func TestUpdateContentStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	broker := events.NewBroker()
	sub := broker.Subscribe(events.TopicContent)
	defer sub.Close()
	svc := NewService(store, broker)

	for i, status := range []string{models.StatusDownloading, models.StatusDownloading, models.StatusSaved} {
		require.NoError(t, svc.UpsertContent(ctx, newBook("s", "/"+string(rune('a'+i)), "T", status)))
	}
	for len(sub.C) > 0 {
		<-sub.C
	}

	n, err := svc.UpdateContentStatus(ctx, models.StatusDownloading, models.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	evt := <-sub.C
	assert.Len(t, evt.ContentIDs, 2)

	queued, err := svc.CountQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	library, err := svc.CountLibrary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, library)

	paused, err := svc.ListContents(ctx, ListContentsOptions{Statuses: []string{models.StatusPaused}})
	require.NoError(t, err)
	assert.Len(t, paused, 2)
}

func TestReplaceImages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	err := svc.ReplaceImages(ctx, 42, []*models.ImageFile{{Order: 1}})
	assert.True(t, errors.Is(err, errcodes.NotFound("Content")))

	book := newBook("s", "/a", "A", models.StatusSaved)
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.ReplaceImages(ctx, book.ID, []*models.ImageFile{
		{Order: 1, Status: models.ImageStatusDownloaded, Size: 10},
		{Order: 2, Size: 20},
	}))
	require.NoError(t, svc.ReplaceImages(ctx, book.ID, []*models.ImageFile{
		{Order: 1, Status: models.ImageStatusDownloaded, Size: 5},
		{Order: 2, Status: models.ImageStatusError},
		{Order: 3},
		{Order: 4},
	}))

	images, err := svc.ListImageFiles(ctx, ListImageFilesOptions{ContentID: book.ID})
	require.NoError(t, err)
	require.Len(t, images, 4)
	assert.Equal(t, models.ImageStatusSaved, images[2].Status)

	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, 50, got.Completion)
	assert.Equal(t, int64(5), got.Size)
	assert.Len(t, got.Images, 4)
}

func TestUpdateImageStatusBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("s", "/a", "A", models.StatusDownloading)
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.ReplaceImages(ctx, book.ID, []*models.ImageFile{
		{Order: 1, Status: models.ImageStatusError},
		{Order: 2, Status: models.ImageStatusError},
		{Order: 3, Status: models.ImageStatusDownloaded},
	}))

	from := models.ImageStatusError
	n, err := svc.UpdateImageStatusBulk(ctx, book.ID, &from, models.ImageStatusSaved)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := svc.CountProcessedImages(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.ImageStatusSaved])
	assert.Equal(t, 1, counts[models.ImageStatusDownloaded])
	assert.Equal(t, 0, counts[models.ImageStatusError])
	assert.Len(t, counts, len(models.ImageStatuses))

	n, err = svc.UpdateImageStatusBulk(ctx, book.ID, nil, models.ImageStatusDownloaded)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, 100, got.Completion)
}

func TestImageFileLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("s", "/a", "A", models.StatusDownloading)
	require.NoError(t, svc.UpsertContent(ctx, book))

	path := filepath.Join(t.TempDir(), "001")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0644))

	img := &models.ImageFile{ContentID: book.ID, Order: 1, URL: "https://example.com/1.png"}
	require.NoError(t, svc.InsertImageFile(ctx, img))

	uri := "file://" + path
	img.Status = models.ImageStatusDownloaded
	img.URI = &uri
	require.NoError(t, svc.UpdateImageFile(ctx, img, UpdateImageFileOptions{Columns: []string{"status", "uri"}}))

	got, err := svc.RetrieveImageFile(ctx, img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MimeType)
	assert.Equal(t, "image/png", *got.MimeType)

	downloaded, err := svc.ListImageFiles(ctx, ListImageFilesOptions{ContentID: book.ID, DownloadedOnly: true})
	require.NoError(t, err)
	assert.Len(t, downloaded, 1)

	require.NoError(t, svc.SetCover(ctx, book.ID, 1))
	content, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	require.NotNil(t, content.CoverURL)
	assert.Equal(t, "https://example.com/1.png", *content.CoverURL)
	assert.True(t, content.Images[0].IsCover)
	assert.Equal(t, 100, content.Completion)

	require.NoError(t, svc.DeleteImageFile(ctx, img.ID))
	_, err = svc.RetrieveImageFile(ctx, img.ID)
	assert.True(t, errors.Is(err, errcodes.NotFound("Image")))

	err = svc.UpdateImageFile(ctx, &models.ImageFile{ID: img.ID, Status: models.ImageStatusError}, UpdateImageFileOptions{Columns: []string{"status"}})
	assert.True(t, errors.Is(err, errcodes.NotFound("Image")))
}

func TestSelectStoredIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	fav := newBook("s", "/1", "Fav", models.StatusSaved)
	fav.Favourite = true
	plain := newBook("s", "/2", "Plain", models.StatusSaved)
	queued := newBook("s", "/3", "Queued", models.StatusDownloading)
	online := newBook("s", "/4", "Online", models.StatusOnline)
	for _, b := range []*models.Content{fav, plain, queued, online} {
		require.NoError(t, svc.UpsertContent(ctx, b))
	}

	ids, err := svc.SelectStoredIDs(ctx, SelectStoredIDsOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{fav.ID, plain.ID}, ids)

	ids, err = svc.SelectStoredIDs(ctx, SelectStoredIDsOptions{NonFavouritesOnly: true, IncludeQueued: true})
	require.NoError(t, err)
	assert.Equal(t, []int{plain.ID, queued.ID}, ids)
}

func TestSiteHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	_, err := svc.RetrieveSiteHistory(ctx, "hitomi")
	assert.True(t, errors.Is(err, errcodes.NotFound("Site history")))

	_, err = svc.SaveSiteHistory(ctx, "hitomi", "https://hitomi.la/1")
	require.NoError(t, err)
	_, err = svc.SaveSiteHistory(ctx, "hitomi", "https://hitomi.la/2")
	require.NoError(t, err)

	history, err := svc.RetrieveSiteHistory(ctx, "hitomi")
	require.NoError(t, err)
	assert.Equal(t, "https://hitomi.la/2", history.URL)

	n, err := store.NewSelect().Model((*models.SiteHistory)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("s", "/1", "A", models.StatusSaved)
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.MarkRead(ctx, book.ID))

	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.NotNil(t, got.LastReadAt)

	assert.True(t, errors.Is(svc.MarkRead(ctx, 404), errcodes.NotFound("Content")))
}

func TestUpsertContent_UpdateKeepsUnsentFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	downloaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cover := "https://example.com/cover.jpg"
	book := newBook("s", "/1", "A", models.StatusSaved, attr(models.AttributeTypeTag, "comedy"))
	book.DownloadDate = &downloaded
	book.CoverURL = &cover
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.MarkRead(ctx, book.ID))

	// A metadata edit that only carries the identity and the title.
	edit := &models.Content{ID: book.ID, Site: "s", URL: "/1", Title: "A renamed"}
	require.NoError(t, svc.UpsertContent(ctx, edit))

	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "A renamed", got.Title)
	assert.Equal(t, models.StatusSaved, got.Status)
	require.NotNil(t, got.LastReadAt)
	require.NotNil(t, got.DownloadDate)
	assert.True(t, downloaded.Equal(*got.DownloadDate))
	require.NotNil(t, got.CoverURL)
	assert.Equal(t, cover, *got.CoverURL)
	require.Len(t, got.Attributes, 1)
	assert.Equal(t, "comedy", got.Attributes[0].Name)
	assert.Equal(t, 1, usageCount(t, store, models.AttributeTypeTag, "comedy"))

	n, err := svc.CountLibrary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// An empty, non-nil list clears them.
	cleared := &models.Content{ID: book.ID, Site: "s", URL: "/1", Title: "A renamed", Attributes: []*models.Attribute{}}
	require.NoError(t, svc.UpsertContent(ctx, cleared))
	assert.Empty(t, cleared.Attributes)
	assert.Equal(t, 0, linkCount(t, store, models.AttributeTypeTag, "comedy"))
	assert.Equal(t, 0, usageCount(t, store, models.AttributeTypeTag, "comedy"))
}

func TestUpsertContent_QueueStatusesOnlyChangeThroughTheQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	queued := newBook("s", "/1", "Queued", models.StatusDownloading)
	require.NoError(t, svc.UpsertContent(ctx, queued))
	_, err := store.NewInsert().Model(&models.QueueRecord{ContentID: queued.ID, Rank: 1}).Exec(ctx)
	require.NoError(t, err)

	err = svc.UpsertContent(ctx, &models.Content{ID: queued.ID, Site: "s", URL: "/1", Status: models.StatusOnline})
	assertValidationError(t, err)

	// Without a status the stored one is kept.
	require.NoError(t, svc.UpsertContent(ctx, &models.Content{ID: queued.ID, Site: "s", URL: "/1", Title: "Renamed"}))
	got, err := svc.RetrieveContent(ctx, RetrieveContentOptions{ID: &queued.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloading, got.Status)
	assert.Equal(t, "Renamed", got.Title)

	library := newBook("s", "/2", "Library", models.StatusSaved)
	require.NoError(t, svc.UpsertContent(ctx, library))
	library.Status = models.StatusPaused
	assertValidationError(t, svc.UpsertContent(ctx, library))

	library.Status = models.StatusError
	require.NoError(t, svc.UpsertContent(ctx, library))
}

func TestUpdateImageFile_RejectsEmptyStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewService(store, nil)

	book := newBook("s", "/1", "A", models.StatusSaved)
	require.NoError(t, svc.UpsertContent(ctx, book))
	require.NoError(t, svc.ReplaceImages(ctx, book.ID, []*models.ImageFile{{Order: 0, Status: models.ImageStatusDownloaded}}))
	images, err := svc.ListImageFiles(ctx, ListImageFilesOptions{ContentID: book.ID})
	require.NoError(t, err)
	require.Len(t, images, 1)

	err = svc.UpdateImageFile(ctx, &models.ImageFile{ID: images[0].ID}, UpdateImageFileOptions{Columns: []string{"status"}})
	assertValidationError(t, err)

	got, err := svc.RetrieveImageFile(ctx, images[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusDownloaded, got.Status)
}
