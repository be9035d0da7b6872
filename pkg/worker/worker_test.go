package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/content"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/migrations"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/shishobooks/stacks/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *database.Store) {
	t.Helper()
	cfg := config.NewForTest()
	cfg.WorkerInterval = 10 * time.Millisecond
	store, err := database.New(cfg)
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), store.DB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(cfg, store, nil), store
}

func queuedBook(t *testing.T, store *database.Store, url string, imageStatuses ...string) *models.Content {
	t.Helper()
	ctx := context.Background()
	svc := content.NewService(store, nil)
	c := &models.Content{Site: "hitomi", URL: url, Title: url}
	require.NoError(t, svc.UpsertContent(ctx, c))

	images := make([]*models.ImageFile, 0, len(imageStatuses))
	for i, s := range imageStatuses {
		images = append(images, &models.ImageFile{Order: i + 1, URL: url + "/" + s, Status: s})
	}
	require.NoError(t, svc.ReplaceImages(ctx, c.ID, images))

	_, err := queue.NewService(store, nil).Enqueue(ctx, c.ID, queue.EnqueueOptions{})
	require.NoError(t, err)
	return c
}

func contentStatus(t *testing.T, store *database.Store, id int) string {
	t.Helper()
	c := &models.Content{}
	require.NoError(t, store.NewSelect().Model(c).Where("c.id = ?", id).Scan(context.Background()))
	return c.Status
}

func TestTick_WaitsForPendingImages(t *testing.T) {
	t.Parallel()
	w, store := newTestWorker(t)
	book := queuedBook(t, store, "/1", models.ImageStatusDownloaded, models.ImageStatusSaved)

	id, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.Equal(t, models.StatusDownloading, contentStatus(t, store, book.ID))
}

func TestTick_CompletesProcessedBook(t *testing.T) {
	t.Parallel()
	w, store := newTestWorker(t)
	first := queuedBook(t, store, "/1", models.ImageStatusDownloaded, models.ImageStatusError)
	second := queuedBook(t, store, "/2", models.ImageStatusDownloaded)

	id, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	assert.Equal(t, models.StatusError, contentStatus(t, store, first.ID))

	id, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
	assert.Equal(t, models.StatusSaved, contentStatus(t, store, second.ID))

	id, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestTick_SkipsBookWithoutImages(t *testing.T) {
	t.Parallel()
	w, store := newTestWorker(t)
	book := queuedBook(t, store, "/1")

	id, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.Equal(t, models.StatusDownloading, contentStatus(t, store, book.ID))
}

func TestStart_ReconcilesThenFinalizes(t *testing.T) {
	t.Parallel()
	w, store := newTestWorker(t)
	book := queuedBook(t, store, "/1", models.ImageStatusDownloaded)

	require.NoError(t, w.Start())
	defer w.Shutdown()

	// Startup pauses the queue, so nothing is finalized until it resumes.
	assert.Equal(t, models.StatusPaused, contentStatus(t, store, book.ID))

	_, err := queue.NewService(store, nil).Resume(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		c := &models.Content{}
		err := store.NewSelect().Model(c).Where("c.id = ?", book.ID).Scan(context.Background())
		return err == nil && c.Status == models.StatusSaved
	}, 2*time.Second, 10*time.Millisecond)
}
