package queue

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/stacks/pkg/binder"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/shishobooks/stacks/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestHandler(t *testing.T) (*echo.Echo, *database.Store) {
	t.Helper()
	store := newTestStore(t)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	RegisterRoutes(e, store, nil)

	return e, store
}

func serve(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type itemBody struct {
	Position int             `json:"position"`
	State    string          `json:"state"`
	Content  *models.Content `json:"content"`
}

func itemIDs(t *testing.T, rec *httptest.ResponseRecorder) []int {
	t.Helper()
	var items []itemBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items), rec.Body.String())
	ids := make([]int, 0, len(items))
	for i, item := range items {
		assert.Equal(t, i, item.Position)
		ids = append(ids, item.Content.ID)
	}
	return ids
}

func TestHandler_EnqueueAndList(t *testing.T) {
	t.Parallel()
	e, store := setupTestHandler(t)
	a := insertBook(t, store, "a", models.StatusOnline)
	b := insertBook(t, store, "b", models.StatusOnline)

	for _, id := range []int{a.ID, b.ID} {
		rec := serve(t, e, http.MethodPost, "/queue", `{"content_id": `+strconv.Itoa(id)+`}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := serve(t, e, http.MethodGet, "/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []itemBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, StateActive, items[0].State)
	assert.Equal(t, StateWaiting, items[1].State)

	rec = serve(t, e, http.MethodPost, "/queue", `{"content_id": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_Move(t *testing.T) {
	t.Parallel()
	e, store := setupTestHandler(t)
	svc := NewService(store, nil)
	a := insertBook(t, store, "a", models.StatusOnline)
	b := insertBook(t, store, "b", models.StatusOnline)
	c := insertBook(t, store, "c", models.StatusOnline)
	enqueueAll(t, svc, a, b, c)

	rec := serve(t, e, http.MethodPost, "/queue/move", `{"from": 2, "to": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int{c.ID, a.ID, b.ID}, itemIDs(t, rec))
	assert.Equal(t, []int{c.ID, a.ID, b.ID}, order(t, svc))

	rec = serve(t, e, http.MethodPost, "/queue/move", `{"from": 5, "to": 0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, e, http.MethodPost, "/queue/move", `{"from": -1, "to": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, []int{c.ID, a.ID, b.ID}, order(t, svc))
}

func TestHandler_Cleanup(t *testing.T) {
	t.Parallel()
	e, store := setupTestHandler(t)
	svc := NewService(store, nil)
	saved := insertBook(t, store, "saved", models.StatusSaved, models.ImageStatusSaved)
	queued := insertBook(t, store, "queued", models.StatusOnline, models.ImageStatusOnline)
	enqueueAll(t, svc, queued)

	rec := serve(t, e, http.MethodPost, "/queue/cleanup", `{"target": "everything"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(t, e, http.MethodPost, "/queue/cleanup", `{"target": "library"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result CleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []int{saved.ID}, result.Deleted)
	assert.Equal(t, []int{queued.ID}, result.Reset)
	assert.Equal(t, []int{queued.ID}, order(t, svc))

	rec = serve(t, e, http.MethodPost, "/queue/cleanup", `{"target": "queue"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result = CleanupResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []int{queued.ID}, result.Deleted)
	assert.Empty(t, order(t, svc))
}

func TestHandler_ActiveWhenEmpty(t *testing.T) {
	t.Parallel()
	e, _ := setupTestHandler(t)

	rec := serve(t, e, http.MethodGet, "/queue/active", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
