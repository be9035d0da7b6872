package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/database"
	"github.com/shishobooks/stacks/pkg/events"
	"github.com/shishobooks/stacks/pkg/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*echo.Echo, *events.Broker) {
	t.Helper()
	cfg := config.NewForTest()
	store, err := database.New(cfg)
	require.NoError(t, err)
	_, err = migrations.BringUpToDate(context.Background(), store.DB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	e, err := newEcho(cfg, store, broker)
	require.NoError(t, err)
	return e, broker
}

func do(t *testing.T, e *echo.Echo, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// Not parallel: newEcho sets echo's package-level NotFoundHandler.
func TestServer_LibraryAndQueueFlow(t *testing.T) {
	e, broker := newTestServer(t)

	sub := broker.Subscribe(events.TopicQueue)
	defer sub.Close()

	var seeded struct {
		IDs []int `json:"ids"`
	}
	status := do(t, e, http.MethodPost, "/test/contents", map[string]any{
		"count":      3,
		"attributes": []map[string]string{{"type": "tag", "name": "Comedy"}},
	}, &seeded)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, seeded.IDs, 3)

	var ids struct {
		IDs   []int `json:"ids"`
		Total int   `json:"total"`
	}
	status = do(t, e, http.MethodGet, "/search/ids?attributes=tag:comedy&sort=title", nil, &ids)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, seeded.IDs, ids.IDs)
	assert.Equal(t, 3, ids.Total)

	var counts map[string]int
	status = do(t, e, http.MethodGet, "/attributes/counts", nil, &counts)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, counts["tag"])
	assert.Equal(t, 1, counts["source"])

	status = do(t, e, http.MethodPost, "/queue", map[string]any{"content_id": seeded.IDs[0]}, nil)
	require.Equal(t, http.StatusCreated, status)

	select {
	case evt := <-sub.C:
		assert.Equal(t, events.TopicQueue, evt.Topic)
		assert.Equal(t, []int{seeded.IDs[0]}, evt.ContentIDs)
	default:
		t.Fatal("expected a queue event")
	}

	var queued []map[string]any
	status = do(t, e, http.MethodGet, "/queue", nil, &queued)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, queued, 1)
	assert.Equal(t, "active", queued[0]["state"])

	// A queued book leaves the library.
	status = do(t, e, http.MethodGet, "/search/ids", nil, &ids)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, ids.Total)

	var wiped struct {
		Deleted int `json:"deleted"`
	}
	status = do(t, e, http.MethodDelete, "/test/data", nil, &wiped)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, wiped.Deleted)

	status = do(t, e, http.MethodGet, "/queue", nil, &queued)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, queued)
}

func TestServer_Errors(t *testing.T) {
	e, _ := newTestServer(t)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}

	status := do(t, e, http.MethodGet, "/nope", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.Error.Code)

	status = do(t, e, http.MethodGet, "/contents/999", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.Error.Code)

	status = do(t, e, http.MethodGet, "/search/ids?sort=sideways", nil, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body.Error.Code)
}
