package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

func seedProgress(t *testing.T, store *memStore, sessionID string, progress domain.BatchProgress) {
	t.Helper()
	raw, err := json.Marshal(progress)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), sessioncache.ProgressKey(sessionID), raw, time.Hour))
}

func TestStreamProgress(t *testing.T) {
	sessionID := uuid.NewString()

	t.Run("requires the review token", func(t *testing.T) {
		store := newMemStore()
		seedProgress(t, store, sessionID, domain.BatchProgress{Current: 1, Total: 2, Percentage: 50})
		s := newTestServer(t, store, okLookup)

		rec := doJSON(t, s.Router(), http.MethodGet, "/api/v1/imports/"+sessionID+"/progress", nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("accepts the token as a query parameter", func(t *testing.T) {
		store := newMemStore()
		seedProgress(t, store, sessionID, domain.BatchProgress{Current: 2, Total: 2, Percentage: 100})
		seedToken(t, store, sessionID, stepReview, "tok-review")
		s := newTestServer(t, store, okLookup)

		rec := doJSON(t, s.Router(), http.MethodGet,
			"/api/v1/imports/"+sessionID+"/progress?token=tok-review", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "event: stream_started")
		assert.Contains(t, rec.Body.String(), "event: completed")
	})

	t.Run("closes immediately for a finished batch", func(t *testing.T) {
		store := newMemStore()
		seedProgress(t, store, sessionID, domain.BatchProgress{Current: 5, Total: 5, Percentage: 100})
		seedToken(t, store, sessionID, stepReview, "tok-review")
		s := newTestServer(t, store, okLookup)

		rec := doJSON(t, s.Router(), http.MethodGet, "/api/v1/imports/"+sessionID+"/progress", nil,
			map[string]string{tokenHeader: "tok-review"})
		require.Equal(t, http.StatusOK, rec.Code)

		body := rec.Body.String()
		assert.Contains(t, body, "event: completed")
		assert.Contains(t, body, `"percentage":100`)
	})

	t.Run("reports an error event when no progress exists", func(t *testing.T) {
		store := newMemStore()
		seedToken(t, store, sessionID, stepReview, "tok-review")
		s := newTestServer(t, store, okLookup)

		rec := doJSON(t, s.Router(), http.MethodGet, "/api/v1/imports/"+sessionID+"/progress", nil,
			map[string]string{tokenHeader: "tok-review"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "event: error")
	})

	t.Run("streams updates until completion", func(t *testing.T) {
		store := newMemStore()
		seedProgress(t, store, sessionID, domain.BatchProgress{Current: 1, Total: 3, Percentage: 33})
		seedToken(t, store, sessionID, stepReview, "tok-review")
		s := newTestServer(t, store, okLookup)

		// require must not run off the test goroutine, so write raw.
		put := func(p domain.BatchProgress) {
			raw, _ := json.Marshal(p)
			_ = store.Set(context.Background(), sessioncache.ProgressKey(sessionID), raw, time.Hour)
		}
		go func() {
			time.Sleep(150 * time.Millisecond)
			put(domain.BatchProgress{Current: 2, Total: 3, Percentage: 67})
			time.Sleep(600 * time.Millisecond)
			put(domain.BatchProgress{Current: 3, Total: 3, Percentage: 100})
		}()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+sessionID+"/progress", nil)
		req.Header.Set(tokenHeader, "tok-review")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		body := rec.Body.String()
		assert.Contains(t, body, "event: stream_started")
		assert.Contains(t, body, "event: progress_update")
		assert.Contains(t, body, "event: completed")
	})
}
