package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

const (
	// ssePollInterval is how often we poll the session store for progress.
	ssePollInterval = 500 * time.Millisecond
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 30 * time.Minute
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string                `json:"event_type"`
	SessionID string                `json:"session_id"`
	Progress  *domain.BatchProgress `json:"progress,omitempty"`
	Message   string                `json:"message,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// streamProgress handles GET /api/v1/imports/{sessionID}/progress (SSE).
// The review token is accepted from the header or, for EventSource
// clients that cannot set headers, from the "token" query parameter.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := parseUUID(w, chi.URLParam(r, "sessionID"), "session_id")
	if !ok {
		return
	}
	id := sessionID.String()

	token := r.Header.Get(tokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if err := s.validateStepToken(ctx, id, stepReview, token); err != nil {
		writeDomainError(w, err)
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	progress, err := s.readProgress(ctx, id)
	if err != nil {
		sendSSEEvent(w, flusher, sseEvent{
			EventType: "error",
			SessionID: id,
			Message:   "no progress recorded for session",
			Timestamp: time.Now(),
		})
		return
	}

	sendSSEEvent(w, flusher, sseEvent{
		EventType: "stream_started",
		SessionID: id,
		Progress:  progress,
		Message:   "progress stream started",
		Timestamp: time.Now(),
	})
	if progress.Total > 0 && progress.Current >= progress.Total {
		sendSSEEvent(w, flusher, completedEvent(id, progress))
		return
	}

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	last := progress.Current
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				SessionID: id,
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current, pollErr := s.readProgress(ctx, id)
			if pollErr != nil {
				if errors.Is(pollErr, domain.ErrNotFound) {
					// The session entries expired mid-stream.
					sendSSEEvent(w, flusher, sseEvent{
						EventType: "expired",
						SessionID: id,
						Message:   "import session expired",
						Timestamp: time.Now(),
					})
					return
				}
				s.logger.Error().Err(pollErr).Str("session_id", id).Msg("failed to poll batch progress")
				continue
			}

			if current.Total > 0 && current.Current >= current.Total {
				sendSSEEvent(w, flusher, completedEvent(id, current))
				return
			}

			if current.Current == last {
				continue
			}
			last = current.Current
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "progress_update",
				SessionID: id,
				Progress:  current,
				Timestamp: time.Now(),
			})
		}
	}
}

// readProgress fetches and decodes the batch progress entry for a session.
func (s *Server) readProgress(ctx context.Context, sessionID string) (*domain.BatchProgress, error) {
	raw, err := s.sessions.Get(ctx, sessioncache.ProgressKey(sessionID))
	if err != nil {
		return nil, err
	}
	var progress domain.BatchProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("decoding batch progress: %w", err)
	}
	return &progress, nil
}

func completedEvent(sessionID string, progress *domain.BatchProgress) sseEvent {
	return sseEvent{
		EventType: "completed",
		SessionID: sessionID,
		Progress:  progress,
		Message:   "batch resolution finished",
		Timestamp: time.Now(),
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
