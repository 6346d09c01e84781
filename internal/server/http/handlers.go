package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillcms/citation-importer/internal/citations"
	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/observability"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

// Validation constants.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxBatchQueries    = 500

	// tokenHeader carries the step token issued by the previous step.
	tokenHeader = "X-Import-Token"
)

var validate = validator.New()

// startImport handles POST /api/v1/imports. It parses the pasted
// citation list, opens an import session, and starts the batch
// resolution in the background. The response carries the token for the
// review step.
func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startImportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := validate.Struct(req); err != nil || strings.TrimSpace(req.Citations) == "" {
		writeError(w, http.StatusBadRequest, "citations are required")
		return
	}

	queries := citations.ParseList(req.Citations)
	if len(queries) == 0 {
		writeError(w, http.StatusBadRequest, "no citations found in input")
		return
	}
	if len(queries) > maxBatchQueries {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d citations per batch", maxBatchQueries))
		return
	}

	session := domain.NewImportSession(strings.TrimSpace(req.ItemType), len(queries))

	reviewToken, err := s.issueStepToken(ctx, session.ID.String(), stepReview)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Seed the progress entry before the batch detaches so a review or
	// stream request in the startup window sees an in-flight batch, not
	// an expired session.
	if err := s.seedProgress(ctx, session); err != nil {
		writeDomainError(w, err)
		return
	}

	// The batch outlives the request; resolution runs detached and the
	// client follows it over the progress stream.
	go s.runResolution(session, queries)

	resp := startImportResponse{
		SessionID:   session.ID.String(),
		Total:       len(queries),
		ReviewToken: reviewToken,
	}
	if len(queries) > s.pauseEvery {
		resp.Notice = fmt.Sprintf("We are processing %d at a time. Thanks for your patience.", s.pauseEvery)
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// seedProgress writes the zero-progress entry for a freshly opened
// session.
func (s *Server) seedProgress(ctx context.Context, session domain.ImportSession) error {
	raw, err := json.Marshal(domain.BatchProgress{Current: 0, Total: session.Total, Percentage: 0})
	if err != nil {
		return fmt.Errorf("encoding initial progress: %w", err)
	}
	if err := s.sessions.Set(ctx, sessioncache.ProgressKey(session.ID.String()), raw, s.sessionTTL); err != nil {
		return fmt.Errorf("storing initial progress: %w", err)
	}
	return nil
}

// runResolution executes the batch resolve on a background context.
func (s *Server) runResolution(session domain.ImportSession, queries []string) {
	ctx := observability.WithSessionID(context.Background(), session.ID.String())
	if _, err := s.resolver.ResolveBatch(ctx, session, queries); err != nil {
		s.logger.Error().
			Err(err).
			Str("session_id", session.ID.String()).
			Msg("batch resolution failed")
	}
}

// reviewImport handles GET /api/v1/imports/{sessionID}. It returns the
// resolved citations for operator review together with the token for
// the confirmation step. Transport-error detail is blanked for
// non-administrators.
func (s *Server) reviewImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := parseUUID(w, chi.URLParam(r, "sessionID"), "session_id")
	if !ok {
		return
	}
	id := sessionID.String()

	if err := s.validateStepToken(ctx, id, stepReview, r.Header.Get(tokenHeader)); err != nil {
		writeDomainError(w, err)
		return
	}

	items, itemType, err := s.loadResolvedItems(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !observability.AdminFromContext(ctx) {
		for i := range items {
			items[i].ErrorDetail = ""
		}
	}

	confirmToken, err := s.issueStepToken(ctx, id, stepConfirm)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewImportResponse{
		SessionID:    id,
		ItemType:     itemType,
		Items:        items,
		ConfirmToken: confirmToken,
	})
}

// confirmImport handles POST /api/v1/imports/{sessionID}/confirm. It
// runs the import for the selected keys and returns per-item outcomes.
// Session state and step tokens are cleared after a completed import.
func (s *Server) confirmImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := parseUUID(w, chi.URLParam(r, "sessionID"), "session_id")
	if !ok {
		return
	}
	id := sessionID.String()

	if err := s.validateStepToken(ctx, id, stepConfirm, r.Header.Get(tokenHeader)); err != nil {
		writeDomainError(w, err)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req confirmImportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "keys are required")
		return
	}

	outcomes, err := s.importer.Import(ctx, id, req.Keys, strings.TrimSpace(req.ItemType))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.clearSession(ctx, id)

	writeJSON(w, http.StatusOK, newConfirmImportResponse(id, outcomes))
}

// loadResolvedItems reads the resolved citations and the target item
// type back from the session store, sorted by batch position. A batch
// still resolving yields ErrServiceUnavailable; a vanished one yields
// a session-expired error.
func (s *Server) loadResolvedItems(ctx context.Context, sessionID string) ([]domain.ResolvedCitation, string, error) {
	searchRaw, err := s.sessions.Get(ctx, sessioncache.SearchKey(sessionID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("loading resolved citations: %w", err)
		}
		// Progress still being written means the batch has not finished.
		if _, progressErr := s.sessions.Get(ctx, sessioncache.ProgressKey(sessionID)); progressErr == nil {
			return nil, "", domain.ErrServiceUnavailable
		}
		return nil, "", domain.NewSessionExpiredError(sessionID)
	}

	var results map[string]domain.ResolvedCitation
	if err := json.Unmarshal(searchRaw, &results); err != nil {
		return nil, "", fmt.Errorf("decoding resolved citations: %w", err)
	}

	var itemType string
	if typeRaw, err := s.sessions.Get(ctx, sessioncache.TypeKey(sessionID)); err == nil {
		_ = json.Unmarshal(typeRaw, &itemType)
	}

	items := make([]domain.ResolvedCitation, 0, len(results))
	for _, item := range results {
		items = append(items, item)
	}
	sortByIndex(items)

	return items, itemType, nil
}

// clearSession removes the session entries and step tokens once the
// import has completed. Failures are logged, not surfaced.
func (s *Server) clearSession(ctx context.Context, sessionID string) {
	keys := []string{
		sessioncache.SearchKey(sessionID),
		sessioncache.QueryKey(sessionID),
		sessioncache.TypeKey(sessionID),
		sessioncache.ProgressKey(sessionID),
		sessioncache.TokenKey(sessionID, stepReview),
		sessioncache.TokenKey(sessionID, stepConfirm),
	}
	for _, key := range keys {
		if err := s.sessions.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to clear session entry")
		}
	}
}

// sortByIndex orders resolved citations by their batch position.
func sortByIndex(items []domain.ResolvedCitation) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Index < items[j].Index
	})
}

// writeDomainError maps domain errors to appropriate HTTP status codes
// and writes a JSON error response. Internal error details are not
// leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		writeError(w, http.StatusGone, "import session expired")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if
// invalid. The parse error details are not included to avoid echoing
// potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
