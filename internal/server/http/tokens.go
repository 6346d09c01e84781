package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

// Step names for the anti-forgery tokens guarding the operator flow.
const (
	stepReview  = "review"
	stepConfirm = "confirm"
)

// issueStepToken creates a single-step token for the session and stores
// it under the session's token key.
func (s *Server) issueStepToken(ctx context.Context, sessionID, step string) (string, error) {
	token := uuid.NewString()
	key := sessioncache.TokenKey(sessionID, step)
	if err := s.sessions.Set(ctx, key, []byte(token), s.sessionTTL); err != nil {
		return "", fmt.Errorf("storing %s token: %w", step, err)
	}
	return token, nil
}

// validateStepToken compares the presented token against the stored one
// in constant time. A missing stored token means the session expired.
func (s *Server) validateStepToken(ctx context.Context, sessionID, step, presented string) error {
	if presented == "" {
		return domain.ErrForbidden
	}

	stored, err := s.sessions.Get(ctx, sessioncache.TokenKey(sessionID, step))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewSessionExpiredError(sessionID)
		}
		return fmt.Errorf("loading %s token: %w", step, err)
	}

	if subtle.ConstantTimeCompare(stored, []byte(presented)) != 1 {
		return domain.ErrForbidden
	}
	return nil
}
