package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quillcms/citation-importer/internal/database"
	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/observability"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Compile-time interface verification.
var _ Store = (*PgStore)(nil)

// PgStore is a PostgreSQL implementation of Store. Expiry is enforced
// on read, so a stale entry is indistinguishable from an absent one;
// DeleteExpired reclaims the rows.
type PgStore struct {
	db      DBTX
	metrics *observability.Metrics
}

// NewPgStore creates a new PostgreSQL session store.
func NewPgStore(db DBTX) *PgStore {
	return &PgStore{db: db}
}

// WithMetrics attaches read hit/miss counters to the store.
func (s *PgStore) WithMetrics(m *observability.Metrics) *PgStore {
	s.metrics = m
	return s
}

// Set writes a value under key, replacing any previous value and deadline.
func (s *PgStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return domain.NewValidationError("key", "key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	query := `
		INSERT INTO session_entries (entry_key, value, expires_at, updated_at)
		VALUES ($1, $2, now() + $3::interval, now())
		ON CONFLICT (entry_key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`

	interval := fmt.Sprintf("%d seconds", int64(ttl.Seconds()))
	if _, err := s.db.Exec(ctx, query, key, value, interval); err != nil {
		return fmt.Errorf("failed to set session entry: %w", err)
	}
	return nil
}

// Get returns the value stored under key if it has not expired.
func (s *PgStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM session_entries
		WHERE entry_key = $1 AND expires_at > now()`

	var value []byte
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if s.metrics != nil {
				s.metrics.RecordSessionRead(false)
			}
			return nil, domain.NewNotFoundError("session entry", key)
		}
		return nil, fmt.Errorf("failed to get session entry: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionRead(true)
	}
	return value, nil
}

// Delete removes an entry. Deleting an absent key is not an error.
func (s *PgStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM session_entries WHERE entry_key = $1`

	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete session entry: %w", err)
	}
	return nil
}

// DeleteExpired removes entries past their deadline.
func (s *PgStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM session_entries WHERE expires_at <= now()`

	tag, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
