// Package sessioncache provides the TTL key/value store that carries
// import session state between the lookup, review, and import steps.
package sessioncache

import (
	"context"
	"time"
)

// DefaultTTL is how long session entries live. Every entry of a session
// shares this lifetime, so the whole session expires as one unit.
const DefaultTTL = 86400 * time.Second

// Store is the session-scoped key/value store. Implementations must
// treat a missing or expired key as domain.ErrNotFound from Get, never
// as a crash.
type Store interface {
	// Set writes a value under key with the given time to live,
	// replacing any previous value and its deadline.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key. Missing and expired
	// entries both yield an error satisfying errors.Is(err, domain.ErrNotFound).
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes entries past their deadline and reports how
	// many were dropped.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Session entry keys. The session ID scopes each entry; the three
// citation_* families hold the resolved records, the original queries,
// and the target item type for one import run.

// SearchKey is the key holding the resolved records of a session.
func SearchKey(sessionID string) string {
	return "citation_search_" + sessionID
}

// QueryKey is the key holding the original queries of a session.
func QueryKey(sessionID string) string {
	return "citation_query_" + sessionID
}

// TypeKey is the key holding the target item type of a session.
func TypeKey(sessionID string) string {
	return "citation_type_" + sessionID
}

// ProgressKey is the key holding the live batch progress of a session.
func ProgressKey(sessionID string) string {
	return "citation_progress_" + sessionID
}

// TokenKey is the key holding the anti-forgery token for one step of a
// session's operator flow.
func TokenKey(sessionID, step string) string {
	return "citation_token_" + sessionID + "_" + step
}
