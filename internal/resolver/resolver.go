// Package resolver runs citation lookup batches and stores their
// results in the session store.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillcms/citation-importer/internal/crossref"
	"github.com/quillcms/citation-importer/internal/domain"
	"github.com/quillcms/citation-importer/internal/observability"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

const (
	// DefaultPauseEvery is the batch position interval at which large
	// batches pause to stay polite with the registry.
	DefaultPauseEvery = 20

	// DefaultPauseFor is how long a large batch pauses.
	DefaultPauseFor = 5 * time.Second
)

// Sleeper pauses between batch segments. Injected so tests control time.
type Sleeper func(ctx context.Context, d time.Duration)

// ProgressSink receives progress updates after each resolved query.
type ProgressSink interface {
	Publish(ctx context.Context, sessionID string, progress domain.BatchProgress)
}

// ProgressSinkFunc adapts a function to the ProgressSink interface.
type ProgressSinkFunc func(ctx context.Context, sessionID string, progress domain.BatchProgress)

// Publish implements ProgressSink.
func (f ProgressSinkFunc) Publish(ctx context.Context, sessionID string, progress domain.BatchProgress) {
	f(ctx, sessionID, progress)
}

// Config holds batch resolver settings.
type Config struct {
	// PauseEvery is the number of queries between pauses in large
	// batches. Batches no larger than PauseEvery never pause.
	PauseEvery int

	// PauseFor is the pause duration.
	PauseFor time.Duration

	// SessionTTL is the time to live applied to stored session entries.
	SessionTTL time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.PauseEvery == 0 {
		c.PauseEvery = DefaultPauseEvery
	}
	if c.PauseFor == 0 {
		c.PauseFor = DefaultPauseFor
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = sessioncache.DefaultTTL
	}
}

// Resolver resolves batches of citation queries sequentially, reporting
// progress after every query and persisting the outcome under the
// session's cache keys.
type Resolver struct {
	lookups crossref.Resolver
	store   sessioncache.Store
	metrics *observability.Metrics
	logger  zerolog.Logger
	sink    ProgressSink
	sleep   Sleeper
	config  Config
}

// New creates a batch resolver. sink may be nil when nobody consumes
// live progress; metrics may be nil in tests.
func New(lookups crossref.Resolver, store sessioncache.Store, metrics *observability.Metrics, logger zerolog.Logger, sink ProgressSink, cfg Config) *Resolver {
	cfg.applyDefaults()

	return &Resolver{
		lookups: lookups,
		store:   store,
		metrics: metrics,
		logger:  logger.With().Str("component", "resolver").Logger(),
		sink:    sink,
		sleep:   sleepWithContext,
		config:  cfg,
	}
}

// WithSleeper replaces the pause implementation. Intended for tests.
func (r *Resolver) WithSleeper(sleep Sleeper) *Resolver {
	r.sleep = sleep
	return r
}

// ResolveBatch resolves each query of the session in order. Queries
// resolving to the same identifier keep distinct entries because keys
// are composites of the query index and the DOI. The resolved set, the
// original queries, and the target item type are written to the session
// store when the batch completes.
//
// The returned map is keyed by composite citation key. ResolveBatch
// returns an error only when the context is cancelled or the session
// store rejects the final writes; individual lookup failures are
// recorded per entry and do not stop the batch.
func (r *Resolver) ResolveBatch(ctx context.Context, session domain.ImportSession, queries []string) (map[string]domain.ResolvedCitation, error) {
	total := len(queries)
	sessionID := session.ID.String()
	logger := observability.WithSessionContext(r.logger, sessionID)

	started := time.Now()
	if r.metrics != nil {
		r.metrics.RecordBatchStarted(total)
	}
	logger.Info().Int("total", total).Msg("resolution batch started")

	results := make(map[string]domain.ResolvedCitation, total)
	originals := make(map[string]string, total)

	for i, query := range queries {
		if err := ctx.Err(); err != nil {
			if r.metrics != nil {
				r.metrics.RecordBatchFailed(time.Since(started).Seconds())
			}
			return nil, fmt.Errorf("batch cancelled at query %d: %w", i, err)
		}

		lookupStart := time.Now()
		result := r.lookups.Resolve(ctx, query)
		if r.metrics != nil {
			r.metrics.RecordLookup(string(result.Status), time.Since(lookupStart).Seconds())
		}

		entry := domain.ResolvedCitation{
			Index:  i,
			Query:  query,
			Status: result.Status,
			Record: result.Record,
		}
		if result.Record != nil {
			entry.Key = domain.CitationKey(i, result.Record.DOI)
		} else {
			entry.Key = domain.CitationKey(i, "")
		}
		if result.Err != nil {
			entry.ErrorDetail = result.Err.Error()
			lookupLogger := observability.WithLookupContext(logger, query, i)
			lookupLogger.Warn().
				Err(result.Err).
				Msg("lookup failed")
		}

		results[entry.Key] = entry
		originals[entry.Key] = query

		r.publishProgress(ctx, sessionID, domain.BatchProgress{
			Current:    i + 1,
			Total:      total,
			Percentage: percentage(i+1, total),
		})

		// Pause after every PauseEvery-th query in large batches, but
		// never after the last one.
		if total > r.config.PauseEvery && (i+1)%r.config.PauseEvery == 0 && i+1 < total {
			logger.Debug().Int("after", i+1).Dur("pause", r.config.PauseFor).Msg("pausing batch")
			r.sleep(ctx, r.config.PauseFor)
		}
	}

	if err := r.storeResults(ctx, session, results, originals); err != nil {
		if r.metrics != nil {
			r.metrics.RecordBatchFailed(time.Since(started).Seconds())
		}
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordBatchCompleted(time.Since(started).Seconds())
	}
	logger.Info().
		Int("total", total).
		Dur("duration", time.Since(started)).
		Msg("resolution batch completed")

	return results, nil
}

// storeResults persists the three session entries that the review and
// import steps read back.
func (r *Resolver) storeResults(ctx context.Context, session domain.ImportSession, results map[string]domain.ResolvedCitation, originals map[string]string) error {
	sessionID := session.ID.String()

	searchPayload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding resolved citations: %w", err)
	}
	if err := r.store.Set(ctx, sessioncache.SearchKey(sessionID), searchPayload, r.config.SessionTTL); err != nil {
		return fmt.Errorf("storing resolved citations: %w", err)
	}

	queryPayload, err := json.Marshal(originals)
	if err != nil {
		return fmt.Errorf("encoding original queries: %w", err)
	}
	if err := r.store.Set(ctx, sessioncache.QueryKey(sessionID), queryPayload, r.config.SessionTTL); err != nil {
		return fmt.Errorf("storing original queries: %w", err)
	}

	typePayload, err := json.Marshal(session.ItemType)
	if err != nil {
		return fmt.Errorf("encoding item type: %w", err)
	}
	if err := r.store.Set(ctx, sessioncache.TypeKey(sessionID), typePayload, r.config.SessionTTL); err != nil {
		return fmt.Errorf("storing item type: %w", err)
	}

	return nil
}

// publishProgress records progress in the session store and notifies
// the sink. Progress is advisory; failures are logged, not returned.
func (r *Resolver) publishProgress(ctx context.Context, sessionID string, progress domain.BatchProgress) {
	payload, err := json.Marshal(progress)
	if err == nil {
		if err := r.store.Set(ctx, sessioncache.ProgressKey(sessionID), payload, r.config.SessionTTL); err != nil {
			r.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to store batch progress")
		}
	}

	if r.sink != nil {
		r.sink.Publish(ctx, sessionID, progress)
	}
}

// percentage computes the rounded completion percentage.
func percentage(current, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

// sleepWithContext sleeps for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
