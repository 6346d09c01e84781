// Package observability provides logging and metrics support for the
// citation import service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for batches, lookups, imports, and the session store
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("session_id", sessionID).Msg("batch started")
//
// Add session context to a logger:
//
//	logger = observability.WithSessionContext(logger, sessionID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("citation_importer")
//
// Record metrics:
//
//	metrics.RecordBatchStarted(len(queries))
//	metrics.RecordLookup("ok", elapsed.Seconds())
//	metrics.RecordItemImported()
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithSessionID(ctx, sessionID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	sessionID := observability.SessionIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - session_id: Import session identifier
//   - query: Operator's citation query
//   - query_index: Position of the query within its batch
//   - doi: Resolved DOI
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
