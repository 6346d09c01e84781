package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation import service.
// Metrics are organized by subsystem: batches, lookups, imports, and the
// session store. All counters and histograms are registered via promauto
// for automatic registration with the default Prometheus registry.
type Metrics struct {
	// BatchesStarted counts the total number of resolution batches initiated.
	BatchesStarted prometheus.Counter

	// BatchesCompleted counts the total number of batches that finished.
	BatchesCompleted prometheus.Counter

	// BatchesFailed counts the total number of batches abandoned before the end.
	BatchesFailed prometheus.Counter

	// BatchDuration observes the end-to-end duration of batches in seconds.
	BatchDuration prometheus.Histogram

	// QueriesPerBatch observes the distribution of queries per batch.
	QueriesPerBatch prometheus.Histogram

	// Lookups counts registry lookups, labeled by outcome.
	Lookups *prometheus.CounterVec

	// LookupDuration observes registry lookup duration in seconds.
	LookupDuration prometheus.Histogram

	// LookupRateLimited counts rate-limited responses from the registry.
	LookupRateLimited prometheus.Counter

	// ItemsImported counts content items created by the import step.
	ItemsImported prometheus.Counter

	// ItemsSkipped counts selections skipped during import.
	ItemsSkipped prometheus.Counter

	// ItemsFailed counts selections that failed during import.
	ItemsFailed prometheus.Counter

	// SessionReads counts session store reads, labeled by result.
	SessionReads *prometheus.CounterVec

	// SessionEntriesPurged counts expired session entries removed by the sweeper.
	SessionEntriesPurged prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Batches
		BatchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of citation resolution batches started",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of citation resolution batches completed",
		}),
		BatchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_failed_total",
			Help:      "Total number of citation resolution batches that failed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of citation resolution batches in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
		QueriesPerBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queries_per_batch",
			Help:      "Number of citation queries per batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}),

		// Lookups
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total number of registry lookups by outcome",
		}, []string{"status"}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Duration of registry lookups in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LookupRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_rate_limited_total",
			Help:      "Total number of rate limit responses from the registry",
		}),

		// Imports
		ItemsImported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_imported_total",
			Help:      "Total number of content items created from citations",
		}),
		ItemsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Total number of selected citations skipped during import",
		}),
		ItemsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Total number of selected citations that failed to import",
		}),

		// Session store
		SessionReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reads_total",
			Help:      "Total number of session store reads by result",
		}, []string{"result"}),
		SessionEntriesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_entries_purged_total",
			Help:      "Total number of expired session entries removed",
		}),
	}
}

// RecordBatchStarted records that a resolution batch has started.
func (m *Metrics) RecordBatchStarted(queryCount int) {
	m.BatchesStarted.Inc()
	m.QueriesPerBatch.Observe(float64(queryCount))
}

// RecordBatchCompleted records that a batch has completed.
func (m *Metrics) RecordBatchCompleted(durationSeconds float64) {
	m.BatchesCompleted.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordBatchFailed records that a batch was abandoned.
func (m *Metrics) RecordBatchFailed(durationSeconds float64) {
	m.BatchesFailed.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordLookup records a registry lookup and its outcome.
func (m *Metrics) RecordLookup(status string, durationSeconds float64) {
	m.Lookups.WithLabelValues(status).Inc()
	m.LookupDuration.Observe(durationSeconds)
}

// RecordLookupRateLimited records a rate limit response from the registry.
func (m *Metrics) RecordLookupRateLimited() {
	m.LookupRateLimited.Inc()
}

// RecordItemImported records a content item created from a citation.
func (m *Metrics) RecordItemImported() {
	m.ItemsImported.Inc()
}

// RecordItemSkipped records a selected citation that was skipped.
func (m *Metrics) RecordItemSkipped() {
	m.ItemsSkipped.Inc()
}

// RecordItemFailed records a selected citation that failed to import.
func (m *Metrics) RecordItemFailed() {
	m.ItemsFailed.Inc()
}

// RecordSessionRead records a session store read and whether it hit.
func (m *Metrics) RecordSessionRead(hit bool) {
	if hit {
		m.SessionReads.WithLabelValues("hit").Inc()
	} else {
		m.SessionReads.WithLabelValues("miss").Inc()
	}
}

// RecordSessionEntriesPurged records expired entries removed by the sweeper.
func (m *Metrics) RecordSessionEntriesPurged(count int64) {
	m.SessionEntriesPurged.Add(float64(count))
}
