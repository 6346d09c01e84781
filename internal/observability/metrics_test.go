package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_citation_importer_new")

	assert.NotNil(t, m.BatchesStarted)
	assert.NotNil(t, m.BatchesCompleted)
	assert.NotNil(t, m.BatchesFailed)
	assert.NotNil(t, m.BatchDuration)
	assert.NotNil(t, m.QueriesPerBatch)
	assert.NotNil(t, m.Lookups)
	assert.NotNil(t, m.LookupDuration)
	assert.NotNil(t, m.LookupRateLimited)
	assert.NotNil(t, m.ItemsImported)
	assert.NotNil(t, m.ItemsSkipped)
	assert.NotNil(t, m.ItemsFailed)
	assert.NotNil(t, m.SessionReads)
	assert.NotNil(t, m.SessionEntriesPurged)
}

func TestRecordBatchStarted(t *testing.T) {
	m := NewMetrics("test_batch_started")

	initial := testutil.ToFloat64(m.BatchesStarted)
	m.RecordBatchStarted(45)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.BatchesStarted))
}

func TestRecordBatchCompleted(t *testing.T) {
	m := NewMetrics("test_batch_completed")

	initial := testutil.ToFloat64(m.BatchesCompleted)
	m.RecordBatchCompleted(12.5)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.BatchesCompleted))

	// Check histogram
	histCount, err := getHistogramSampleCount(m.BatchDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordBatchFailed(t *testing.T) {
	m := NewMetrics("test_batch_failed")

	initial := testutil.ToFloat64(m.BatchesFailed)
	m.RecordBatchFailed(3.0)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.BatchesFailed))
}

func TestRecordLookup(t *testing.T) {
	m := NewMetrics("test_lookup")

	m.RecordLookup("ok", 0.25)
	m.RecordLookup("not_found", 0.5)
	m.RecordLookup("ok", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Lookups.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Lookups.WithLabelValues("not_found")))
}

func TestRecordLookupRateLimited(t *testing.T) {
	m := NewMetrics("test_lookup_rate_limited")

	initial := testutil.ToFloat64(m.LookupRateLimited)
	m.RecordLookupRateLimited()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.LookupRateLimited))
}

func TestRecordItemOutcomes(t *testing.T) {
	m := NewMetrics("test_item_outcomes")

	m.RecordItemImported()
	m.RecordItemImported()
	m.RecordItemSkipped()
	m.RecordItemFailed()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ItemsImported))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ItemsSkipped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ItemsFailed))
}

func TestRecordSessionRead(t *testing.T) {
	m := NewMetrics("test_session_read")

	m.RecordSessionRead(true)
	m.RecordSessionRead(true)
	m.RecordSessionRead(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionReads.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionReads.WithLabelValues("miss")))
}

func TestRecordSessionEntriesPurged(t *testing.T) {
	m := NewMetrics("test_session_purged")

	initial := testutil.ToFloat64(m.SessionEntriesPurged)
	m.RecordSessionEntriesPurged(7)
	assert.Equal(t, initial+7, testutil.ToFloat64(m.SessionEntriesPurged))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
