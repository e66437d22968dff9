package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/models"
)

func TestObserveBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m.ObserveBatch(&models.BatchResult{
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Paid:       3,
		Matured:    1,
		Failed:     2,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRuns.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchItems.WithLabelValues(models.ItemPaid)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchItems.WithLabelValues(models.ItemFailed)))
	assert.Equal(t, float64(start.Add(2*time.Second).Unix()), testutil.ToFloat64(m.BatchLastRun))

	count, err := testutil.GatherAndCount(reg, "accrue_payout_batch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBatch(&models.BatchResult{})
		m.BatchRejected()
		m.Transition("create", models.StatusActive)
		m.Paid(10)
		m.LedgerFailure("debit")
		m.Compensated()
		m.NeedsReview()
		m.ObserveRequest("/api/health", 200, time.Millisecond)
	})
}

func TestUnregisteredMetricsStillCount(t *testing.T) {
	m := New(nil)
	m.Transition("approve", models.StatusActive)
	m.Transition("approve", models.StatusActive)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("approve", "active")))
}

func TestObserveRequestGroupsStatusClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRequest("/api/payouts/runs", 409, 5*time.Millisecond)
	m.ObserveRequest("/api/payouts/runs", 404, 5*time.Millisecond)
	m.ObserveRequest("/api/health", 200, time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "accrue_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "4xx responses share one series per route")
}
