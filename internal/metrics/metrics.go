// Package metrics exposes Prometheus instrumentation for the payout runner
// and money-moving lifecycle operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobmcallan/accrue/internal/models"
)

const namespace = "accrue"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	BatchRuns       *prometheus.CounterVec
	BatchItems      *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	BatchLastRun    prometheus.Gauge
	PaidOutTotal    prometheus.Counter
	Transitions     *prometheus.CounterVec
	LedgerFailures  *prometheus.CounterVec
	Compensations   prometheus.Counter
	PenaltiesReview prometheus.Counter
	HTTPRequests    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout_batch",
			Name:      "runs_total",
			Help:      "Payout batch runs by result (ok, rejected, error).",
		}, []string{"result"}),
		BatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout_batch",
			Name:      "items_total",
			Help:      "Investments handled by payout batches, by outcome.",
		}, []string{"outcome"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payout_batch",
			Name:      "duration_seconds",
			Help:      "Wall time of payout batch runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		BatchLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "payout_batch",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last payout batch finished.",
		}),
		PaidOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interest_paid_total",
			Help:      "Interest credited to owners across all currencies.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investment_transitions_total",
			Help:      "Investment lifecycle operations by operation and target status.",
		}, []string{"operation", "status"}),
		LedgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_failures_total",
			Help:      "Failed ledger calls by direction.",
		}, []string{"direction"}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_compensations_total",
			Help:      "Ledger movements reversed after a failed persist.",
		}),
		PenaltiesReview: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_needing_review_total",
			Help:      "Withdrawals whose penalty exceeded the requested amount.",
		}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BatchRuns, m.BatchItems, m.BatchDuration, m.BatchLastRun,
			m.PaidOutTotal, m.Transitions, m.LedgerFailures, m.Compensations, m.PenaltiesReview, m.HTTPRequests,
		)
	}
	return m
}

// ObserveBatch records a finished batch run.
func (m *Metrics) ObserveBatch(r *models.BatchResult) {
	if m == nil || r == nil {
		return
	}
	m.BatchRuns.WithLabelValues("ok").Inc()
	m.BatchItems.WithLabelValues(models.ItemPaid).Add(float64(r.Paid))
	m.BatchItems.WithLabelValues(models.ItemMatured).Add(float64(r.Matured))
	m.BatchItems.WithLabelValues(models.ItemSkipped).Add(float64(r.Skipped))
	m.BatchItems.WithLabelValues(models.ItemFailed).Add(float64(r.Failed))
	m.BatchDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	m.BatchLastRun.Set(float64(r.FinishedAt.Unix()))
}

// BatchRejected counts a run refused because another was in progress.
func (m *Metrics) BatchRejected() {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues("rejected").Inc()
}

// BatchFailed counts a run that could not list investments.
func (m *Metrics) BatchFailed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues("error").Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

// Transition counts a lifecycle operation.
func (m *Metrics) Transition(operation string, status models.InvestmentStatus) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(operation, string(status)).Inc()
}

// Paid adds interest paid to owners.
func (m *Metrics) Paid(amount float64) {
	if m == nil {
		return
	}
	m.PaidOutTotal.Add(amount)
}

// LedgerFailure counts a failed debit or credit.
func (m *Metrics) LedgerFailure(direction string) {
	if m == nil {
		return
	}
	m.LedgerFailures.WithLabelValues(direction).Inc()
}

// Compensated counts a reversed ledger movement.
func (m *Metrics) Compensated() {
	if m == nil {
		return
	}
	m.Compensations.Inc()
}

// NeedsReview counts a clamped withdrawal.
func (m *Metrics) NeedsReview() {
	if m == nil {
		return
	}
	m.PenaltiesReview.Inc()
}

// ObserveRequest records one HTTP request. code is the status class, e.g. "2xx".
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Observe(elapsed.Seconds())
}
