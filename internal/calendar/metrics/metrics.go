package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the calendar ingestion pipeline.
type Metrics struct {
	// Session outcomes by job name and terminal status
	SessionOutcome *prometheus.CounterVec

	// Per-record merge outcomes by cadence
	RecordOutcome *prometheus.CounterVec

	// Normalization rejections by reason
	Rejections *prometheus.CounterVec

	// Correction flags raised during merges
	Corrections prometheus.Counter

	// Timezone verification failures
	VerificationFailures prometheus.Counter

	// Full session latency, verification through finalize
	SessionLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all ingestion metrics registered.
func New() *Metrics {
	return &Metrics{
		SessionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calsync_sessions_total",
			Help: "Total scraping sessions by job name and terminal status",
		}, []string{"job", "status"}),

		RecordOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calsync_records_total",
			Help: "Per-record merge outcomes by cadence",
		}, []string{"cadence", "outcome"}), // outcome: "inserted", "updated", "unchanged", "rejected"

		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calsync_rejections_total",
			Help: "Records rejected during normalization by reason",
		}, []string{"reason"}),

		Corrections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calsync_corrections_total",
			Help: "Correction flags raised by merges against existing events",
		}),

		VerificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calsync_timezone_verification_failures_total",
			Help: "Sessions aborted because the source timezone could not be verified",
		}),

		SessionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calsync_session_duration_seconds",
			Help:    "Duration of a full session from verification to finalize",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
	}
}

// IncrementSession records a session's terminal status.
func (m *Metrics) IncrementSession(job, status string) {
	if m != nil {
		m.SessionOutcome.WithLabelValues(job, status).Inc()
	}
}

// IncrementRecord records one merge outcome.
func (m *Metrics) IncrementRecord(cadence, outcome string) {
	if m != nil {
		m.RecordOutcome.WithLabelValues(cadence, outcome).Inc()
	}
}

// IncrementRejection records a normalization rejection.
func (m *Metrics) IncrementRejection(reason string) {
	if m != nil {
		m.Rejections.WithLabelValues(reason).Inc()
	}
}

// AddCorrections records correction flags raised by a merge.
func (m *Metrics) AddCorrections(n int) {
	if m != nil && n > 0 {
		m.Corrections.Add(float64(n))
	}
}

// IncrementVerificationFailure records a session aborted at the timezone gate.
func (m *Metrics) IncrementVerificationFailure() {
	if m != nil {
		m.VerificationFailures.Inc()
	}
}

// ObserveSessionLatency records the duration of a full session.
func (m *Metrics) ObserveSessionLatency(job string, d time.Duration) {
	if m != nil {
		m.SessionLatency.WithLabelValues(job).Observe(d.Seconds())
	}
}
