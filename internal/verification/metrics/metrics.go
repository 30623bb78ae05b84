// Package metrics exposes Prometheus metrics for the verification workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification workflow.
type Metrics struct {
	AttemptsTotal  *prometheus.CounterVec
	OverridesTotal *prometheus.CounterVec
	UploadsTotal   *prometheus.CounterVec
	UploadBytes    prometheus.Histogram
	VerifyDuration prometheus.Histogram
	SessionsEnded  prometheus.Counter
	StaleResponses prometheus.Counter
}

// New creates and registers all verification metrics.
func New() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_verification_attempts_total",
			Help: "Automated verification attempts by outcome",
		}, []string{"outcome"}),
		OverridesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_manual_overrides_total",
			Help: "Manual override submissions by result",
		}, []string{"result"}),
		UploadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_asset_uploads_total",
			Help: "Asset staging operations by role and result",
		}, []string{"role", "result"}),
		UploadBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_asset_upload_bytes",
			Help:    "Size of staged assets in bytes",
			Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_verify_duration_seconds",
			Help:    "Duration of remote verification calls",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verigate_sessions_ended_total",
			Help: "Verification sessions explicitly ended",
		}),
		StaleResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verigate_stale_responses_dropped_total",
			Help: "Verification responses discarded because the session moved on",
		}),
	}
}

// ObserveVerify records one completed remote verification call.
func (m *Metrics) ObserveVerify(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.VerifyDuration.Observe(time.Since(started).Seconds())
}

// ObserveUpload records one staging operation.
func (m *Metrics) ObserveUpload(role, result string, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(role, result).Inc()
	if result == "ok" {
		m.UploadBytes.Observe(float64(bytes))
	}
}

// ObserveOverride records one override submission.
func (m *Metrics) ObserveOverride(result string) {
	if m == nil {
		return
	}
	m.OverridesTotal.WithLabelValues(result).Inc()
}

// ObserveStaleResponse records a discarded in-flight response.
func (m *Metrics) ObserveStaleResponse() {
	if m == nil {
		return
	}
	m.StaleResponses.Inc()
}

// ObserveSessionEnded records an explicit session termination.
func (m *Metrics) ObserveSessionEnded() {
	if m == nil {
		return
	}
	m.SessionsEnded.Inc()
}
