package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the engine's prometheus collectors. A single instance is
// wired through the services; nil receivers are tolerated so unit tests can
// skip metrics entirely.
type Metrics struct {
	AuditEntriesTotal       *prometheus.CounterVec
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitBypassesTotal  prometheus.Counter
	EmergencyGrantsTotal    prometheus.Counter
	EmergencyUsesTotal      prometheus.Counter
	EmergencyRevokedTotal   prometheus.Counter
	EmergencyExpiredTotal   prometheus.Counter
	RequestDuration         *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		AuditEntriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medgate_audit_entries_total",
			Help: "Audit entries appended, by action and result",
		}, []string{"action", "result"}),
		RateLimitDecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medgate_ratelimit_decisions_total",
			Help: "Rate limit decisions, by operation and outcome",
		}, []string{"operation", "outcome"}),
		RateLimitBypassesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_ratelimit_bypasses_total",
			Help: "Requests admitted through a verified-identity bypass",
		}),
		EmergencyGrantsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_emergency_grants_total",
			Help: "Emergency access grants created",
		}),
		EmergencyUsesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_emergency_uses_total",
			Help: "Successful record accesses via emergency grants",
		}),
		EmergencyRevokedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_emergency_revocations_total",
			Help: "Emergency access grants revoked",
		}),
		EmergencyExpiredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_emergency_expirations_total",
			Help: "Emergency access grants transitioned to expired by the sweep",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medgate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) RecordAuditEntry(action, result string) {
	if m == nil {
		return
	}
	m.AuditEntriesTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) RecordRateLimitDecision(operation, outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisionsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordBypass() {
	if m == nil {
		return
	}
	m.RateLimitBypassesTotal.Inc()
}
