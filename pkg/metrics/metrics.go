package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	// Domain metrics
	ConsultationTransitions *prometheus.CounterVec
	CapacityRejections      prometheus.Counter
	RelationshipChecks      *prometheus.CounterVec
	EmergencyActions        *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Retention
	AuditLogsDeleted prometheus.Counter
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsultationTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consultation",
			Name:      "transitions_total",
			Help:      "Consultation transitions by name and outcome",
		}, []string{"transition", "outcome"}),
		CapacityRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consultation",
			Name:      "capacity_rejections_total",
			Help:      "Accepts refused because the doctor was at capacity",
		}),
		RelationshipChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relationship",
			Name:      "checks_total",
			Help:      "Relationship gate checks by result",
		}, []string{"result"}),
		EmergencyActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "actions_total",
			Help:      "Emergency tracker actions by name and outcome",
		}, []string{"action", "outcome"}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Total number of outbox events moved to failed",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		AuditLogsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "logs_deleted_total",
			Help:      "Audit rows removed by the retention worker",
		}),
	}
}

// Outcome labels an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveTransition(transition string, err error) {
	if m == nil {
		return
	}
	m.ConsultationTransitions.WithLabelValues(transition, Outcome(err)).Inc()
}

func (m *Metrics) ObserveCapacityRejection() {
	if m == nil {
		return
	}
	m.CapacityRejections.Inc()
}

func (m *Metrics) ObserveRelationshipCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.RelationshipChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEmergencyAction(action string, err error) {
	if m == nil {
		return
	}
	m.EmergencyActions.WithLabelValues(action, Outcome(err)).Inc()
}

func (m *Metrics) ObserveOutboxProcessed() {
	if m == nil {
		return
	}
	m.OutboxEventsProcessed.Inc()
}

func (m *Metrics) ObserveOutboxFailed() {
	if m == nil {
		return
	}
	m.OutboxEventsFailed.Inc()
}

func (m *Metrics) ObserveOutboxRetry(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetries.WithLabelValues(eventType).Inc()
}

// ObserveOutboxBatch records how long one batch took.
func (m *Metrics) ObserveOutboxBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.OutboxProcessingLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveAuditDeleted(n int64) {
	if m == nil {
		return
	}
	m.AuditLogsDeleted.Add(float64(n))
}
