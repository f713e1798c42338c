package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTransition(t *testing.T) {
	m := NewMetrics("telemed", prometheus.NewRegistry())

	m.ObserveTransition("accept", nil)
	m.ObserveTransition("accept", nil)
	m.ObserveTransition("accept", errors.New("full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsultationTransitions.WithLabelValues("accept", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsultationTransitions.WithLabelValues("accept", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("complete", nil)
		m.ObserveCapacityRejection()
		m.ObserveRelationshipCheck(true)
		m.ObserveEmergencyAction("escalate", nil)
		m.ObserveOutboxProcessed()
		m.ObserveOutboxRetry("emergency.created")
		m.ObserveAuditDeleted(3)
	})
}
