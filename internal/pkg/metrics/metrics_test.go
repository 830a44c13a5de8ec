package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollectionMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry(), Config{ServiceName: "test", Environment: "test"})

	m.ActionRecorded("email", "sent")
	m.ActionRecorded("email", "sent")
	m.ActionRecorded("sms", "blocked")
	m.HoldEvent("suspended")
	m.CampaignFinished("completed", 2*time.Second)

	assert.Equal(t, 2.0, counterValue(t, m.dunningActions.WithLabelValues("email", "sent")))
	assert.Equal(t, 1.0, counterValue(t, m.dunningActions.WithLabelValues("sms", "blocked")))
	assert.Equal(t, 1.0, counterValue(t, m.holds.WithLabelValues("suspended")))
	assert.Equal(t, 1.0, counterValue(t, m.campaignRuns.WithLabelValues("completed")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *CollectionMetrics
	assert.NotPanics(t, func() {
		m.RiskAssessed("low")
		m.ActionRecorded("email", "sent")
		m.PaymentProcessed("completed")
	})
}
