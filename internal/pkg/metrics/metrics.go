// Package metrics exposes Prometheus counters for collection activity.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ServiceName string
	Environment string
}

// LoadConfig reads the constant labels from the environment.
func LoadConfig() Config {
	return Config{
		ServiceName: env.GetEnv("APP_NAME", "collectfox"),
		Environment: env.GetEnv("APP_ENV", "prod"),
	}
}

type CollectionMetrics struct {
	riskAssessments  *prometheus.CounterVec
	dunningActions   *prometheus.CounterVec
	campaignRuns     *prometheus.CounterVec
	campaignDuration prometheus.Histogram
	complianceBlocks *prometheus.CounterVec
	holds            *prometheus.CounterVec
	payments         *prometheus.CounterVec
}

var (
	collectionMetricsOnce sync.Once
	collectionMetrics     *CollectionMetrics
)

// Collections returns the process-wide metrics registered on the default registerer.
func Collections() *CollectionMetrics {
	collectionMetricsOnce.Do(func() {
		collectionMetrics = New(prometheus.DefaultRegisterer, LoadConfig())
	})
	return collectionMetrics
}

// New registers a fresh set of collectors; tests pass their own registry.
func New(registerer prometheus.Registerer, cfg Config) *CollectionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "collectfox"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &CollectionMetrics{
		riskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_risk_assessments_total",
			Help:        "Risk assessments by resulting level.",
			ConstLabels: constLabels,
		}, []string{"level"}),
		dunningActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_dunning_actions_total",
			Help:        "Dunning actions recorded by channel and status.",
			ConstLabels: constLabels,
		}, []string{"channel", "status"}),
		campaignRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_campaign_runs_total",
			Help:        "Campaign executions by result (completed | partial | cancelled | failed).",
			ConstLabels: constLabels,
		}, []string{"result"}),
		campaignDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "collectfox_campaign_duration_seconds",
			Help:        "Wall time of one campaign execution.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			ConstLabels: constLabels,
		}),
		complianceBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_compliance_blocks_total",
			Help:        "Collection actions blocked by the compliance gate, by regulation.",
			ConstLabels: constLabels,
		}, []string{"regulation"}),
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_account_holds_total",
			Help:        "Account hold transitions (suspended | restored | rolled_back).",
			ConstLabels: constLabels,
		}, []string{"event"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "collectfox_payments_total",
			Help:        "Processed payments by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
	}

	registerer.MustRegister(
		m.riskAssessments,
		m.dunningActions,
		m.campaignRuns,
		m.campaignDuration,
		m.complianceBlocks,
		m.holds,
		m.payments,
	)
	return m
}

func (m *CollectionMetrics) RiskAssessed(level string) {
	if m == nil {
		return
	}
	m.riskAssessments.WithLabelValues(level).Inc()
}

func (m *CollectionMetrics) ActionRecorded(channel, status string) {
	if m == nil {
		return
	}
	m.dunningActions.WithLabelValues(channel, status).Inc()
}

func (m *CollectionMetrics) CampaignFinished(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.campaignRuns.WithLabelValues(result).Inc()
	m.campaignDuration.Observe(took.Seconds())
}

func (m *CollectionMetrics) ComplianceBlocked(regulation string) {
	if m == nil {
		return
	}
	m.complianceBlocks.WithLabelValues(regulation).Inc()
}

func (m *CollectionMetrics) HoldEvent(event string) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(event).Inc()
}

func (m *CollectionMetrics) PaymentProcessed(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}
