package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks provider attempts by terminal state
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofail_attempts_total",
			Help: "Total number of provider attempts",
		},
		[]string{"provider", "state"},
	)

	// AttemptLatency tracks provider call latency
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zerofail_attempt_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// QualityScore tracks assessed overall scores per provider
	QualityScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zerofail_quality_score",
			Help:    "Overall quality score of assessed content",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"provider", "class"},
	)

	// BackoffSeconds tracks delays spent waiting between retries
	BackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zerofail_backoff_seconds",
			Help:    "Backoff delay before a retry in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// ResultsTotal tracks delivered results by source
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofail_results_total",
			Help: "Total number of pipeline results",
		},
		[]string{"source", "class", "service_tier"},
	)

	// PipelineLatency tracks end-to-end request latency
	PipelineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zerofail_pipeline_latency_seconds",
			Help:    "End-to-end pipeline latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"source"},
	)

	// TemplateRate is the share of requests served by the template fallback
	TemplateRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zerofail_template_rate",
			Help: "Fraction of requests served from templates over the escalation window",
		},
	)

	// FailureRate is the share of provider attempts that failed
	FailureRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zerofail_failure_rate",
			Help: "Fraction of provider attempts that failed over the escalation window",
		},
	)

	// SLAViolations counts requests that exceeded their service tier SLA
	SLAViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofail_sla_violations_total",
			Help: "Total number of SLA violations",
		},
		[]string{"service_tier"},
	)

	// EscalationsTotal counts dispatched escalation signals
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofail_escalations_total",
			Help: "Total number of escalation signals dispatched",
		},
		[]string{"kind"},
	)

	// ProviderAvailable is 1 when the provider's breaker is closed
	ProviderAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zerofail_provider_available",
			Help: "Whether the provider is currently accepting calls",
		},
		[]string{"provider"},
	)

	// ComplianceRewrites counts disclaimer insertions
	ComplianceRewrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofail_compliance_rewrites_total",
			Help: "Total number of compliance disclaimers applied",
		},
		[]string{"rule"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zerofail_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
