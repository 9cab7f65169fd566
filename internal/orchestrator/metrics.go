package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Counters
	tasksProcessed      *prometheus.CounterVec
	dispatchSkips       *prometheus.CounterVec
	claimConflicts      prometheus.Counter
	auditAppendFailures prometheus.Counter

	// Gauges
	providerHealthy *prometheus.GaugeVec
	agentsDegraded  *prometheus.GaugeVec

	// Histograms
	batchDuration   prometheus.Histogram
	handlerDuration *prometheus.HistogramVec
	probeDuration   *prometheus.HistogramVec
}

// NewMetrics creates all Prometheus metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_processed_total",
				Help: "Total number of tasks processed by outcome",
			},
			[]string{"action_kind", "outcome"},
		),
		dispatchSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_skips_total",
				Help: "Total number of tasks skipped before dispatch, by reason",
			},
			[]string{"reason"},
		),
		claimConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "task_claim_conflicts_total",
				Help: "Total number of claim swaps lost to another dispatcher instance",
			},
		),
		auditAppendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_append_failures_total",
				Help: "Total number of audit events that could not be appended",
			},
		),
		providerHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_healthy",
				Help: "Latest probe result per provider (1 healthy, 0 unhealthy)",
			},
			[]string{"org_id", "provider"},
		),
		agentsDegraded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agents_degraded",
				Help: "Number of agents currently degraded by provider health",
			},
			[]string{"org_id"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_batch_duration_seconds",
				Help:    "Duration of one dispatch batch",
				Buckets: prometheus.DefBuckets,
			},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "handler_duration_seconds",
				Help:    "Action handler execution duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"agent_key"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_duration_seconds",
				Help:    "Provider health probe duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(
		m.tasksProcessed,
		m.dispatchSkips,
		m.claimConflicts,
		m.auditAppendFailures,
		m.providerHealthy,
		m.agentsDegraded,
		m.batchDuration,
		m.handlerDuration,
		m.probeDuration,
	)

	return m
}
