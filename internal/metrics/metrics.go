// Package metrics exposes Prometheus collectors for reconciliation passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openstack_service_checks"

// Metrics wraps Prometheus collectors for the agent.
type Metrics struct {
	registry             *prometheus.Registry
	passDurationSeconds  prometheus.Histogram
	passesTotal          *prometheus.CounterVec
	registryChangesTotal *prometheus.CounterVec
	registeredChecks     *prometheus.GaugeVec
	stageConditions      *prometheus.GaugeVec
	transitionsTotal     *prometheus.CounterVec
	reloadsTotal         prometheus.Counter
	lastSuccessfulPass   prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		passDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by resulting workload level.",
		}, []string{"level"}),
		registryChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_changes_total",
			Help:      "Check definitions written or removed, by operation.",
		}, []string{"op"}),
		registeredChecks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_checks",
			Help:      "Checks currently registered, by family.",
		}, []string{"family"}),
		stageConditions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_not_active",
			Help:      "1 when a reconciliation stage reports a non-active condition.",
		}, []string{"stage", "level"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage transitions by stage and new level.",
		}, []string{"stage", "level"}),
		reloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nrpe_reloads_total",
			Help:      "NRPE daemon reloads triggered.",
		}),
		lastSuccessfulPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_pass_timestamp",
			Help:      "Unix timestamp of the last pass that completed.",
		}),
	}

	registry.MustRegister(
		m.passDurationSeconds,
		m.passesTotal,
		m.registryChangesTotal,
		m.registeredChecks,
		m.stageConditions,
		m.transitionsTotal,
		m.reloadsTotal,
		m.lastSuccessfulPass,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePass records a completed pass.
func (m *Metrics) ObservePass(duration time.Duration, level string, finished time.Time) {
	if m == nil {
		return
	}
	m.passDurationSeconds.Observe(duration.Seconds())
	m.passesTotal.WithLabelValues(level).Inc()
	m.lastSuccessfulPass.Set(float64(finished.Unix()))
}

// AddRegistryChanges counts additions and removals.
func (m *Metrics) AddRegistryChanges(added, removed int) {
	if m == nil {
		return
	}
	m.registryChangesTotal.WithLabelValues("add").Add(float64(added))
	m.registryChangesTotal.WithLabelValues("remove").Add(float64(removed))
}

// SetRegisteredChecks replaces the per-family check gauge.
func (m *Metrics) SetRegisteredChecks(counts map[string]int) {
	if m == nil {
		return
	}
	m.registeredChecks.Reset()
	for family, count := range counts {
		m.registeredChecks.WithLabelValues(family).Set(float64(count))
	}
}

// SetStageConditions replaces the per-stage condition gauge. conditions maps stage to level.
func (m *Metrics) SetStageConditions(conditions map[string]string) {
	if m == nil {
		return
	}
	m.stageConditions.Reset()
	for stage, level := range conditions {
		m.stageConditions.WithLabelValues(stage, level).Set(1)
	}
}

// IncTransition counts a stage transition.
func (m *Metrics) IncTransition(stage, level string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(stage, level).Inc()
}

// IncReloads counts an NRPE reload.
func (m *Metrics) IncReloads() {
	if m == nil {
		return
	}
	m.reloadsTotal.Inc()
}
