package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storage_guard"

// Metrics groups every collector the scanner exposes. A nil *Metrics is valid
// and records nothing, so components can be constructed without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal          *prometheus.CounterVec
	scanDuration        *prometheus.HistogramVec
	resourcesChecked    *prometheus.CounterVec
	resourceErrors      *prometheus.CounterVec
	findingTransitions  *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
	providerRetries     *prometheus.CounterVec
	providerCalls       *prometheus.CounterVec
	lastScanCompletedAt prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(registry)
}

func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "account_scans_total",
			Help:      "Account scans by provider and outcome.",
		}, []string{"provider", "outcome"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "account_scan_duration_seconds",
			Help:      "Duration of a single account scan.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"provider"}),
		resourcesChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "resources_checked_total",
			Help:      "Resources whose controls were evaluated, by trigger source.",
		}, []string{"source"}),
		resourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "resource_errors_total",
			Help:      "Resources skipped because of an error, by error kind.",
		}, []string{"kind"}),
		findingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "findings",
			Name:      "transitions_total",
			Help:      "Finding lifecycle transitions.",
		}, []string{"control_id", "transition"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Change events by outcome.",
		}, []string{"outcome"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Provider calls retried after a transient error.",
		}, []string{"provider", "operation"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by operation and error kind.",
		}, []string{"provider", "operation", "kind"}),
		lastScanCompletedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "last_full_scan_timestamp_seconds",
			Help:      "Unix time of the last completed full reconciliation.",
		}),
	}

	registry.MustRegister(
		m.scansTotal,
		m.scanDuration,
		m.resourcesChecked,
		m.resourceErrors,
		m.findingTransitions,
		m.eventsTotal,
		m.providerRetries,
		m.providerCalls,
		m.lastScanCompletedAt,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AccountScanned(provider, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(provider, outcome).Inc()
	m.scanDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) FullScanCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.lastScanCompletedAt.Set(float64(at.Unix()))
}

func (m *Metrics) ResourceChecked(source string) {
	if m == nil {
		return
	}
	m.resourcesChecked.WithLabelValues(source).Inc()
}

func (m *Metrics) ResourceFailed(kind string) {
	if m == nil {
		return
	}
	m.resourceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) FindingTransition(controlID, transition string) {
	if m == nil {
		return
	}
	m.findingTransitions.WithLabelValues(controlID, transition).Inc()
}

func (m *Metrics) EventProcessed(outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProviderRetry(provider, operation string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(provider, operation).Inc()
}

func (m *Metrics) ProviderCall(provider, operation, kind string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation, kind).Inc()
}
