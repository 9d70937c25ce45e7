// Package metrics holds the prometheus collectors lupa records into.
// Each Registry owns a private prometheus registry so tests and embedded
// uses never collide on the global default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all lupa metrics
type Registry struct {
	registry *prometheus.Registry

	SourceCallsTotal      *prometheus.CounterVec
	SourceCallDuration    *prometheus.HistogramVec
	StageDuration         *prometheus.HistogramVec
	InvestigationsTotal   *prometheus.CounterVec
	CacheLookupsTotal     *prometheus.CounterVec
	NetworksDetectedTotal *prometheus.CounterVec
	GraphNodes            prometheus.Gauge
	GraphEdges            prometheus.Gauge
}

// NewRegistry creates a registry with every collector registered
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initSourceMetrics()
	r.initInvestigationMetrics()
	r.initGraphMetrics()
	return r
}

func (r *Registry) initSourceMetrics() {
	r.SourceCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lupa_source_calls_total",
			Help: "Source calls by final status",
		},
		[]string{"source", "status"},
	)

	r.SourceCallDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lupa_source_call_duration_seconds",
			Help:    "Source call duration including retries and fallback",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	r.CacheLookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lupa_cache_lookups_total",
			Help: "Source payload cache lookups by result",
		},
		[]string{"result"},
	)
}

func (r *Registry) initInvestigationMetrics() {
	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lupa_stage_duration_seconds",
			Help:    "Stage duration by derived status",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	r.InvestigationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lupa_investigations_total",
			Help: "Finished investigations by intent and status",
		},
		[]string{"intent", "status"},
	)
}

func (r *Registry) initGraphMetrics() {
	r.NetworksDetectedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lupa_networks_detected_total",
			Help: "Suspicious networks created or refreshed by detector runs",
		},
		[]string{"type"},
	)

	r.GraphNodes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lupa_graph_nodes",
		Help: "Nodes in the persistent network graph",
	})

	r.GraphEdges = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "lupa_graph_edges",
		Help: "Edges in the persistent network graph",
	})
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteToTextfile writes all metrics in the text exposition format
func (r *Registry) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// RecordSourceCall records the final outcome of one source call.
// Nil registries are allowed so components can run without metrics.
func (r *Registry) RecordSourceCall(source, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.SourceCallsTotal.WithLabelValues(source, status).Inc()
	r.SourceCallDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func (r *Registry) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordStage records a finished stage
func (r *Registry) RecordStage(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordInvestigation records a terminal investigation
func (r *Registry) RecordInvestigation(intent, status string) {
	if r == nil {
		return
	}
	r.InvestigationsTotal.WithLabelValues(intent, status).Inc()
}

// RecordNetworkDetected records a detector hit
func (r *Registry) RecordNetworkDetected(networkType string) {
	if r == nil {
		return
	}
	r.NetworksDetectedTotal.WithLabelValues(networkType).Inc()
}

// SetGraphSize updates the graph size gauges
func (r *Registry) SetGraphSize(nodes, edges int) {
	if r == nil {
		return
	}
	r.GraphNodes.Set(float64(nodes))
	r.GraphEdges.Set(float64(edges))
}
