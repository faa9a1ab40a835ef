// Package metrics exposes Prometheus collectors for graph builds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pyimports"

// Build holds the collectors updated by every graph build.
type Build struct {
	FilesScanned     prometheus.Counter
	CacheHits        prometheus.Counter
	ParseErrors      prometheus.Counter
	ResolutionErrors prometheus.Counter
	Duration         *prometheus.HistogramVec
	Items            prometheus.Gauge
	Edges            prometheus.Gauge
	ExternalImports  prometheus.Gauge
	Cycles           prometheus.Gauge
}

// NewBuild registers the build collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewBuild(reg prometheus.Registerer) *Build {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Build{
		FilesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "files_total",
			Help:      "Python files scanned for imports",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "cache_hits_total",
			Help:      "Files whose statements came from the parse cache",
		}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "errors_total",
			Help:      "Files that could not be read or parsed",
		}),
		ResolutionErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "errors_total",
			Help:      "Import statements that could not be resolved",
		}),
		// Labels: phase (tree, scan, resolve, graph)
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Time spent per build phase",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"phase"}),
		Items: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "items",
			Help:      "Items in the last built graph",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Internal edges in the last built graph",
		}),
		ExternalImports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "external_imports",
			Help:      "Distinct external imports in the last built graph",
		}),
		Cycles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "cycles",
			Help:      "Import cycles in the last built graph",
		}),
	}
}

// ObservePhase records how long a build phase took since start.
func (b *Build) ObservePhase(phase string, start time.Time) {
	if b == nil {
		return
	}
	b.Duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// Scan records the outcome of a scan.
func (b *Build) Scan(files, cacheHits, errors int) {
	if b == nil {
		return
	}
	b.FilesScanned.Add(float64(files))
	b.CacheHits.Add(float64(cacheHits))
	b.ParseErrors.Add(float64(errors))
}

// Resolve records the number of statements that failed to resolve.
func (b *Build) Resolve(errors int) {
	if b == nil {
		return
	}
	b.ResolutionErrors.Add(float64(errors))
}

// Graph records the size of a freshly built graph.
func (b *Build) Graph(items, edges, externals, cycles int) {
	if b == nil {
		return
	}
	b.Items.Set(float64(items))
	b.Edges.Set(float64(edges))
	b.ExternalImports.Set(float64(externals))
	b.Cycles.Set(float64(cycles))
}
