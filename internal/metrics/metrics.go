// Package metrics exposes Prometheus instruments for indexing runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// GraphSize is the subset of store statistics exported as gauges.
type GraphSize struct {
	Nodes     int
	Edges     int
	Locations int
	Errors    int
	Files     int
}

// Recorder owns a private registry so several engines (and tests) never
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	filesParsed   prometheus.Counter
	filesChanged  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	parseDuration prometheus.Histogram
	graphEntities *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thicket_index_runs_total",
			Help: "Indexing runs by outcome",
		}, []string{"outcome"}),
		filesParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "thicket_files_parsed_total",
			Help: "Files handed to a front end",
		}),
		filesChanged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thicket_files_changed_total",
			Help: "Files detected as changed, by change type",
		}, []string{"change"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "thicket_run_duration_seconds",
			Help:    "Wall-clock duration of a whole indexing run",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		}),
		parseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "thicket_parse_duration_seconds",
			Help:    "Duration of the parsing phase of a run",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		graphEntities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thicket_graph_entities",
			Help: "Entities currently held by the graph store",
		}, []string{"entity"}),
	}
}

// RunFinished records one run.
func (r *Recorder) RunFinished(outcome string, total, parse time.Duration) {
	r.runs.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		r.runDuration.Observe(total.Seconds())
		r.parseDuration.Observe(parse.Seconds())
	}
}

// FilesChanged records the diff of one run.
func (r *Recorder) FilesChanged(added, updated, removed int) {
	r.filesChanged.WithLabelValues("added").Add(float64(added))
	r.filesChanged.WithLabelValues("updated").Add(float64(updated))
	r.filesChanged.WithLabelValues("removed").Add(float64(removed))
	r.filesParsed.Add(float64(added + updated))
}

// GraphSize sets the entity gauges.
func (r *Recorder) GraphSize(s GraphSize) {
	r.graphEntities.WithLabelValues("nodes").Set(float64(s.Nodes))
	r.graphEntities.WithLabelValues("edges").Set(float64(s.Edges))
	r.graphEntities.WithLabelValues("locations").Set(float64(s.Locations))
	r.graphEntities.WithLabelValues("errors").Set(float64(s.Errors))
	r.graphEntities.WithLabelValues("files").Set(float64(s.Files))
}

// Registry returns the Recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
