// Package metrics keeps per-run counters and writes them in the prometheus
// text format for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the counters of one pipeline run. All methods are safe on
// a nil Recorder.
type Recorder struct {
	reg *prometheus.Registry

	downloads   prometheus.Counter
	attempts    prometheus.Counter
	cacheHits   prometheus.Counter
	publishes   prometheus.Counter
	failures    *prometheus.CounterVec
	phases      *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
}

// New registers the artifreight collectors on a private registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifreight_downloads_total",
			Help: "Artifact downloads that completed verification.",
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifreight_download_attempts_total",
			Help: "Download attempts including retries.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifreight_stage_cache_hits_total",
			Help: "Stage requests served from an existing staged root.",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifreight_publish_total",
			Help: "Images pushed and recorded.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artifreight_pipeline_failures_total",
			Help: "Pipeline failures by stage of the run.",
		}, []string{"stage"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artifreight_phase_duration_seconds",
			Help:    "Wall time spent in each pipeline phase.",
			Buckets: []float64{0.1, 1, 5, 15, 60, 180, 600, 1800},
		}, []string{"phase"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artifreight_last_success_timestamp_seconds",
			Help: "Unix time of the last successful release.",
		}),
	}
	r.reg.MustRegister(r.downloads, r.attempts, r.cacheHits, r.publishes, r.failures, r.phases, r.lastSuccess)
	return r
}

// Staged counts one stage call. attempts is zero on a cache hit.
func (r *Recorder) Staged(cacheHit bool, attempts int) {
	if r == nil {
		return
	}
	if cacheHit {
		r.cacheHits.Inc()
		return
	}
	r.downloads.Inc()
	r.attempts.Add(float64(attempts))
}

// Published counts a recorded push and stamps the success time.
func (r *Recorder) Published(at time.Time) {
	if r == nil {
		return
	}
	r.publishes.Inc()
	r.lastSuccess.Set(float64(at.Unix()))
}

// Failed counts a failure in phase.
func (r *Recorder) Failed(phase string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(phase).Inc()
}

// Observe records how long phase took.
func (r *Recorder) Observe(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phases.WithLabelValues(phase).Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile atomically writes every collector to path. An empty path
// is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
