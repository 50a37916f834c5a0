// Package metrics exposes Prometheus collectors for schema migration runs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the migration collectors registered on a single registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	runs          *prometheus.CounterVec
	scripts       *prometheus.CounterVec
	scriptSeconds *prometheus.HistogramVec
	schemaVersion prometheus.Gauge
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdb_migration_runs_total",
			Help: "Migration runs by outcome.",
		}, []string{"outcome"}),

		scripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdb_migration_scripts_total",
			Help: "Migration scripts executed by direction and outcome.",
		}, []string{"direction", "outcome"}),

		scriptSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentdb_migration_script_duration_seconds",
			Help:    "Migration script execution time in seconds by version.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms → 16s
		}, []string{"version"}),

		schemaVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentdb_schema_version",
			Help: "Highest migration version recorded in the ledger.",
		}),
	}

	reg.MustRegister(r.runs, r.scripts, r.scriptSeconds, r.schemaVersion)
	return r
}

// CountRun records the terminal outcome of a run ("done", "aborted", "downgrade", ...).
func (r *Recorder) CountRun(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// ObserveScript records one script execution.
func (r *Recorder) ObserveScript(version int64, direction, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.scripts.WithLabelValues(direction, outcome).Inc()
	r.scriptSeconds.WithLabelValues(strconv.FormatInt(version, 10)).Observe(duration.Seconds())
}

// SetSchemaVersion sets the schema version gauge.
func (r *Recorder) SetSchemaVersion(version int64) {
	if r == nil {
		return
	}
	r.schemaVersion.Set(float64(version))
}
