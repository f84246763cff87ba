// Package metrics exposes reconciliation metrics in Prometheus format. A
// one-shot CLI has nothing to scrape, so runs are written to a node_exporter
// textfile instead.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/topoctl/internal/brand"
)

// Registry holds the metrics of one process. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg *prometheus.Registry

	ObjectsTotal  *prometheus.CounterVec
	RetriesTotal  *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	LastRunTime   *prometheus.GaugeVec
	LastRunResult *prometheus.GaugeVec
	DeclaredTotal prometheus.Gauge
}

// New returns a registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	ns := brand.LowerName

	return &Registry{
		reg: reg,

		ObjectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "objects_total",
			Help:      "Objects processed, by action, kind and outcome",
		}, []string{"action", "kind", "outcome"}),

		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "retries_total",
			Help:      "Retried kernel operations, by action and kind",
		}, []string{"action", "kind"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of apply and teardown runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"action"}),

		LastRunTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of each action finished",
		}, []string{"action"}),

		LastRunResult: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "last_run_success",
			Help:      "1 if the last run of each action left nothing failed or skipped",
		}, []string{"action"}),

		DeclaredTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "declared_objects",
			Help:      "Objects in the last loaded topology",
		}),
	}
}

// Gatherer exposes the underlying registry, for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveObject counts one processed object.
func (r *Registry) ObserveObject(action, kind, outcome string) {
	if r == nil {
		return
	}
	r.ObjectsTotal.WithLabelValues(action, kind, outcome).Inc()
}

// ObserveRetry counts one retried attempt.
func (r *Registry) ObserveRetry(action, kind string) {
	if r == nil {
		return
	}
	r.RetriesTotal.WithLabelValues(action, kind).Inc()
}

// ObserveRun records a finished run.
func (r *Registry) ObserveRun(action string, started, finished time.Time, success bool) {
	if r == nil {
		return
	}
	r.RunDuration.WithLabelValues(action).Observe(finished.Sub(started).Seconds())
	r.LastRunTime.WithLabelValues(action).Set(float64(finished.Unix()))
	result := 0.0
	if success {
		result = 1
	}
	r.LastRunResult.WithLabelValues(action).Set(result)
}

// SetDeclared records the size of the loaded topology.
func (r *Registry) SetDeclared(n int) {
	if r == nil {
		return
	}
	r.DeclaredTotal.Set(float64(n))
}

// WriteTextfile writes the registry to dir/<name>.prom for the node_exporter
// textfile collector. The write is atomic.
func (r *Registry) WriteTextfile(dir string) (string, error) {
	if r == nil {
		return "", nil
	}
	path := filepath.Join(dir, brand.LowerName+".prom")
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return "", fmt.Errorf("write metrics textfile: %w", err)
	}
	return path, nil
}
