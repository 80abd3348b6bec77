package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	runCounter     *prometheus.CounterVec
	rowsWritten    *prometheus.CounterVec
	geocodeLookups *prometheus.CounterVec
	downloads      *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs by trigger and status.",
		}, []string{"trigger", "status"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_rows_written_total",
			Help: "Total rows written per output table.",
		}, []string{"table"}),
		geocodeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geocode_lookups_total",
			Help: "Total geocoder lookups by outcome.",
		}, []string{"outcome"}), // outcome: found, miss, error
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downloads_total",
			Help: "Total dataset downloads by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(m.stageDuration)
	registry.MustRegister(m.runCounter)
	registry.MustRegister(m.rowsWritten)
	registry.MustRegister(m.geocodeLookups)
	registry.MustRegister(m.downloads)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRun(trigger, status string) {
	if m == nil {
		return
	}
	m.runCounter.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) AddRows(table string, rows int) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(table).Add(float64(rows))
}

func (m *Metrics) RecordGeocode(outcome string) {
	if m == nil {
		return
	}
	m.geocodeLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDownload(outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
}
