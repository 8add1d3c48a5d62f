// Package metrics records pipeline throughput and stage durations in a Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for a pipeline run. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pixels processed by stage: "reclass", "transition", "zonal"
	Pixels *prometheus.CounterVec

	// Units of work by stage and outcome: "ok", "failed", "skipped"
	Units *prometheus.CounterVec

	// Stage wall time
	StageDuration *prometheus.HistogramVec

	// Area per tracked class of the most recent aggregation
	ClassArea *prometheus.GaugeVec
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Pixels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cobertura_pixels_processed_total",
			Help: "Pixels processed by pipeline stage",
		}, []string{"stage"}),

		Units: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cobertura_units_total",
			Help: "Units of work (bands, intervals, zones) by stage and outcome",
		}, []string{"stage", "outcome"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cobertura_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),

		ClassArea: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cobertura_class_area",
			Help: "Aggregated area of a tracked class for a year, in output area units",
		}, []string{"kind", "class", "year"}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddPixels records n pixels processed by stage.
func (m *Metrics) AddPixels(stage string, n int) {
	if m != nil {
		m.Pixels.WithLabelValues(stage).Add(float64(n))
	}
}

// IncUnit records one unit of work finishing with outcome.
func (m *Metrics) IncUnit(stage, outcome string) {
	if m != nil {
		m.Units.WithLabelValues(stage, outcome).Inc()
	}
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// SetClassArea records the area of class in year.
func (m *Metrics) SetClassArea(kind, class string, year int, area float64) {
	if m != nil {
		m.ClassArea.WithLabelValues(kind, class, fmt.Sprint(year)).Set(area)
	}
}

// WriteTextfile writes every metric in the text exposition format to path,
// suitable for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
