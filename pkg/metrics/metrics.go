// Package metrics records scoring-run metrics in a private Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the run metrics.
type Recorder struct {
	registry *prometheus.Registry

	PhaseDuration  *prometheus.HistogramVec
	PointsScored   *prometheus.CounterVec
	ReportedPoints *prometheus.GaugeVec
	LSCCandidates  prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "densityguard_phase_duration_seconds",
				Help:    "Duration of scoring phases in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
			},
			[]string{"algorithm", "phase"},
		),

		PointsScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "densityguard_points_scored_total",
				Help: "Total number of points scored",
			},
			[]string{"algorithm"},
		),

		ReportedPoints: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "densityguard_reported_points",
				Help: "Points emitted by the last report, by region",
			},
			[]string{"algorithm", "region"},
		),

		LSCCandidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "densityguard_lsc_candidates",
				Help: "Points that passed the LSC candidate filter in the last run",
			},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObservePhase records the duration of one phase.
func (r *Recorder) ObservePhase(algorithm, phase string, d time.Duration) {
	r.PhaseDuration.WithLabelValues(algorithm, phase).Observe(d.Seconds())
}

// ObserveReport records the size of the regions of a report.
func (r *Recorder) ObserveReport(algorithm string, outliers, normal, rows int) {
	r.ReportedPoints.WithLabelValues(algorithm, "outliers").Set(float64(outliers))
	r.ReportedPoints.WithLabelValues(algorithm, "normal").Set(float64(normal))
	r.ReportedPoints.WithLabelValues(algorithm, "all").Set(float64(rows))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
