package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// inference pipeline.
type Metrics struct {
	JobsConsumed     prometheus.Counter
	RunsCompleted    prometheus.Counter
	RunsSkipped      prometheus.Counter
	RunFailures      prometheus.Counter
	ResultsPublished prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Per-run metrics.
	RunDuration     prometheus.Histogram
	StageDuration   *prometheus.HistogramVec // label: stage={fetch,flatten,interpolate,predict,regrid,store}
	PointsProcessed prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "jobs_consumed_total",
			Help:      "Total job messages read from the job topic.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "runs_completed_total",
			Help:      "Total inference runs completed and published.",
		}),
		RunsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "runs_skipped_total",
			Help:      "Total jobs skipped because the run was already recorded.",
		}),
		RunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "run_failures_total",
			Help:      "Total jobs that failed parsing or inference.",
		}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "results_published_total",
			Help:      "Total run results written to the result topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ptype",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ptype",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of one inference run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ptype",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		PointsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptype",
			Name:      "grid_points_processed_total",
			Help:      "Total spatial grid points interpolated and classified.",
		}),
	}

	prometheus.MustRegister(
		m.JobsConsumed,
		m.RunsCompleted,
		m.RunsSkipped,
		m.RunFailures,
		m.ResultsPublished,
		m.PipelineRunning,
		m.RunDuration,
		m.StageDuration,
		m.PointsProcessed,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		JobsConsumed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "jobs_consumed_total"}),
		RunsCompleted:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "runs_completed_total"}),
		RunsSkipped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "runs_skipped_total"}),
		RunFailures:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "run_failures_total"}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "results_published_total"}),
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "ptype", Name: "pipeline_running"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "ptype", Name: "run_duration_seconds"}),
		StageDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "ptype", Name: "stage_duration_seconds"}, []string{"stage"}),
		PointsProcessed:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ptype", Name: "grid_points_processed_total"}),
	}
}
