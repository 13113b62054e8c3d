package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_ensemble"

// Metrics holds the Prometheus collectors for training and serving.
type Metrics struct {
	// Serving.
	PredictionsTotal   *prometheus.CounterVec // labels: outcome={success,weather_unavailable,not_found,error}
	PredictionDuration prometheus.Histogram
	ModelFallbacks     *prometheus.CounterVec // labels: model
	ModelsTrained      *prometheus.GaugeVec   // labels: model

	// Weather collaborator.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error}
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}
	WeatherAPIDuration prometheus.Histogram

	// Training pipeline.
	PipelineRunning       prometheus.Gauge
	ReconcileFilesSkipped prometheus.Counter
	ReconcileRows         prometheus.Gauge
	TrainingRuns          *prometheus.CounterVec   // labels: model, outcome={success,skipped,error}
	TrainingDuration      *prometheus.HistogramVec // labels: model
	EvaluationScore       *prometheus.GaugeVec     // labels: model, metric
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PredictionsTotal,
		m.PredictionDuration,
		m.ModelFallbacks,
		m.ModelsTrained,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.PipelineRunning,
		m.ReconcileFilesSkipped,
		m.ReconcileRows,
		m.TrainingRuns,
		m.TrainingDuration,
		m.EvaluationScore,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Point predictions by outcome.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Duration of a point prediction including the weather fetch.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ModelFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Predictions where an untrained model contributed the neutral 0.5.",
		}, []string{"model"}),
		ModelsTrained: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_trained",
			Help:      "1 when the model slot holds a trained artifact, 0 otherwise.",
		}, []string{"model"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Live weather API requests by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Live weather cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Live weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a training pipeline run is active.",
		}),
		ReconcileFilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_files_skipped_total",
			Help:      "Weather source files skipped as malformed.",
		}),
		ReconcileRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_rows",
			Help:      "Labeled rows produced by the last reconciliation.",
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Trainer executions by model and outcome.",
		}, []string{"model", "outcome"}),
		TrainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of a single trainer.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"model"}),
		EvaluationScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Latest held-out evaluation score by model and metric.",
		}, []string{"model", "metric"}),
	}
}
