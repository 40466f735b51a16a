package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_api_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "churn_api_active_requests",
			Help: "Requests currently being served",
		},
	)

	// Predictions
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_predictions_total",
			Help: "Predictions served, by predicted label",
		},
		[]string{"label"},
	)

	PredictionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "churn_prediction_errors_total",
			Help: "Prediction requests that failed",
		},
	)

	PredictionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "churn_prediction_cache_hits_total",
			Help: "Predictions answered from the LRU cache",
		},
	)

	PredictionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "churn_prediction_cache_misses_total",
			Help: "Predictions computed by the model",
		},
	)

	// Training
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_training_runs_total",
			Help: "Pipeline runs by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "churn_training_duration_seconds",
			Help:    "Wall time of training runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ModelScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "churn_model_score",
			Help: "Test-set scores of the most recent run",
		},
		[]string{"metric"},
	)

	ModelSwaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "churn_model_swaps_total",
			Help: "Times a new model was installed for serving",
		},
	)

	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "churn_model_loaded",
			Help: "1 when a model is available for serving",
		},
	)
)

func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

func RecordPrediction(label int, err error) {
	if err != nil {
		PredictionErrors.Inc()
		return
	}
	PredictionsTotal.WithLabelValues(strconv.Itoa(label)).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		PredictionCacheHits.Inc()
	} else {
		PredictionCacheMisses.Inc()
	}
}

// RecordTrainingRun counts a run and, on success, publishes its scores.
func RecordTrainingRun(mode string, duration time.Duration, scores map[string]float64, err error) {
	if err != nil {
		TrainingRuns.WithLabelValues(mode, "error").Inc()
		return
	}
	TrainingRuns.WithLabelValues(mode, "success").Inc()
	if mode == "train" {
		TrainingDuration.Observe(duration.Seconds())
	}
	for name, v := range scores {
		ModelScore.WithLabelValues(name).Set(v)
	}
}

func RecordModelSwap() {
	ModelSwaps.Inc()
	ModelLoaded.Set(1)
}
