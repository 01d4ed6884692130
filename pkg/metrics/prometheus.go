package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records forecast API metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	predictions    *prometheus.CounterVec
	predictLatency *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	modelLoaded    prometheus.Gauge
}

// New creates a recorder with a fresh registry, so several recorders can coexist in one process.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kicks_predictions_total",
				Help: "Total number of demand predictions by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		predictLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kicks_prediction_duration_seconds",
				Help:    "Duration of demand predictions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kicks_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kicks_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		modelLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kicks_model_loaded",
				Help: "1 when a trained model is available to the prediction backend",
			},
		),
	}
}

// RecordPrediction records one prediction. outcome is "ok" or an error kind.
func (r *Recorder) RecordPrediction(backend, outcome string, seconds float64) {
	r.predictions.WithLabelValues(backend, outcome).Inc()
	r.predictLatency.WithLabelValues(backend).Observe(seconds)
}

// RecordHTTPRequest records a served HTTP request.
func (r *Recorder) RecordHTTPRequest(method, route, status string, seconds float64) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(seconds)
}

// SetModelLoaded updates the model availability gauge.
func (r *Recorder) SetModelLoaded(loaded bool) {
	if loaded {
		r.modelLoaded.Set(1)
		return
	}
	r.modelLoaded.Set(0)
}

// Registry exposes the underlying registry (tests gather from it).
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the exposition format for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
