// Package metrics records import and weather sync activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by every metrics backend
type Recorder interface {
	// RecordJobFinished records a terminal job transition; code is empty for completed jobs.
	RecordJobFinished(status, code string, duration time.Duration, imported int)
	// RecordWeatherCall records one provider request, outcome is "ok" or "error".
	RecordWeatherCall(outcome string)
	// RecordWeatherDaysStored records how many days were written to the cache.
	RecordWeatherDaysStored(count int)
}

// NoOpRecorder discards everything
type NoOpRecorder struct{}

func (NoOpRecorder) RecordJobFinished(string, string, time.Duration, int) {}
func (NoOpRecorder) RecordWeatherCall(string)                             {}
func (NoOpRecorder) RecordWeatherDaysStored(int)                          {}

// PrometheusRecorder exposes the metrics on its own registry
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobStatusCounter    *prometheus.CounterVec
	jobDurationSeconds  *prometheus.HistogramVec
	importedReadings    prometheus.Counter
	weatherCallsCounter *prometheus.CounterVec
	weatherDaysStored   prometheus.Counter
}

// NewPrometheusRecorder registers the collectors on a fresh registry
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailywatt_import_jobs_total",
			Help: "Total number of finished import jobs by status and error code.",
		}, []string{"status", "error_code"}),
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dailywatt_import_job_duration_seconds",
			Help:    "Duration of import jobs from Running to a terminal state.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		importedReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailywatt_imported_readings_total",
			Help: "Total number of readings written by import jobs.",
		}),
		weatherCallsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailywatt_weather_provider_calls_total",
			Help: "Total number of weather provider requests by outcome.",
		}, []string{"outcome"}),
		weatherDaysStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailywatt_weather_days_stored_total",
			Help: "Total number of weather days written to the cache.",
		}),
	}

	registry.MustRegister(r.jobStatusCounter)
	registry.MustRegister(r.jobDurationSeconds)
	registry.MustRegister(r.importedReadings)
	registry.MustRegister(r.weatherCallsCounter)
	registry.MustRegister(r.weatherDaysStored)

	return r
}

// Registry returns the Prometheus registry
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the exposition format
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) RecordJobFinished(status, code string, duration time.Duration, imported int) {
	r.jobStatusCounter.WithLabelValues(status, code).Inc()
	r.jobDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if imported > 0 {
		r.importedReadings.Add(float64(imported))
	}
	logger.Debugf("Metrics: job finished with status %s (%s) in %v", status, code, duration)
}

func (r *PrometheusRecorder) RecordWeatherCall(outcome string) {
	r.weatherCallsCounter.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) RecordWeatherDaysStored(count int) {
	if count > 0 {
		r.weatherDaysStored.Add(float64(count))
	}
}
