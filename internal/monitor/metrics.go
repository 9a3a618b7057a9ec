// internal/monitor/metrics.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shutter"

// Metrics holds the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Connected           prometheus.Gauge
	ConnectAttempts     *prometheus.CounterVec
	Measurements        *prometheus.CounterVec
	MeasurementDuration prometheus.Histogram
	ReadAttempts        prometheus.Histogram
	RejectedFrames      prometheus.Counter
	TelemetryFrames     prometheus.Counter
	DeviationPercent    *prometheus.HistogramVec
	EventsPublished     *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector, including the Go runtime
// and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 while a measuring board is connected",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by result",
		}, []string{"device", "result"}),
		Measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Measurement attempts by outcome",
		}, []string{"outcome"}),
		MeasurementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measurement_duration_seconds",
			Help:      "Time from start of an attempt to its terminal state",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ReadAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measurement_read_attempts",
			Help:      "Transport reads needed per successful measurement",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		RejectedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_frames_total",
			Help:      "Frames that looked like JSON but failed to decode",
		}),
		TelemetryFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_frames_total",
			Help:      "Frames decoded by the background listener",
		}),
		DeviationPercent: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deviation_percent",
			Help:      "Absolute deviation from the reference duration in percent",
			Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 25, 50, 100},
		}, []string{"sensor"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the broker by type and result",
		}, []string{"event_type", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connected,
		m.ConnectAttempts,
		m.Measurements,
		m.MeasurementDuration,
		m.ReadAttempts,
		m.RejectedFrames,
		m.TelemetryFrames,
		m.DeviationPercent,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)

	return m
}

// Registry exposes the registry for scraping and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConnect records a connect attempt
func (m *Metrics) ObserveConnect(device string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ConnectAttempts.WithLabelValues(device, result).Inc()
	if err == nil {
		m.Connected.Set(1)
	}
}

// ObserveDisconnect records a teardown
func (m *Metrics) ObserveDisconnect() {
	m.Connected.Set(0)
}

// ObserveMeasurement records a finished attempt. outcome is success, error or cancelled.
func (m *Metrics) ObserveMeasurement(outcome string, elapsed time.Duration) {
	m.Measurements.WithLabelValues(outcome).Inc()
	m.MeasurementDuration.Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records a served request
func (m *Metrics) ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePublish records a broker publish
func (m *Metrics) ObservePublish(eventType string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}
