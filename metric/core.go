package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the node-level metrics shared by every pipeline
type Metrics struct {
	PipelinesActive    prometheus.Gauge
	PipelineStatus     *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	EnvironmentRunning *prometheus.GaugeVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		PipelinesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "micropipe",
				Subsystem: "pipeline",
				Name:      "active",
				Help:      "Number of pipelines currently running on this node",
			},
		),

		PipelineStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "micropipe",
				Subsystem: "pipeline",
				Name:      "instantiations_total",
				Help:      "Pipeline instantiation attempts by resulting status",
			},
			[]string{"status"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "micropipe",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of messages handled by runtime environments",
			},
			[]string{"pipeline", "component"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "micropipe",
				Subsystem: "messages",
				Name:      "duration_seconds",
				Help:      "Per-message processing duration in seconds",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"pipeline", "component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "micropipe",
				Subsystem: "messages",
				Name:      "errors_total",
				Help:      "Total number of messages whose processing failed",
			},
			[]string{"pipeline", "component"},
		),

		EnvironmentRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "micropipe",
				Subsystem: "environment",
				Name:      "running",
				Help:      "Runtime environment state (0=stopped, 1=running)",
			},
			[]string{"pipeline", "component"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "micropipe",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "micropipe",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.PipelinesActive,
		c.PipelineStatus,
		c.MessagesProcessed,
		c.ProcessingDuration,
		c.ErrorsTotal,
		c.EnvironmentRunning,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordPipelineStatus counts an instantiation attempt
func (c *Metrics) RecordPipelineStatus(status string) {
	c.PipelineStatus.WithLabelValues(status).Inc()
}

// RecordMessage records one processed message and its duration
func (c *Metrics) RecordMessage(pipeline, component string, duration time.Duration) {
	c.MessagesProcessed.WithLabelValues(pipeline, component).Inc()
	c.ProcessingDuration.WithLabelValues(pipeline, component).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(pipeline, component string) {
	c.ErrorsTotal.WithLabelValues(pipeline, component).Inc()
}

// RecordEnvironmentState updates the running gauge of an environment
func (c *Metrics) RecordEnvironmentState(pipeline, component string, running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	c.EnvironmentRunning.WithLabelValues(pipeline, component).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
