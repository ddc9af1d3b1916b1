package jsonfilter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/metric"
)

// filterMetrics holds Prometheus metrics shared by every json-filter instance
// of a node. Instances are told apart by the component label.
type filterMetrics struct {
	messagesTotal      *prometheus.CounterVec // by component and status (matched/rejected/error)
	errors             *prometheus.CounterVec // by component and error_type
	evaluationDuration *prometheus.HistogramVec
	matchRate          *prometheus.GaugeVec
}

// newFilterMetrics creates and registers JSON filter metrics with the provided registry.
func newFilterMetrics(registry *metric.MetricsRegistry) (*filterMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &filterMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "json_filter",
			Name:      "messages_total",
			Help:      "Total number of messages evaluated by filter",
		}, []string{"component", "status"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "json_filter",
			Name:      "errors_total",
			Help:      "Total number of filter evaluation errors",
		}, []string{"component", "error_type"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "micropipe",
			Subsystem: "json_filter",
			Name:      "evaluation_duration_seconds",
			Help:      "Filter evaluation duration in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}, []string{"component"}),

		matchRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe",
			Subsystem: "json_filter",
			Name:      "match_rate",
			Help:      "Share of evaluated messages that passed the filter",
		}, []string{"component"}),
	}

	if err := registry.RegisterCounterVec("json_filter", "messages_total", m.messagesTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("json_filter", "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("json_filter", "evaluation_duration", m.evaluationDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("json_filter", "match_rate", m.matchRate); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *filterMetrics) recordEvaluation(component string, matched bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "rejected"
	if matched {
		status = "matched"
	}
	m.messagesTotal.WithLabelValues(component, status).Inc()
	m.evaluationDuration.WithLabelValues(component).Observe(duration.Seconds())
}

func (m *filterMetrics) recordError(component, errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(component, errorType).Inc()
	m.messagesTotal.WithLabelValues(component, "error").Inc()
}

func (m *filterMetrics) updateMatchRate(component string, matched, total int64) {
	if m == nil || total == 0 {
		return
	}
	m.matchRate.WithLabelValues(component).Set(float64(matched) / float64(total))
}
