package worker

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/metric"
)

const metricsOwner = "worker_pool"

type poolMetrics struct {
	active    prometheus.Gauge
	submitted prometheus.Counter
	failed    prometheus.Counter
	dropped   prometheus.Counter
	duration  *prometheus.HistogramVec
}

// newPoolMetrics registers the pool collectors as <prefix>_*. Registration
// failures are logged and leave the pool without metrics.
func newPoolMetrics(registry *metric.MetricsRegistry, prefix string, logger *slog.Logger) *poolMetrics {
	m := &poolMetrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_active",
			Help: "Tasks currently running",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Tasks accepted by Submit",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Tasks that returned an error or panicked",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Tasks rejected because every slot was taken",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_task_duration_seconds",
			Help:    "Task run time",
			Buckets: prometheus.ExponentialBuckets(0.001, 10, 7),
		}, []string{"status"}),
	}

	for name, err := range map[string]error{
		"active":    registry.RegisterGauge(metricsOwner, prefix+"_active", m.active),
		"submitted": registry.RegisterCounter(metricsOwner, prefix+"_submitted_total", m.submitted),
		"failed":    registry.RegisterCounter(metricsOwner, prefix+"_failed_total", m.failed),
		"dropped":   registry.RegisterCounter(metricsOwner, prefix+"_dropped_total", m.dropped),
		"duration":  registry.RegisterHistogramVec(metricsOwner, prefix+"_task_duration_seconds", m.duration),
	} {
		if err != nil {
			logger.Warn("worker pool metric registration failed", "prefix", prefix, "metric", name, "error", err)
			return nil
		}
	}
	return m
}
