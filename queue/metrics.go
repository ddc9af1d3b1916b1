package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/metric"
)

// Metrics holds Prometheus collectors shared by every queue of a node.
type Metrics struct {
	inserts *prometheus.CounterVec
	drops   *prometheus.CounterVec
	depth   *prometheus.GaugeVec
}

// NewMetrics creates queue collectors and registers them with registry.
// A nil registry returns nil, which disables queue metrics.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "queue",
			Name:      "inserts_total",
			Help:      "Messages accepted by a queue",
		}, []string{"queue"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "queue",
			Name:      "drops_total",
			Help:      "Messages discarded by a bounded queue overflow policy",
		}, []string{"queue"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Messages currently buffered in a queue",
		}, []string{"queue"}),
	}

	if err := registry.RegisterCounterVec("queue", "inserts_total", m.inserts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("queue", "drops_total", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("queue", "depth", m.depth); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordInsert(queue string, depth int) {
	if m == nil {
		return
	}
	m.inserts.WithLabelValues(queue).Inc()
	m.depth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) recordDrop(queue string) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(queue).Inc()
}

func (m *Metrics) recordDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) forget(queue string) {
	if m == nil {
		return
	}
	m.inserts.DeleteLabelValues(queue)
	m.drops.DeleteLabelValues(queue)
	m.depth.DeleteLabelValues(queue)
}
