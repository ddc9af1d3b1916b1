package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/queue"
)

// QueueSink inserts encoded snapshots into a pipeline queue, turning the
// statistics into a stream that pipeline components can consume.
type QueueSink struct {
	producer queue.Producer
}

// NewQueueSink creates a sink writing to producer.
func NewQueueSink(producer queue.Producer) *QueueSink {
	return &QueueSink{producer: producer}
}

// Name implements Sink.
func (s *QueueSink) Name() string { return "queue" }

// Report implements Sink.
func (s *QueueSink) Report(_ context.Context, snapshots []ComponentStatistics) error {
	rejected := 0
	for _, snap := range snapshots {
		if !s.producer.Insert(message.New(snap.Encode(), snap.EndTime)) {
			rejected++
			continue
		}
		s.producer.WaitStrategy().ForceLockRelease()
	}
	if rejected > 0 {
		return fmt.Errorf("%w: %d statistics messages rejected", errors.ErrQueueClosed, rejected)
	}
	return nil
}

// Publisher is the subset of the NATS client used by NATSSink.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSSink publishes each encoded snapshot to
// <prefix>.<node>.<pipeline>.<component>.
type NATSSink struct {
	publisher Publisher
	prefix    string
}

// NewNATSSink creates a sink publishing below prefix.
func NewNATSSink(publisher Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "micropipe.stats"
	}
	return &NATSSink{publisher: publisher, prefix: prefix}
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject a snapshot is published to.
func (s *NATSSink) Subject(snap ComponentStatistics) string {
	return strings.Join([]string{s.prefix, token(snap.NodeID), token(snap.PipelineID), token(snap.ComponentID)}, ".")
}

// Report implements Sink.
func (s *NATSSink) Report(ctx context.Context, snapshots []ComponentStatistics) error {
	var errs []error
	for _, snap := range snapshots {
		if err := s.publisher.Publish(ctx, s.Subject(snap), snap.Encode()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// token makes an id safe as a single NATS subject token.
func token(id string) string {
	if id == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(id)
}

// PrometheusSink mirrors the latest window of every component into gauges.
type PrometheusSink struct {
	messages *prometheus.GaugeVec
	errors   *prometheus.GaugeVec
	duration *prometheus.GaugeVec
	size     *prometheus.GaugeVec
}

// NewPrometheusSink creates the gauges and registers them with registry.
func NewPrometheusSink(registry *metric.MetricsRegistry) (*PrometheusSink, error) {
	labels := []string{"pipeline", "component"}
	s := &PrometheusSink{
		messages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe", Subsystem: "window", Name: "messages",
			Help: "Messages processed in the last statistics window",
		}, labels),
		errors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe", Subsystem: "window", Name: "errors",
			Help: "Processing errors in the last statistics window",
		}, labels),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe", Subsystem: "window", Name: "avg_duration_microseconds",
			Help: "Average processing duration in the last statistics window",
		}, labels),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe", Subsystem: "window", Name: "avg_size_bytes",
			Help: "Average message size in the last statistics window",
		}, labels),
	}

	for name, vec := range map[string]*prometheus.GaugeVec{
		"window_messages":     s.messages,
		"window_errors":       s.errors,
		"window_avg_duration": s.duration,
		"window_avg_size":     s.size,
	} {
		if err := registry.RegisterGaugeVec("stats", name, vec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name implements Sink.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Report implements Sink.
func (s *PrometheusSink) Report(_ context.Context, snapshots []ComponentStatistics) error {
	for _, snap := range snapshots {
		s.messages.WithLabelValues(snap.PipelineID, snap.ComponentID).Set(float64(snap.NumMessages))
		s.errors.WithLabelValues(snap.PipelineID, snap.ComponentID).Set(float64(snap.Errors))
		s.duration.WithLabelValues(snap.PipelineID, snap.ComponentID).Set(float64(snap.AvgDuration))
		s.size.WithLabelValues(snap.PipelineID, snap.ComponentID).Set(float64(snap.AvgSize))
	}
	return nil
}

// Forget deletes every series of pipelineID.
func (s *PrometheusSink) Forget(pipelineID string) {
	labels := prometheus.Labels{"pipeline": pipelineID}
	for _, vec := range []*prometheus.GaugeVec{s.messages, s.errors, s.duration, s.size} {
		vec.DeletePartialMatch(labels)
	}
}
