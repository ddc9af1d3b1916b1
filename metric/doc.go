// Package metric provides Prometheus metrics for a micropipe node.
//
// MetricsRegistry wraps a dedicated prometheus.Registry. It registers the core
// node metrics (active pipelines, per-component message counters and
// durations, NATS connection state) and lets queues, worker pools and sinks
// register their own collectors under an owner name. Server exposes the
// registry at /metrics and the aggregated node health as JSON at /health.
//
// A nil *MetricsRegistry disables metrics; callers check before registering.
package metric
