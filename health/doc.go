// Package health reports the health of pipelines and their components.
//
// A Status is healthy, degraded or unhealthy and may carry sub-statuses.
// Aggregate folds sub-statuses: any unhealthy child makes the parent
// unhealthy, otherwise any degraded child makes it degraded.
//
// FromReport maps the observable state of a running component (running
// flag, message and error counts) onto a Status. Error text is sanitized
// before it is exposed so URLs, paths, addresses and credentials do not
// leak through health endpoints.
//
// Monitor stores the last status per name. The pipeline manager keeps
// failed instantiations there so they stay visible next to live pipelines:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateUnhealthy("orders", "QUEUE_INITIALIZATION_FAILED")
//	overall := monitor.AggregateHealth("node")
package health
