package health

import (
	"fmt"
	"regexp"
	"time"
)

// State is the coarse health of a component or pipeline. States are
// ordered: a higher rank is worse.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

func (s State) rank() int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Status is the health of one named component, optionally with children.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	State       State     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the counters a component status carries.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.State == StateHealthy }
func (s Status) IsDegraded() bool  { return s.State == StateDegraded }
func (s Status) IsUnhealthy() bool { return s.State == StateUnhealthy }

// WithMetrics returns a copy of s carrying m.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

// Report is the observable state of one running component.
type Report struct {
	Running   bool
	Finished  bool
	Messages  int64
	Errors    int64
	Uptime    time.Duration
	LastError string
}

// FromReport converts a component report into a Status. A component that
// finished on its own is healthy; a running component that has seen more
// errors than successes is degraded.
func FromReport(name string, r Report) Status {
	var status Status
	switch {
	case r.Finished:
		status = NewHealthy(name, "component finished")
	case !r.Running:
		status = NewUnhealthy(name, "component not running")
	case r.Errors > 0 && r.Errors > r.Messages:
		status = NewDegraded(name, fmt.Sprintf("%d of %d messages failed", r.Errors, r.Errors+r.Messages))
	default:
		status = NewHealthy(name, "component running")
	}

	if r.LastError != "" {
		status.Message = Sanitize(r.LastError)
	}

	return status.WithMetrics(&Metrics{
		Uptime:            r.Uptime,
		ErrorCount:        int(r.Errors),
		MessagesProcessed: r.Messages,
	})
}

// redactions are applied in order; URLs go before paths since URLs contain paths.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?:https?|nats|wss?)://\S+`), "[URL]"},
	{regexp.MustCompile(`(?i)(?:password|token|key|secret|credential)[^a-zA-Z\s]*[:=][^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// Sanitize strips URLs, credentials, paths, addresses and ports from an
// error message before it is exposed through a health endpoint.
func Sanitize(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}
