package component

import (
	"log/slog"

	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/natsclient"
)

// Dependencies are the node-wide services handed to built-in component
// factories. Every field may be nil.
type Dependencies struct {
	NATSClient      *natsclient.Client      // shared NATS connection
	MetricsRegistry *metric.MetricsRegistry // nil disables component metrics
	Logger          *slog.Logger            // defaults to slog.Default()
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger tagged with the component name.
func (d *Dependencies) GetLoggerWithComponent(name string) *slog.Logger {
	return d.GetLogger().With("component", name)
}
