package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Sink receives the snapshots of one reporting cycle.
type Sink interface {
	Name() string
	Report(ctx context.Context, snapshots []ComponentStatistics) error
}

// Forgetter is implemented by sinks that keep per-pipeline state and drop it
// once the pipeline is shut down.
type Forgetter interface {
	Forget(pipelineID string)
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterClock sets the clock driving the reporting ticker.
func WithReporterClock(clk clock.Clock) ReporterOption {
	return func(r *Reporter) {
		if clk != nil {
			r.clock = clk
		}
	}
}

// WithReporterLogger sets the reporter logger.
func WithReporterLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIncludeEmpty reports windows with no messages and no errors too.
func WithIncludeEmpty() ReporterOption {
	return func(r *Reporter) {
		r.includeEmpty = true
	}
}

// Reporter periodically drains collectors into sinks.
type Reporter struct {
	interval     time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	includeEmpty bool

	mu         sync.Mutex
	collectors []*Collector
	sinks      []Sink

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewReporter creates a reporter firing every interval.
func NewReporter(interval time.Duration, opts ...ReporterOption) *Reporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	r := &Reporter{
		interval: interval,
		clock:    clock.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddCollector registers a collector to drain.
func (r *Reporter) AddCollector(c *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// AddSink registers a sink.
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Start runs the reporting loop until Stop or ctx is done.
func (r *Reporter) Start(ctx context.Context) {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	ticker := r.clock.Ticker(r.interval)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Flush(ctx)
			}
		}
	}(r.done)
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (r *Reporter) Stop() {
	r.lifecycleMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Flush drains every collector once and hands the snapshots to all sinks.
// Sink failures are logged.
func (r *Reporter) Flush(ctx context.Context) []ComponentStatistics {
	r.mu.Lock()
	collectors := append([]*Collector(nil), r.collectors...)
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()

	snapshots := make([]ComponentStatistics, 0, len(collectors))
	for _, c := range collectors {
		s := c.Snapshot()
		if !r.includeEmpty && s.NumMessages == 0 && s.Errors == 0 {
			continue
		}
		snapshots = append(snapshots, s)
	}
	if len(snapshots) == 0 {
		return snapshots
	}

	for _, sink := range sinks {
		if err := sink.Report(ctx, snapshots); err != nil {
			r.logger.Warn("statistics sink failed", "sink", sink.Name(), "error", err)
		}
	}
	return snapshots
}
