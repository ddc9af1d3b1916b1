package environment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/queue"
	"github.com/c360/micropipe/stats"
)

// RuntimeEnvironment drives one component.
type RuntimeEnvironment interface {
	ID() string
	Type() component.Type
	Start(ctx context.Context) error
	// Shutdown stops the environment and its component. Idempotent.
	Shutdown() error
	IsRunning() bool
	Statistics() *stats.Collector
}

// Option configures a runtime environment.
type Option func(*base)

// WithLogger sets the environment logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records per-message Prometheus metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

// WithCollector replaces the default statistics collector.
func WithCollector(c *stats.Collector) Option {
	return func(b *base) {
		if c != nil {
			b.collector = c
		}
	}
}

// WithPipelineID labels logs, metrics and statistics with the pipeline id.
func WithPipelineID(id string) Option {
	return func(b *base) {
		b.pipelineID = id
	}
}

// WithPollInterval sets the sleep between polls for consumers without a wait strategy.
func WithPollInterval(d time.Duration) Option {
	return func(b *base) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for goroutines.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *base) {
		if d > 0 {
			b.shutdownTimeout = d
		}
	}
}

// base holds what every environment shares.
type base struct {
	id         string
	typ        component.Type
	pipelineID string

	logger    *slog.Logger
	metrics   *metric.Metrics
	collector *stats.Collector

	pollInterval    time.Duration
	shutdownTimeout time.Duration

	running  atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// serializes calls into the component
	mu sync.Mutex
}

func newBase(comp component.Component, opts []Option) *base {
	b := &base{
		id:              comp.ID(),
		typ:             comp.Type(),
		logger:          slog.Default(),
		pollInterval:    time.Millisecond,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("pipeline", b.pipelineID, "component", b.id)
	if b.collector == nil {
		b.collector = stats.NewCollector("", b.pipelineID, b.id, nil)
	}
	return b
}

// ID implements RuntimeEnvironment.
func (b *base) ID() string { return b.id }

// Type implements RuntimeEnvironment.
func (b *base) Type() component.Type { return b.typ }

// IsRunning implements RuntimeEnvironment.
func (b *base) IsRunning() bool { return b.running.Load() }

// Statistics implements RuntimeEnvironment.
func (b *base) Statistics() *stats.Collector { return b.collector }

func (b *base) markStarted(ctx context.Context) (context.Context, error) {
	if !b.started.CompareAndSwap(false, true) {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "RuntimeEnvironment", "Start", "start "+b.id)
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.running.Store(true)
	b.recordState(true)
	return ctx, nil
}

func (b *base) recordState(running bool) {
	if b.metrics != nil {
		b.metrics.RecordEnvironmentState(b.pipelineID, b.id, running)
	}
}

// waitGoroutines waits up to the shutdown timeout for loops to exit.
func (b *base) waitGoroutines() error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		b.logger.Warn("runtime environment did not stop in time", "timeout", b.shutdownTimeout)
		return fmt.Errorf("%s: %w", b.id, context.DeadlineExceeded)
	}
}

// handler processes one message taken from an input queue.
type handler func(ctx context.Context, msg message.Message) error

// consume runs the loop of one input queue until the running flag clears.
func (b *base) consume(ctx context.Context, c queue.Consumer, handle handler) {
	defer b.wg.Done()

	ws := c.WaitStrategy()
	for b.running.Load() {
		var msg message.Message
		var ok bool
		if ws != nil {
			msg, ok = ws.WaitFor(ctx, c)
		} else if msg, ok = c.Next(); !ok {
			time.Sleep(b.pollInterval)
		}

		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		b.process(ctx, msg, handle)
	}
}

// process isolates failures of a single message.
func (b *base) process(ctx context.Context, msg message.Message, handle handler) {
	start := b.collector.Now()
	err := safeHandle(ctx, msg, handle)
	elapsed := b.collector.Now().Sub(start)

	if err != nil {
		b.collector.RecordError()
		if b.metrics != nil {
			b.metrics.RecordError(b.pipelineID, b.id)
		}
		b.logger.Warn("message processing failed", "size", msg.Size(), "error", err)
		return
	}

	b.collector.Record(elapsed, msg.Size())
	if b.metrics != nil {
		b.metrics.RecordMessage(b.pipelineID, b.id, elapsed)
	}
}

func safeHandle(ctx context.Context, msg message.Message, handle handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()
	return handle(ctx, msg)
}

// forward inserts messages into every producer, releasing waiters after each insert.
func (b *base) forward(producers []queue.Producer, msgs []message.Message) {
	for _, p := range producers {
		for _, m := range msgs {
			if !p.Insert(m) {
				b.logger.Debug("output queue rejected message", "size", m.Size())
				continue
			}
			p.WaitStrategy().ForceLockRelease()
		}
	}
}

// stopConsumers clears the running flag, wakes every input and waits for the loops.
func (b *base) stopConsumers(consumers []queue.Consumer) error {
	b.running.Store(false)
	for _, c := range consumers {
		if ws := c.WaitStrategy(); ws != nil {
			ws.ForceLockRelease()
		}
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.recordState(false)
	return b.waitGoroutines()
}

func (b *base) shutdownComponent(comp component.Component) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := comp.Shutdown(); err != nil {
		b.logger.Warn("component shutdown failed", "error", err)
		return errors.Wrap(err, "RuntimeEnvironment", "Shutdown", "shut down component "+b.id)
	}
	return nil
}
