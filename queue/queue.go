package queue

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/pkg/buffer"
)

// Settings keys understood by New.
const (
	SettingWaitStrategy   = "waitStrategy"
	SettingCapacity       = "capacity"
	SettingOverflowPolicy = "overflowPolicy"
)

// Queue is a FIFO with one producer and any number of competing consumers.
type Queue interface {
	ID() string
	// Producer returns the single producer handle of this queue.
	Producer() Producer
	// Consumer returns a new consumer handle reading the shared FIFO.
	Consumer() Consumer
	Size() int
	// Shutdown rejects further inserts and wakes all waiters. Idempotent.
	Shutdown() error
	IsShutdown() bool
}

// Producer is the write side of a queue.
type Producer interface {
	// Insert appends msg. It returns false once the queue is shut down or
	// when a bounded drop-newest queue is full.
	Insert(msg message.Message) bool
	WaitStrategy() WaitStrategy
	// Close shuts the queue down for writing and releases a blocked Insert.
	// Buffered messages stay readable.
	Close() error
}

// Consumer is a read handle of a queue.
type Consumer interface {
	// Next removes and returns the head message without blocking.
	Next() (message.Message, bool)
	WaitStrategy() WaitStrategy
}

// Option configures a queue.
type Option func(*MessageQueue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *MessageQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics attaches shared queue collectors. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(q *MessageQueue) {
		q.metrics = m
	}
}

// WithWaitStrategy overrides the strategy named in settings.
func WithWaitStrategy(s WaitStrategy) Option {
	return func(q *MessageQueue) {
		q.strategy = s
	}
}

// MessageQueue is the Queue implementation used by pipelines.
type MessageQueue struct {
	id       string
	store    storage
	strategy WaitStrategy
	producer *producer
	logger   *slog.Logger
	metrics  *Metrics
	closed   atomic.Bool
}

// New creates a queue from its configuration settings. Recognised keys are
// waitStrategy (blocking, busy-poll), capacity (0 means unbounded) and
// overflowPolicy (drop-oldest, drop-newest, block).
func New(id string, settings map[string]string, opts ...Option) (*MessageQueue, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.WrapInvalid(errors.ErrQueueInitializationFailed, "queue", "New", "validate queue id")
	}

	q := &MessageQueue{
		id:     id,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.strategy == nil {
		strategy, err := NewWaitStrategy(settings[SettingWaitStrategy])
		if err != nil {
			return nil, errors.Cause(errors.ErrQueueInitializationFailed,
				fmt.Errorf("queue %s: %w", id, err))
		}
		q.strategy = strategy
	}

	capacity := 0
	if raw := strings.TrimSpace(settings[SettingCapacity]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, errors.Cause(errors.ErrQueueInitializationFailed,
				fmt.Errorf("queue %s: invalid capacity %q", id, raw))
		}
		capacity = n
	}

	policy, ok := buffer.ParseOverflowPolicy(settings[SettingOverflowPolicy])
	if !ok {
		return nil, errors.Cause(errors.ErrQueueInitializationFailed,
			fmt.Errorf("queue %s: unknown overflow policy %q", id, settings[SettingOverflowPolicy]))
	}

	if capacity > 0 {
		q.store = newBoundedStorage(capacity, policy, func(message.Message) {
			q.metrics.recordDrop(q.id)
		})
	} else {
		q.store = newUnboundedStorage()
	}
	q.producer = &producer{q: q}

	q.logger.Debug("queue created", "queue", id, "capacity", capacity, "overflow", policy.String())
	return q, nil
}

// ID implements Queue.
func (q *MessageQueue) ID() string { return q.id }

// Producer implements Queue.
func (q *MessageQueue) Producer() Producer { return q.producer }

// Consumer implements Queue.
func (q *MessageQueue) Consumer() Consumer { return &consumer{q: q} }

// Size implements Queue.
func (q *MessageQueue) Size() int { return q.store.len() }

// IsShutdown implements Queue.
func (q *MessageQueue) IsShutdown() bool { return q.closed.Load() }

// Shutdown implements Queue.
func (q *MessageQueue) Shutdown() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.store.close()
	q.strategy.ForceLockRelease()
	q.metrics.forget(q.id)
	q.logger.Debug("queue shut down", "queue", q.id, "remaining", q.store.len())
	return nil
}

type producer struct {
	q *MessageQueue
}

func (p *producer) Insert(msg message.Message) bool {
	if p.q.closed.Load() {
		return false
	}
	ok, err := p.q.store.push(msg)
	if err != nil || !ok {
		return false
	}
	p.q.metrics.recordInsert(p.q.id, p.q.store.len())
	return true
}

func (p *producer) WaitStrategy() WaitStrategy { return p.q.strategy }

func (p *producer) Close() error { return p.q.Shutdown() }

type consumer struct {
	q *MessageQueue
}

func (c *consumer) Next() (message.Message, bool) {
	msg, ok := c.q.store.pop()
	if ok && c.q.metrics != nil && !c.q.closed.Load() {
		c.q.metrics.recordDepth(c.q.id, c.q.store.len())
	}
	return msg, ok
}

func (c *consumer) WaitStrategy() WaitStrategy { return c.q.strategy }
