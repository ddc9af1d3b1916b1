package counter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/message"
)

// Registration identity.
const (
	Name    = "counter"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingExpected = "expected"
	SettingDistinct = "distinct"
)

type latch struct {
	target int64
	ch     chan struct{}
}

// Counter is an emitter that only counts. With distinct enabled it also
// remembers every body and counts repeats, which makes it the sink of
// delivery tests.
type Counter struct {
	component.Base

	expected int64
	distinct bool
	logger   *slog.Logger

	total atomic.Int64

	mu         sync.Mutex
	latches    []latch
	seen       map[string]struct{}
	duplicates int64
}

// NewCounter creates an uninitialized counter.
func NewCounter(logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{logger: logger}
}

// Register adds the counter factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeEmitter),
		Description: "Counts received messages",
		Factory: func() component.Component {
			return NewCounter(logger)
		},
	})
}

// Type implements component.Component.
func (c *Counter) Type() component.Type {
	return component.TypeEmitter
}

// Initialize reads expected (log once reached, 0 disables) and distinct.
func (c *Counter) Initialize(settings component.Settings) error {
	expected, err := settings.Int(SettingExpected, 0)
	if err != nil {
		return err
	}
	distinct, err := settings.Bool(SettingDistinct, false)
	if err != nil {
		return err
	}
	c.expected = int64(expected)
	c.distinct = distinct
	if distinct {
		c.seen = make(map[string]struct{})
	}
	c.logger = c.logger.With("id", c.ID())
	return nil
}

// OnMessage counts msg and releases every latch whose target is reached.
func (c *Counter) OnMessage(_ context.Context, msg message.Message) error {
	n := c.total.Add(1)
	if n == c.expected {
		c.logger.Info("Counter reached expected count", "expected", c.expected)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.distinct {
		key := string(msg.Body)
		if _, dup := c.seen[key]; dup {
			c.duplicates++
		} else {
			c.seen[key] = struct{}{}
		}
	}

	kept := c.latches[:0]
	for _, l := range c.latches {
		if n >= l.target {
			close(l.ch)
			continue
		}
		kept = append(kept, l)
	}
	c.latches = kept
	return nil
}

// Latch returns a channel closed once n messages have been counted.
func (c *Counter) Latch(n int64) <-chan struct{} {
	ch := make(chan struct{})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total.Load() >= n {
		close(ch)
		return ch
	}
	c.latches = append(c.latches, latch{target: n, ch: ch})
	return ch
}

// TotalNumOfMessages implements component.Emitter.
func (c *Counter) TotalNumOfMessages() int64 {
	return c.total.Load()
}

// Distinct returns how many different bodies were seen. Zero unless distinct is set.
func (c *Counter) Distinct() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Duplicates returns how many bodies arrived more than once.
func (c *Counter) Duplicates() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicates
}

// Shutdown implements component.Component.
func (c *Counter) Shutdown() error {
	c.logger.Debug("Counter stopped", "total", c.total.Load(), "duplicates", c.Duplicates())
	return nil
}
