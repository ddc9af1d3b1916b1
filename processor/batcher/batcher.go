package batcher

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/message"
)

// Registration identity.
const (
	Name    = "batcher"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingSeparator = "separator"
	SettingPrefix    = "prefix"
	SettingSuffix    = "suffix"
)

// Batcher buffers message bodies and, when its wait strategy flushes, emits
// them as one message: prefix, bodies joined by separator, suffix. The result
// carries the timestamp of the newest buffered message.
type Batcher struct {
	component.Base

	separator []byte
	prefix    []byte
	suffix    []byte
	logger    *slog.Logger

	mu       sync.Mutex
	strategy component.DelayedResponseWaitStrategy
	pending  []message.Message
	batches  int64
}

// NewBatcher creates an uninitialized batcher.
func NewBatcher(logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{logger: logger}
}

// Register adds the batcher factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeDelayedResponseOperator),
		Description: "Joins buffered message bodies into one message per flush",
		Factory: func() component.Component {
			return NewBatcher(logger)
		},
	})
}

// Type implements component.Component.
func (b *Batcher) Type() component.Type {
	return component.TypeDelayedResponseOperator
}

// Initialize reads separator (default newline), prefix and suffix.
func (b *Batcher) Initialize(settings component.Settings) error {
	b.separator = []byte("\n")
	if v, ok := settings[SettingSeparator]; ok {
		b.separator = []byte(v)
	}
	b.prefix = []byte(settings[SettingPrefix])
	b.suffix = []byte(settings[SettingSuffix])
	b.logger = b.logger.With("id", b.ID())
	return nil
}

// SetWaitStrategy implements component.DelayedResponseOperator.
func (b *Batcher) SetWaitStrategy(strategy component.DelayedResponseWaitStrategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategy = strategy
}

// OnMessage buffers msg.
func (b *Batcher) OnMessage(msg message.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, msg)
	return nil
}

// NumberOfMessagesSinceLastResult implements component.DelayedResponseOperator.
func (b *Batcher) NumberOfMessagesSinceLastResult() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// GetResult drains the buffer into a single joined message. An empty buffer
// yields no message.
func (b *Batcher) GetResult() []message.Message {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	size := len(b.prefix) + len(b.suffix) + len(b.separator)*(len(pending)-1)
	var newest int64
	for _, m := range pending {
		size += len(m.Body)
		newest = max(newest, m.Timestamp)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.Write(b.prefix)
	for i, m := range pending {
		if i > 0 {
			buf.Write(b.separator)
		}
		buf.Write(m.Body)
	}
	buf.Write(b.suffix)

	b.mu.Lock()
	b.batches++
	b.mu.Unlock()

	return []message.Message{{Body: buf.Bytes(), Timestamp: newest}}
}

// Batches returns how many results have been produced.
func (b *Batcher) Batches() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

// Shutdown implements component.Component. Buffered messages not yet
// collected by GetResult are discarded.
func (b *Batcher) Shutdown() error {
	b.mu.Lock()
	dropped := len(b.pending)
	b.pending = nil
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("Batcher discarded buffered messages", "count", dropped)
	}
	return nil
}
