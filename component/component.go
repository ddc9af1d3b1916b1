package component

import (
	"context"
	"strings"

	"github.com/c360/micropipe/message"
)

// Type is the capability of a component.
type Type string

const (
	// TypeSource produces messages.
	TypeSource Type = "SOURCE"
	// TypeDirectResponseOperator transforms each message synchronously.
	TypeDirectResponseOperator Type = "DIRECT_RESPONSE_OPERATOR"
	// TypeDelayedResponseOperator buffers messages and flushes on a strategy trigger.
	TypeDelayedResponseOperator Type = "DELAYED_RESPONSE_OPERATOR"
	// TypeEmitter consumes messages terminally.
	TypeEmitter Type = "EMITTER"
)

// ParseType maps a configuration string to a Type. OPERATOR is accepted as
// an alias for the direct response operator.
func ParseType(s string) (Type, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(TypeSource):
		return TypeSource, true
	case "OPERATOR", string(TypeDirectResponseOperator):
		return TypeDirectResponseOperator, true
	case string(TypeDelayedResponseOperator):
		return TypeDelayedResponseOperator, true
	case string(TypeEmitter):
		return TypeEmitter, true
	default:
		return "", false
	}
}

// IsOperator reports whether t reads and writes queues.
func (t Type) IsOperator() bool {
	return t == TypeDirectResponseOperator || t == TypeDelayedResponseOperator
}

// ReadsQueues reports whether a component of type t consumes from queues.
func (t Type) ReadsQueues() bool {
	return t != TypeSource
}

// WritesQueues reports whether a component of type t produces into queues.
func (t Type) WritesQueues() bool {
	return t != TypeEmitter
}

// Component is the contract shared by all components.
type Component interface {
	ID() string
	SetID(id string)
	// Initialize applies settings. Failures wrap errors.ErrRequiredInputMissing
	// or errors.ErrComponentInitializationFailed.
	Initialize(settings Settings) error
	// Shutdown releases resources. Callers log the error and carry on.
	Shutdown() error
	Type() Type
}

// IncomingMessageCallback receives every message produced by a Source.
type IncomingMessageCallback interface {
	OnMessage(msg message.Message)
}

// CallbackFunc adapts a function to IncomingMessageCallback.
type CallbackFunc func(msg message.Message)

// OnMessage implements IncomingMessageCallback.
func (f CallbackFunc) OnMessage(msg message.Message) { f(msg) }

// Source produces messages on its own goroutine.
type Source interface {
	Component
	// Run produces messages until Shutdown is called or ctx is done.
	Run(ctx context.Context) error
	SetIncomingMessageCallback(cb IncomingMessageCallback)
}

// DirectResponseOperator maps each input message to zero or more outputs.
type DirectResponseOperator interface {
	Component
	OnMessage(msg message.Message) ([]message.Message, error)
}

// DelayedResponseWaitStrategy decides when a DelayedResponseOperator flushes.
type DelayedResponseWaitStrategy interface {
	// Init installs the flush callback; it is called once before any message.
	Init(flush func())
	// OnMessage observes a message after the operator buffered it.
	OnMessage(msg message.Message)
	// Release forces a flush outside the strategy's own trigger.
	Release()
	// Shutdown stops any timers. No flush happens afterwards.
	Shutdown()
}

// DelayedResponseOperator buffers messages and produces results when flushed.
type DelayedResponseOperator interface {
	Component
	OnMessage(msg message.Message) error
	// GetResult drains the buffer and returns the aggregated output.
	GetResult() []message.Message
	SetWaitStrategy(strategy DelayedResponseWaitStrategy)
	NumberOfMessagesSinceLastResult() int
}

// Emitter is a terminal sink.
type Emitter interface {
	Component
	OnMessage(ctx context.Context, msg message.Message) error
	TotalNumOfMessages() int64
}

// Base carries the id every component needs. Embed it.
type Base struct {
	id string
}

// ID implements Component.
func (b *Base) ID() string { return b.id }

// SetID implements Component.
func (b *Base) SetID(id string) { b.id = id }

// HasCapability reports whether c implements the interface its Type names.
func HasCapability(c Component) bool {
	var ok bool
	switch c.Type() {
	case TypeSource:
		_, ok = c.(Source)
	case TypeDirectResponseOperator:
		_, ok = c.(DirectResponseOperator)
	case TypeDelayedResponseOperator:
		_, ok = c.(DelayedResponseOperator)
	case TypeEmitter:
		_, ok = c.(Emitter)
	}
	return ok
}
