package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// tracker counts component lifecycle calls across every instance a test builds.
type tracker struct {
	mu        sync.Mutex
	shutdowns []string
}

func (t *tracker) shutdown(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdowns = append(t.shutdowns, id)
}

func (t *tracker) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.shutdowns...)
}

type seqSource struct {
	component.Base
	tr    *tracker
	count int
	cb    component.IncomingMessageCallback
	stop  atomic.Bool
}

func (s *seqSource) Type() component.Type { return component.TypeSource }

func (s *seqSource) Initialize(settings component.Settings) error {
	n, err := settings.Int("count", 10)
	s.count = n
	return err
}

func (s *seqSource) SetIncomingMessageCallback(cb component.IncomingMessageCallback) { s.cb = cb }

func (s *seqSource) Run(context.Context) error {
	for i := 0; i < s.count && !s.stop.Load(); i++ {
		s.cb.OnMessage(message.FromString(fmt.Sprintf("m%d", i), int64(i)))
	}
	return nil
}

func (s *seqSource) Shutdown() error {
	s.stop.Store(true)
	s.tr.shutdown(s.ID())
	return nil
}

// holdSource keeps its worker until it is shut down.
type holdSource struct {
	component.Base
	tr   *tracker
	stop chan struct{}
	once sync.Once
}

func (s *holdSource) Type() component.Type { return component.TypeSource }

func (s *holdSource) Initialize(component.Settings) error {
	s.stop = make(chan struct{})
	return nil
}

func (s *holdSource) SetIncomingMessageCallback(component.IncomingMessageCallback) {}

func (s *holdSource) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.stop:
	}
	return nil
}

func (s *holdSource) Shutdown() error {
	s.once.Do(func() { close(s.stop) })
	s.tr.shutdown(s.ID())
	return nil
}

type upperOperator struct {
	component.Base
	tr *tracker
}

func (o *upperOperator) Type() component.Type { return component.TypeDirectResponseOperator }

func (o *upperOperator) Initialize(settings component.Settings) error {
	if settings.String("fail", "") == "true" {
		return fmt.Errorf("%w: asked to fail", errors.ErrComponentInitializationFailed)
	}
	return nil
}

func (o *upperOperator) OnMessage(msg message.Message) ([]message.Message, error) {
	return []message.Message{message.FromString(strings.ToUpper(string(msg.Body)), msg.Timestamp)}, nil
}

func (o *upperOperator) Shutdown() error {
	o.tr.shutdown(o.ID())
	return nil
}

type countingEmitter struct {
	component.Base
	tr     *tracker
	target int64
	total  atomic.Int64
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	bodies [][]byte
}

func (e *countingEmitter) Type() component.Type { return component.TypeEmitter }

func (e *countingEmitter) Initialize(settings component.Settings) error {
	n, err := settings.Int("target", 0)
	e.target = int64(n)
	e.done = make(chan struct{})
	return err
}

func (e *countingEmitter) OnMessage(_ context.Context, msg message.Message) error {
	e.mu.Lock()
	e.bodies = append(e.bodies, msg.Body)
	e.mu.Unlock()
	if e.total.Add(1) == e.target {
		e.once.Do(func() { close(e.done) })
	}
	return nil
}

func (e *countingEmitter) TotalNumOfMessages() int64 { return e.total.Load() }

func (e *countingEmitter) received() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.bodies...)
}

func (e *countingEmitter) Shutdown() error {
	e.tr.shutdown(e.ID())
	return nil
}

type joinOperator struct {
	component.Base
	tr       *tracker
	mu       sync.Mutex
	buffered []string
}

func (o *joinOperator) Type() component.Type { return component.TypeDelayedResponseOperator }
func (o *joinOperator) Initialize(component.Settings) error { return nil }
func (o *joinOperator) SetWaitStrategy(component.DelayedResponseWaitStrategy) {}

func (o *joinOperator) OnMessage(msg message.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered = append(o.buffered, string(msg.Body))
	return nil
}

func (o *joinOperator) NumberOfMessagesSinceLastResult() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffered)
}

func (o *joinOperator) GetResult() []message.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := message.FromString(strings.Join(o.buffered, "+"), 0)
	o.buffered = nil
	return []message.Message{out}
}

func (o *joinOperator) Shutdown() error {
	o.tr.shutdown(o.ID())
	return nil
}

func newTestRegistry(t *testing.T, tr *tracker) *component.Registry {
	t.Helper()
	r := component.NewRegistry()
	for _, reg := range []component.Registration{
		{Name: "seq", Version: "1.0.0", Type: component.TypeSource,
			Factory: func() component.Component { return &seqSource{tr: tr} }},
		{Name: "hold", Version: "1.0.0", Type: component.TypeSource,
			Factory: func() component.Component { return &holdSource{tr: tr} }},
		{Name: "upper", Version: "1.0.0", Type: component.TypeDirectResponseOperator,
			Factory: func() component.Component { return &upperOperator{tr: tr} }},
		{Name: "join", Version: "1.0.0", Type: component.TypeDelayedResponseOperator,
			Factory: func() component.Component { return &joinOperator{tr: tr} }},
		{Name: "count", Version: "1.0.0", Type: component.TypeEmitter,
			Factory: func() component.Component { return &countingEmitter{tr: tr} }},
	} {
		require.NoError(t, r.Register(reg))
	}
	return r
}
