package environment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/queue"
)

type numberSource struct {
	component.Base
	count    int
	cb       component.IncomingMessageCallback
	stopped  atomic.Bool
	shutdown atomic.Int32
}

func newNumberSource(id string, count int) *numberSource {
	s := &numberSource{count: count}
	s.SetID(id)
	return s
}

func (s *numberSource) Initialize(component.Settings) error { return nil }
func (s *numberSource) Type() component.Type { return component.TypeSource }

func (s *numberSource) SetIncomingMessageCallback(cb component.IncomingMessageCallback) { s.cb = cb }

func (s *numberSource) Shutdown() error {
	s.stopped.Store(true)
	s.shutdown.Add(1)
	return nil
}

func (s *numberSource) Run(ctx context.Context) error {
	for i := 0; i < s.count && !s.stopped.Load(); i++ {
		s.cb.OnMessage(message.FromString(fmt.Sprintf("%d", i), int64(i)))
	}
	// idle until stopped, like a source waiting on external input
	<-ctx.Done()
	return nil
}

type countingEmitter struct {
	component.Base
	mu       sync.Mutex
	received []message.Message
	total    atomic.Int64
	failOn   string
	panicOn  string
}

func newCountingEmitter(id string) *countingEmitter {
	e := &countingEmitter{}
	e.SetID(id)
	return e
}

func (e *countingEmitter) Initialize(component.Settings) error { return nil }
func (e *countingEmitter) Shutdown() error { return nil }
func (e *countingEmitter) Type() component.Type { return component.TypeEmitter }
func (e *countingEmitter) TotalNumOfMessages() int64 { return e.total.Load() }

func (e *countingEmitter) OnMessage(_ context.Context, msg message.Message) error {
	body := string(msg.Body)
	if e.failOn != "" && body == e.failOn {
		return errors.New("rejected " + body)
	}
	if e.panicOn != "" && body == e.panicOn {
		panic("cannot handle " + body)
	}
	e.mu.Lock()
	e.received = append(e.received, msg)
	e.mu.Unlock()
	e.total.Add(1)
	return nil
}

func (e *countingEmitter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.received))
	for i, m := range e.received {
		out[i] = string(m.Body)
	}
	return out
}

type upperOperator struct {
	component.Base
}

func (o *upperOperator) Initialize(component.Settings) error { return nil }
func (o *upperOperator) Shutdown() error { return nil }
func (o *upperOperator) Type() component.Type { return component.TypeDirectResponseOperator }

func (o *upperOperator) OnMessage(msg message.Message) ([]message.Message, error) {
	if string(msg.Body) == "drop" {
		return nil, nil
	}
	return []message.Message{message.FromString(strings.ToUpper(string(msg.Body)), msg.Timestamp)}, nil
}

type joinOperator struct {
	component.Base
	mu       sync.Mutex
	buffered []string
	strategy component.DelayedResponseWaitStrategy
}

func (o *joinOperator) Initialize(component.Settings) error { return nil }
func (o *joinOperator) Shutdown() error { return nil }
func (o *joinOperator) Type() component.Type { return component.TypeDelayedResponseOperator }

func (o *joinOperator) SetWaitStrategy(s component.DelayedResponseWaitStrategy) { o.strategy = s }

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
	out := message.FromString(strings.Join(o.buffered, ","), 0)
	o.buffered = nil
	return []message.Message{out}
}

func newQueue(t *testing.T, id string) queue.Queue {
	t.Helper()
	q, err := queue.New(id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Shutdown() })
	return q
}
