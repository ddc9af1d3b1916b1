package queue

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// Strategy names accepted by NewWaitStrategy.
const (
	StrategyBlocking = "blocking"
	StrategyBusyPoll = "busy-poll"
)

// Poller is the non-blocking read side a WaitStrategy polls. Consumer satisfies it.
type Poller interface {
	Next() (message.Message, bool)
}

// WaitStrategy parks a consumer until a message is available or a wakeup occurs.
type WaitStrategy interface {
	// WaitFor polls p and, if empty, parks until ForceLockRelease or ctx is
	// done, then polls once more. The result may be empty.
	WaitFor(ctx context.Context, p Poller) (message.Message, bool)
	// WaitForTimeout is WaitFor bounded by timeout.
	WaitForTimeout(p Poller, timeout time.Duration) (message.Message, bool)
	// ForceLockRelease wakes every parked waiter. Safe without waiters.
	ForceLockRelease()
	// OnMessage observes a message passing through. No-op for queue strategies.
	OnMessage(msg message.Message)
}

// NewWaitStrategy returns the strategy registered under name. The empty
// name selects the blocking strategy.
func NewWaitStrategy(name string) (WaitStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyBlocking:
		return NewBlockingWaitStrategy(), nil
	case StrategyBusyPoll, "busypoll":
		return NewBusyPollWaitStrategy(), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownWaitStrategy, "queue", "NewWaitStrategy",
			"resolve strategy "+name)
	}
}

// BlockingWaitStrategy parks waiters on a condition variable. A generation
// counter, read before polling, makes sure a release between poll and park
// is never missed.
type BlockingWaitStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
	gen  uint64
}

// NewBlockingWaitStrategy creates a blocking strategy.
func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	s := &BlockingWaitStrategy{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// WaitFor implements WaitStrategy.
func (s *BlockingWaitStrategy) WaitFor(ctx context.Context, p Poller) (message.Message, bool) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	if msg, ok := p.Next(); ok {
		return msg, true
	}

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, s.broadcast)
		defer stop()
	}

	s.mu.Lock()
	for s.gen == gen && ctx.Err() == nil {
		s.cond.Wait()
	}
	s.mu.Unlock()

	return p.Next()
}

// WaitForTimeout implements WaitStrategy.
func (s *BlockingWaitStrategy) WaitForTimeout(p Poller, timeout time.Duration) (message.Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.WaitFor(ctx, p)
}

// ForceLockRelease implements WaitStrategy.
func (s *BlockingWaitStrategy) ForceLockRelease() {
	s.mu.Lock()
	s.gen++
	s.cond.Broadcast()
	s.mu.Unlock()
}

// OnMessage implements WaitStrategy.
func (s *BlockingWaitStrategy) OnMessage(message.Message) {}

func (s *BlockingWaitStrategy) broadcast() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// BusyPollWaitStrategy spins on the poller, yielding the processor between
// attempts. Lowest latency, highest CPU cost.
type BusyPollWaitStrategy struct {
	gen atomic.Uint64
}

// NewBusyPollWaitStrategy creates a busy-poll strategy.
func NewBusyPollWaitStrategy() *BusyPollWaitStrategy {
	return &BusyPollWaitStrategy{}
}

// WaitFor implements WaitStrategy.
func (s *BusyPollWaitStrategy) WaitFor(ctx context.Context, p Poller) (message.Message, bool) {
	gen := s.gen.Load()
	for {
		if msg, ok := p.Next(); ok {
			return msg, true
		}
		if s.gen.Load() != gen || ctx.Err() != nil {
			return p.Next()
		}
		runtime.Gosched()
	}
}

// WaitForTimeout implements WaitStrategy.
func (s *BusyPollWaitStrategy) WaitForTimeout(p Poller, timeout time.Duration) (message.Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.WaitFor(ctx, p)
}

// ForceLockRelease implements WaitStrategy.
func (s *BusyPollWaitStrategy) ForceLockRelease() {
	s.gen.Add(1)
}

// OnMessage implements WaitStrategy.
func (s *BusyPollWaitStrategy) OnMessage(message.Message) {}
