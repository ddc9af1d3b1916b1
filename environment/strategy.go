package environment

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// Delayed strategy names and the settings keys that configure them.
const (
	FlushStrategyMessageCount = "message-count"
	FlushStrategyTimer        = "timer"
	FlushStrategyContent      = "content"

	SettingFlushStrategy = "flushStrategy"
	SettingFlushCount    = "flushCount"
	SettingFlushInterval = "flushInterval"
	SettingFlushMarker   = "flushMarker"
)

// NewDelayedResponseWaitStrategy builds the strategy named by the
// flushStrategy setting. The default is message-count with flushCount 100.
func NewDelayedResponseWaitStrategy(settings component.Settings, clk clock.Clock) (component.DelayedResponseWaitStrategy, error) {
	name := strings.ToLower(settings.String(SettingFlushStrategy, FlushStrategyMessageCount))
	switch name {
	case FlushStrategyMessageCount:
		n, err := settings.Int(SettingFlushCount, 100)
		if err != nil {
			return nil, err
		}
		return NewMessageCountStrategy(n), nil
	case FlushStrategyTimer:
		d, err := settings.Duration(SettingFlushInterval, time.Second)
		if err != nil {
			return nil, err
		}
		return NewTimerStrategy(d, clk), nil
	case FlushStrategyContent:
		marker, err := settings.Required(SettingFlushMarker)
		if err != nil {
			return nil, err
		}
		return NewContentStrategy([]byte(marker)), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownWaitStrategy, "environment",
			"NewDelayedResponseWaitStrategy", "resolve flush strategy "+name)
	}
}

// flushGuard holds the flush callback and the shutdown flag shared by all strategies.
type flushGuard struct {
	mu     sync.Mutex
	flush  func()
	closed bool
}

func (g *flushGuard) Init(flush func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flush = flush
}

func (g *flushGuard) fire() {
	g.mu.Lock()
	flush, closed := g.flush, g.closed
	g.mu.Unlock()
	if flush != nil && !closed {
		flush()
	}
}

func (g *flushGuard) Release() { g.fire() }

func (g *flushGuard) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

// MessageCountStrategy flushes after every n messages.
type MessageCountStrategy struct {
	flushGuard
	n     int
	mu    sync.Mutex
	count int
}

// NewMessageCountStrategy creates a volume-triggered strategy. n < 1 means 1.
func NewMessageCountStrategy(n int) *MessageCountStrategy {
	if n < 1 {
		n = 1
	}
	return &MessageCountStrategy{n: n}
}

// OnMessage implements component.DelayedResponseWaitStrategy.
func (s *MessageCountStrategy) OnMessage(message.Message) {
	s.mu.Lock()
	s.count++
	due := s.count >= s.n
	if due {
		s.count = 0
	}
	s.mu.Unlock()

	if due {
		s.fire()
	}
}

// Release implements component.DelayedResponseWaitStrategy.
func (s *MessageCountStrategy) Release() {
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
	s.fire()
}

// Shutdown implements component.DelayedResponseWaitStrategy.
func (s *MessageCountStrategy) Shutdown() { s.close() }

// TimerStrategy flushes on a fixed interval.
type TimerStrategy struct {
	flushGuard
	interval time.Duration
	clock    clock.Clock

	tickerMu sync.Mutex
	ticker   *clock.Ticker
	stop     chan struct{}
	done     chan struct{}
}

// NewTimerStrategy creates a time-triggered strategy. A nil clock uses the wall clock.
func NewTimerStrategy(interval time.Duration, clk clock.Clock) *TimerStrategy {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TimerStrategy{interval: interval, clock: clk}
}

// Init installs flush and starts the ticker.
func (s *TimerStrategy) Init(flush func()) {
	s.flushGuard.Init(flush)

	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = s.clock.Ticker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(t *clock.Ticker, stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.fire()
			}
		}
	}(s.ticker, s.stop, s.done)
}

// OnMessage implements component.DelayedResponseWaitStrategy.
func (s *TimerStrategy) OnMessage(message.Message) {}

// Shutdown stops the ticker and waits for an in-flight flush.
func (s *TimerStrategy) Shutdown() {
	s.close()

	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	<-s.done
	s.ticker = nil
}

// ContentStrategy flushes when a message body contains the marker.
type ContentStrategy struct {
	flushGuard
	marker []byte
}

// NewContentStrategy creates a content-triggered strategy.
func NewContentStrategy(marker []byte) *ContentStrategy {
	return &ContentStrategy{marker: marker}
}

// OnMessage implements component.DelayedResponseWaitStrategy.
func (s *ContentStrategy) OnMessage(msg message.Message) {
	if len(s.marker) > 0 && bytes.Contains(msg.Body, s.marker) {
		s.fire()
	}
}

// Shutdown implements component.DelayedResponseWaitStrategy.
func (s *ContentStrategy) Shutdown() { s.close() }
