package generator

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// Registration identity.
const (
	Name    = "generator"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingCount  = "count"
	SettingRate   = "rate"
	SettingPrefix = "prefix"
	SettingSuffix = "suffix"
	SettingBurst  = "burst"
)

// Source emits numbered messages "<prefix><n><suffix>" starting at n = 0. It stops
// after count messages, or runs until shutdown when count is 0. A positive
// rate caps the messages per second.
type Source struct {
	component.Base

	count   int64
	prefix  string
	suffix  string
	limiter *rate.Limiter
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	callback component.IncomingMessageCallback
	stop     chan struct{}
	stopOnce sync.Once

	emitted atomic.Int64
}

// NewSource creates an uninitialized generator. A nil clock uses the wall clock.
func NewSource(logger *slog.Logger, clk clock.Clock) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Source{logger: logger, clock: clk, stop: make(chan struct{})}
}

// Register adds the generator factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeSource),
		Description: "Emits numbered test messages at an optional fixed rate",
		Factory: func() component.Component {
			return NewSource(logger, nil)
		},
	})
}

// Type implements component.Component.
func (s *Source) Type() component.Type {
	return component.TypeSource
}

// Initialize reads count, rate, burst, prefix and suffix.
func (s *Source) Initialize(settings component.Settings) error {
	count, err := settings.Int(SettingCount, 0)
	if err != nil {
		return err
	}
	if count < 0 {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(errors.ErrInvalidConfig, "Generator", "Initialize", "count must not be negative"))
	}
	perSecond, err := settings.Float(SettingRate, 0)
	if err != nil {
		return err
	}
	if perSecond < 0 {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(errors.ErrInvalidConfig, "Generator", "Initialize", "rate must not be negative"))
	}
	burst, err := settings.Int(SettingBurst, 1)
	if err != nil {
		return err
	}

	s.count = int64(count)
	s.prefix = settings.String(SettingPrefix, "")
	s.suffix = settings.String(SettingSuffix, "")
	if perSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
	s.logger = s.logger.With("id", s.ID())
	return nil
}

// SetIncomingMessageCallback implements component.Source.
func (s *Source) SetIncomingMessageCallback(cb component.IncomingMessageCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Run emits messages until count is reached, Shutdown is called or ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Generator", "Run", "message callback not set")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Debug("Generator started", "count", s.count, "prefix", s.prefix)
	for n := int64(0); s.count == 0 || n < s.count; n++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		} else if ctx.Err() != nil {
			break
		}

		body := s.prefix + strconv.FormatInt(n, 10) + s.suffix
		cb.OnMessage(message.FromString(body, s.clock.Now().UnixMilli()))
		s.emitted.Add(1)
	}

	s.logger.Debug("Generator finished", "emitted", s.emitted.Load())
	return nil
}

// Emitted returns the number of messages produced so far.
func (s *Source) Emitted() int64 {
	return s.emitted.Load()
}

// Shutdown stops Run. Safe to call more than once.
func (s *Source) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
