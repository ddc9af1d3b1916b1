package nats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/natsclient"
)

// Registration identity.
const (
	Name    = "nats-source"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingURL            = "url"
	SettingSubject        = "subject"
	SettingConnectTimeout = "connectTimeout"
)

// Source turns every NATS message on a subject into a pipeline message. It
// uses the node's shared client unless a url setting asks for a dedicated
// connection.
type Source struct {
	component.Base

	subject string
	shared  *natsclient.Client
	client  *natsclient.Client
	owned   bool
	logger  *slog.Logger

	mu       sync.Mutex
	callback component.IncomingMessageCallback
	stop     chan struct{}
	stopOnce sync.Once

	received atomic.Int64
}

// NewSource creates an uninitialized source. shared may be nil when every
// instance configures its own url.
func NewSource(shared *natsclient.Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{shared: shared, logger: logger, stop: make(chan struct{})}
}

// Register adds the nats-source factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeSource),
		Description: "Receives messages from a NATS subject",
		Factory: func() component.Component {
			return NewSource(deps.NATSClient, logger)
		},
	})
}

// Type implements component.Component.
func (s *Source) Type() component.Type {
	return component.TypeSource
}

// Initialize resolves the client and connects a dedicated one when url is set.
func (s *Source) Initialize(settings component.Settings) error {
	subject, err := settings.Required(SettingSubject)
	if err != nil {
		return err
	}
	timeout, err := settings.Duration(SettingConnectTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	s.subject = subject
	s.logger = s.logger.With("id", s.ID(), "subject", subject)

	url := settings.String(SettingURL, "")
	if url == "" {
		if s.shared == nil {
			return errors.Cause(errors.ErrRequiredInputMissing,
				errors.WrapInvalid(errors.ErrMissingConfig, "NATSSource", "Initialize",
					"url setting or node NATS connection"))
		}
		s.client = s.shared
		return nil
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithLogger(s.logger),
		natsclient.WithName("micropipe-"+s.ID()),
	)
	if err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed, err)
	}
	s.client = client
	s.owned = true
	return nil
}

// SetIncomingMessageCallback implements component.Source.
func (s *Source) SetIncomingMessageCallback(cb component.IncomingMessageCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Run subscribes and forwards messages until Shutdown or ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "NATSSource", "Run", "message callback not set")
	}

	unsubscribe, err := s.client.Subscribe(ctx, s.subject, func(_ context.Context, data []byte) {
		s.received.Add(1)
		cb.OnMessage(message.New(data, time.Now().UnixMilli()))
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSSource", "Run", "subscribe to "+s.subject)
	}
	s.logger.Info("NATS source subscribed")

	select {
	case <-ctx.Done():
	case <-s.stop:
	}

	if err := unsubscribe(); err != nil {
		s.logger.Warn("Failed to unsubscribe", "error", err)
	}
	s.logger.Debug("NATS source stopped", "received", s.received.Load())
	return nil
}

// Received returns the number of messages taken from NATS.
func (s *Source) Received() int64 {
	return s.received.Load()
}

// Shutdown stops Run and closes a dedicated connection.
func (s *Source) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.owned && s.client != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.client.Close(ctx)
		}
	})
	return err
}
