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
	Name    = "nats-emitter"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingURL            = "url"
	SettingSubject        = "subject"
	SettingConnectTimeout = "connectTimeout"
)

// Emitter publishes every message body to a NATS subject, through the node's
// shared client or a dedicated connection when url is set.
type Emitter struct {
	component.Base

	subject string
	shared  *natsclient.Client
	client  *natsclient.Client
	owned   bool
	logger  *slog.Logger

	closeOnce sync.Once
	total     atomic.Int64
	published atomic.Int64
}

// NewEmitter creates an uninitialized emitter.
func NewEmitter(shared *natsclient.Client, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{shared: shared, logger: logger}
}

// Register adds the nats-emitter factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeEmitter),
		Description: "Publishes message bodies to a NATS subject",
		Factory: func() component.Component {
			return NewEmitter(deps.NATSClient, logger)
		},
	})
}

// Type implements component.Component.
func (e *Emitter) Type() component.Type {
	return component.TypeEmitter
}

// Initialize resolves the client and connects a dedicated one when url is set.
func (e *Emitter) Initialize(settings component.Settings) error {
	subject, err := settings.Required(SettingSubject)
	if err != nil {
		return err
	}
	timeout, err := settings.Duration(SettingConnectTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	e.subject = subject
	e.logger = e.logger.With("id", e.ID(), "subject", subject)

	url := settings.String(SettingURL, "")
	if url == "" {
		if e.shared == nil {
			return errors.Cause(errors.ErrRequiredInputMissing,
				errors.WrapInvalid(errors.ErrMissingConfig, "NATSEmitter", "Initialize",
					"url setting or node NATS connection"))
		}
		e.client = e.shared
		return nil
	}

	client, err := natsclient.NewClient(url,
		natsclient.WithLogger(e.logger),
		natsclient.WithName("micropipe-"+e.ID()),
	)
	if err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed, err)
	}
	e.client = client
	e.owned = true
	return nil
}

// OnMessage publishes msg.Body.
func (e *Emitter) OnMessage(ctx context.Context, msg message.Message) error {
	e.total.Add(1)
	if err := e.client.Publish(ctx, e.subject, msg.Body); err != nil {
		return err
	}
	e.published.Add(1)
	return nil
}

// TotalNumOfMessages implements component.Emitter.
func (e *Emitter) TotalNumOfMessages() int64 {
	return e.total.Load()
}

// Published returns the number of successful publishes.
func (e *Emitter) Published() int64 {
	return e.published.Load()
}

// Shutdown flushes pending publishes and closes a dedicated connection.
func (e *Emitter) Shutdown() error {
	var err error
	e.closeOnce.Do(func() {
		if e.client == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if e.client.IsHealthy() {
			if ferr := e.client.Flush(ctx); ferr != nil {
				e.logger.Warn("Failed to flush NATS publishes", "error", ferr)
			}
		}
		if e.owned {
			err = e.client.Close(ctx)
		}
		e.logger.Debug("NATS emitter stopped", "published", e.published.Load())
	})
	return err
}
