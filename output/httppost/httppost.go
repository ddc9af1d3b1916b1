package httppost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/asaskevich/govalidator"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/pkg/retry"
)

// Registration identity.
const (
	Name    = "http-post"
	Version = "1.0.0"
)

// Settings keys. Headers are given as header.<Name> entries.
const (
	SettingURL         = "url"
	SettingTimeout     = "timeout"
	SettingRetryCount  = "retryCount"
	SettingContentType = "contentType"
	SettingHeaderGroup = "header"
)

// Emitter POSTs every message body to an HTTP endpoint.
type Emitter struct {
	component.Base

	url         string
	headers     map[string]string
	contentType string
	retryConfig retry.Config
	httpClient  *http.Client
	logger      *slog.Logger

	total   atomic.Int64
	sent    atomic.Int64
	retried atomic.Int64
	failed  atomic.Int64
}

// NewEmitter creates an uninitialized emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger}
}

// Register adds the http-post factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	logger := deps.GetLoggerWithComponent(Name)
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeEmitter),
		Description: "Sends message bodies to an HTTP endpoint with retries",
		Factory: func() component.Component {
			return NewEmitter(logger)
		},
	})
}

// Type implements component.Component.
func (h *Emitter) Type() component.Type {
	return component.TypeEmitter
}

// Initialize validates the endpoint and builds the HTTP client.
func (h *Emitter) Initialize(settings component.Settings) error {
	url, err := settings.Required(SettingURL)
	if err != nil {
		return err
	}
	if !govalidator.IsRequestURL(url) {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(fmt.Errorf("invalid url %q", url), "HTTPPostEmitter", "Initialize", "url validation"))
	}
	timeout, err := settings.Duration(SettingTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	retries, err := settings.Int(SettingRetryCount, 3)
	if err != nil {
		return err
	}
	if retries < 0 || retries > 10 {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostEmitter", "Initialize", "retryCount must be between 0 and 10"))
	}

	h.url = url
	h.contentType = settings.String(SettingContentType, "application/octet-stream")
	h.headers = settings.Sub(SettingHeaderGroup)
	h.httpClient = &http.Client{Timeout: timeout}
	h.retryConfig = retry.Config{
		MaxAttempts:  retries + 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
		OnRetry:      h.onRetry,
	}
	h.logger = h.logger.With("id", h.ID(), "url", url)
	return nil
}

// OnMessage posts the body. Server errors and transport failures are retried;
// any other non-2xx response fails at once.
func (h *Emitter) OnMessage(ctx context.Context, msg message.Message) error {
	h.total.Add(1)

	err := retry.Do(ctx, h.retryConfig, func() error {
		return h.post(ctx, msg.Body)
	})
	if err != nil {
		h.failed.Add(1)
		return errors.WrapTransient(err, "HTTPPostEmitter", "OnMessage", "post message")
	}
	h.sent.Add(1)
	return nil
}

func (h *Emitter) onRetry(attempt int, err error, delay time.Duration) {
	h.retried.Add(1)
	h.logger.Debug("HTTP POST failed, retrying", "attempt", attempt, "delay", delay, "error", err)
}

func (h *Emitter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", h.contentType)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// drain so the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP %s", resp.Status)
	default:
		return retry.NonRetryable(fmt.Errorf("HTTP %s", resp.Status))
	}
}

// TotalNumOfMessages implements component.Emitter.
func (h *Emitter) TotalNumOfMessages() int64 {
	return h.total.Load()
}

// Delivery returns how many messages were sent, retried and given up on.
func (h *Emitter) Delivery() (sent, retried, failed int64) {
	return h.sent.Load(), h.retried.Load(), h.failed.Load()
}

// Shutdown releases idle connections.
func (h *Emitter) Shutdown() error {
	if h.httpClient != nil {
		h.httpClient.CloseIdleConnections()
	}
	h.logger.Debug("HTTP POST emitter stopped",
		"total", h.total.Load(), "sent", h.sent.Load(), "failed", h.failed.Load())
	return nil
}
