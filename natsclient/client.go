package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/pkg/retry"
)

// ConnectionStatus is the state of the client's connection.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = map[ConnectionStatus]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusCircuitOpen:  "circuit_open",
}

func (s ConnectionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// drainTimeout bounds Close when the caller's context has no earlier deadline.
const drainTimeout = 10 * time.Second

// Client owns one NATS connection shared by the node: the nats source and
// emitter components and the statistics sink publish and subscribe through it.
// Repeated connection failures open a circuit breaker that rejects further
// attempts until its backoff elapses.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Metrics
	status  atomic.Int32
	breaker breaker
	closed  atomic.Bool

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	name          string
	username      string
	password      string
	token         string

	mu   sync.RWMutex
	conn *nats.Conn
	subs map[*nats.Subscription]struct{}
}

// NewClient creates a disconnected client for url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		breaker:       newBreaker(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		subs:          make(map[*nats.Subscription]struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// URL returns the server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus { return ConnectionStatus(c.status.Load()) }

// IsHealthy reports whether the connection is usable.
func (c *Client) IsHealthy() bool { return c.Status() == StatusConnected }

// Failures returns the number of failed connection attempts since the last success.
func (c *Client) Failures() int32 {
	n, _ := c.breaker.state()
	return n
}

// Backoff returns how long the circuit stays open the next time it trips.
func (c *Client) Backoff() time.Duration {
	_, d := c.breaker.state()
	return d
}

// GetConnection returns the underlying connection, nil when disconnected.
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(int32(status))
	if c.metrics != nil {
		c.metrics.RecordNATSStatus(status == StatusConnected)
	}
}

func (c *Client) recordFailure() {
	total, tripped, wait := c.breaker.fail()
	c.logger.Debug("NATS connection failure recorded", "failures", total)
	if !tripped {
		return
	}
	if c.status.Swap(int32(StatusCircuitOpen)) == int32(StatusCircuitOpen) {
		c.logger.Warn("NATS circuit breaker still open", "backoff", c.Backoff())
		return
	}
	c.logger.Warn("NATS circuit breaker opened", "failures", total, "backoff", wait)
	time.AfterFunc(wait, c.halfOpen)
}

func (c *Client) resetCircuit() {
	c.breaker.reset()
	c.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected))
}

// halfOpen lets the next Connect through.
func (c *Client) halfOpen() {
	c.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected))
}

func (c *Client) options() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.closed.Load() {
				return
			}
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "url", c.url, "error", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			c.setStatus(StatusConnected)
			c.breaker.reset()
			if c.metrics != nil {
				c.metrics.RecordNATSReconnect()
			}
			c.logger.Info("NATS reconnected", "url", c.url)
		}),
		nats.ClosedHandler(func(*nats.Conn) { c.setStatus(StatusDisconnected) }),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			c.logger.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.name != "" {
		opts = append(opts, nats.Name(c.name))
	}
	return opts
}

// Connect dials the server once.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(ErrNotConnected, "Client", "Connect", "client closed")
	}
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	dialed := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.options()...)
		dialed <- result{conn, err}
	}()

	var err error
	select {
	case r := <-dialed:
		if r.err == nil {
			c.mu.Lock()
			c.conn = r.conn
			c.mu.Unlock()
		}
		err = r.err
	case <-ctx.Done():
		err = ctx.Err()
		go func() {
			if r := <-dialed; r.conn != nil {
				r.conn.Close()
			}
		}()
	}

	if err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.resetCircuit()
	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// ConnectWithRetry calls Connect with exponential backoff until it succeeds,
// cfg is exhausted or ctx is done. An open circuit is not retried.
func (c *Client) ConnectWithRetry(ctx context.Context, cfg retry.Config) error {
	return retry.Do(ctx, cfg, func() error {
		err := c.Connect(ctx)
		if stderrors.Is(err, ErrCircuitOpen) {
			return retry.NonRetryable(err)
		}
		return err
	})
}

// WaitForConnection blocks until the client is connected or ctx is done.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for NATS connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Close unsubscribes, drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	conn, subs := c.conn, c.subs
	c.conn, c.subs = nil, make(map[*nats.Subscription]struct{})
	c.mu.Unlock()

	var errs []error
	for sub := range subs {
		if err := unsubscribe(sub); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+sub.Subject))
		}
	}

	if conn != nil {
		ctx, cancel := context.WithTimeout(ctx, drainTimeout)
		drained := make(chan error, 1)
		go func() { drained <- conn.Drain() }()

		select {
		case err := <-drained:
			if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-ctx.Done():
			errs = append(errs, errors.WrapTransient(ctx.Err(), "Client", "Close", "drain connection"))
		}
		cancel()
		conn.Close()
	}

	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

func unsubscribe(sub *nats.Subscription) error {
	err := sub.Unsubscribe()
	if err == nil || stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}

// Subscribe delivers every message on subject to handler until the returned
// function is called or the client is closed. Messages arriving after ctx
// is done are dropped.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		if ctx.Err() == nil {
			handler(ctx, msg.Data)
		}
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe to "+subject)
	}
	c.subs[sub] = struct{}{}

	return func() error {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		return unsubscribe(sub)
	}, nil
}

func (c *Client) connected() (*nats.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// Publish sends data to subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := c.connected()
	if err != nil {
		return err
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush(ctx context.Context) error {
	conn, err := c.connected()
	if err != nil {
		return err
	}
	return conn.FlushWithContext(ctx)
}
