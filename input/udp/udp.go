package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/pkg/retry"
)

// Registration identity.
const (
	Name    = "udp"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingBind            = "bind"
	SettingPort            = "port"
	SettingMaxDatagramSize = "maxDatagramSize"
)

// Metrics holds Prometheus metrics shared by the udp sources of a node.
type Metrics struct {
	packetsReceived *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	socketErrors    *prometheus.CounterVec
}

// newMetrics creates and registers UDP source metrics. A nil registry disables them.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "udp",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received",
		}, []string{"component"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "udp",
			Name:      "bytes_received_total",
			Help:      "Total bytes received over UDP",
		}, []string{"component"}),
		socketErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Total UDP socket read errors",
		}, []string{"component"}),
	}

	if err := registry.RegisterCounterVec("udp", "packets_received", m.packetsReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("udp", "bytes_received", m.bytesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("udp", "socket_errors", m.socketErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// Input is a source emitting one message per received datagram.
type Input struct {
	component.Base

	bind            string
	port            int
	maxDatagramSize int
	retryConfig     retry.Config
	logger          *slog.Logger
	metrics         *Metrics

	mu       sync.Mutex
	conn     *net.UDPConn
	callback component.IncomingMessageCallback
	stop     chan struct{}
	stopOnce sync.Once

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errors           atomic.Int64
}

// NewInput creates an uninitialized UDP source.
func NewInput(logger *slog.Logger) *Input {
	return newInput(logger, nil)
}

func newInput(logger *slog.Logger, metrics *Metrics) *Input {
	if logger == nil {
		logger = slog.Default()
	}
	return &Input{
		logger:      logger,
		metrics:     metrics,
		retryConfig: retry.Quick(),
		stop:        make(chan struct{}),
	}
}

// Register adds the udp source factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize UDP metrics", "error", err)
		metrics = nil
	}
	logger := deps.GetLoggerWithComponent(Name)

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeSource),
		Description: "Emits one message per UDP datagram received",
		Factory: func() component.Component {
			return newInput(logger, metrics)
		},
	})
}

// Type implements component.Component.
func (u *Input) Type() component.Type {
	return component.TypeSource
}

// Initialize validates the address and binds the socket, retrying transient failures.
func (u *Input) Initialize(settings component.Settings) error {
	portStr, err := settings.Required(SettingPort)
	if err != nil {
		return err
	}
	// 0 asks the OS for a free port
	if portStr != "0" && !govalidator.IsPort(portStr) {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(fmt.Errorf("invalid port %q", portStr), "UDPInput", "Initialize", "port validation"))
	}
	bind := settings.String(SettingBind, "0.0.0.0")
	if !govalidator.IsIP(bind) && !govalidator.IsDNSName(bind) {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(fmt.Errorf("invalid bind address %q", bind), "UDPInput", "Initialize", "bind validation"))
	}
	size, err := settings.Int(SettingMaxDatagramSize, 65536)
	if err != nil {
		return err
	}

	u.port, _ = strconv.Atoi(portStr)
	u.bind = bind
	u.maxDatagramSize = max(size, 1)
	u.logger = u.logger.With("id", u.ID(), "port", u.port)

	if err := retry.Do(context.Background(), u.retryConfig, u.bindSocket); err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapTransient(err, "UDPInput", "Initialize", "socket binding"))
	}
	return nil
}

func (u *Input) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(u.bind, strconv.Itoa(u.port)))
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("resolve UDP address %s:%d: %w", u.bind, u.port, err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", u.port, err)
	}

	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		u.logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	return nil
}

// LocalAddr returns the bound address, nil before Initialize.
func (u *Input) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// SetIncomingMessageCallback implements component.Source.
func (u *Input) SetIncomingMessageCallback(cb component.IncomingMessageCallback) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.callback = cb
}

// Run reads datagrams until Shutdown or ctx is done.
func (u *Input) Run(ctx context.Context) error {
	u.mu.Lock()
	conn, cb := u.conn, u.callback
	u.mu.Unlock()
	if conn == nil || cb == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "UDPInput", "Run", "socket and callback required")
	}

	u.logger.Info("UDP source listening", "addr", conn.LocalAddr().String())
	buf := make([]byte, u.maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.stop:
			return nil
		default:
		}

		// wake up periodically to observe shutdown
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			u.errors.Add(1)
			if u.metrics != nil {
				u.metrics.socketErrors.WithLabelValues(u.ID()).Inc()
			}
			u.logger.Warn("UDP read failed", "error", err)
			continue
		}

		u.messagesReceived.Add(1)
		u.bytesReceived.Add(int64(n))
		if u.metrics != nil {
			u.metrics.packetsReceived.WithLabelValues(u.ID()).Inc()
			u.metrics.bytesReceived.WithLabelValues(u.ID()).Add(float64(n))
		}

		cb.OnMessage(message.New(buf[:n], time.Now().UnixMilli()))
	}
}

// Received returns the datagrams and bytes received so far.
func (u *Input) Received() (messages, size int64) {
	return u.messagesReceived.Load(), u.bytesReceived.Load()
}

// Shutdown stops Run and closes the socket. Safe to call more than once.
func (u *Input) Shutdown() error {
	var err error
	u.stopOnce.Do(func() {
		close(u.stop)
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.conn != nil {
			if cerr := u.conn.Close(); cerr != nil {
				err = errors.Wrap(cerr, "UDPInput", "Shutdown", "close socket")
			}
		}
		messages, size := u.messagesReceived.Load(), u.bytesReceived.Load()
		u.logger.Debug("UDP source stopped", "messages", messages, "bytes", size, "errors", u.errors.Load())
	})
	return err
}
