package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/pkg/buffer"
)

// Registration identity.
const (
	Name    = "websocket"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingBind         = "bind"
	SettingPort         = "port"
	SettingPath         = "path"
	SettingClientBuffer = "clientBuffer"
	SettingPingInterval = "pingInterval"
)

// Envelope is the frame sent to clients for every message.
//
// Payload holds the body as-is when it is valid JSON and as a JSON string otherwise.
type Envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// Metrics holds Prometheus metrics shared by the websocket emitters of a node.
type Metrics struct {
	clientsConnected *prometheus.GaugeVec
	framesSent       *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &Metrics{
		clientsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "micropipe",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Currently connected WebSocket clients",
		}, []string{"component"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Frames written to WebSocket clients",
		}, []string{"component"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "micropipe",
			Subsystem: "websocket",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded because a client fell behind",
		}, []string{"component"}),
	}
	if err := registry.RegisterGaugeVec("websocket", "clients_connected", m.clientsConnected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("websocket", "frames_sent", m.framesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("websocket", "frames_dropped", m.framesDropped); err != nil {
		return nil, err
	}
	return m, nil
}

// client is one connected WebSocket peer. Frames are queued in outbox and
// written by a single goroutine, since gorilla connections allow one writer.
type client struct {
	conn      *websocket.Conn
	outbox    *buffer.Ring[[]byte]
	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.outbox.Close()
		_ = c.conn.Close()
	})
}

// Emitter broadcasts every message to the connected WebSocket clients.
type Emitter struct {
	component.Base

	bind         string
	port         int
	path         string
	clientBuffer int
	pingInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	clientsMu sync.RWMutex
	clients   map[*client]struct{}
	closed    bool

	wg           sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once

	total   atomic.Int64
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewEmitter creates an uninitialized emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	return newEmitter(logger, nil)
}

func newEmitter(logger *slog.Logger, metrics *Metrics) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		logger:   logger,
		metrics:  metrics,
		clients:  make(map[*client]struct{}),
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register adds the websocket factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize WebSocket metrics", "error", err)
		metrics = nil
	}
	logger := deps.GetLoggerWithComponent(Name)

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeEmitter),
		Description: "Broadcasts messages to WebSocket clients",
		Factory: func() component.Component {
			return newEmitter(logger, metrics)
		},
	})
}

// Type implements component.Component.
func (w *Emitter) Type() component.Type {
	return component.TypeEmitter
}

// Initialize binds the listener and starts serving upgrades on path.
func (w *Emitter) Initialize(settings component.Settings) error {
	port, err := settings.Int(SettingPort, 8082)
	if err != nil {
		return err
	}
	if port < 0 || port > 65535 {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapInvalid(fmt.Errorf("invalid port %d", port), "WebSocketEmitter", "Initialize", "port validation"))
	}
	if w.clientBuffer, err = settings.Int(SettingClientBuffer, 256); err != nil {
		return err
	}
	if w.pingInterval, err = settings.Duration(SettingPingInterval, 30*time.Second); err != nil {
		return err
	}
	w.bind = settings.String(SettingBind, "")
	w.port = port
	w.path = settings.String(SettingPath, "/ws")
	w.logger = w.logger.With("id", w.ID())

	listener, err := net.Listen("tcp", net.JoinHostPort(w.bind, strconv.Itoa(w.port)))
	if err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			errors.WrapTransient(err, "WebSocketEmitter", "Initialize", "listen"))
	}
	w.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleUpgrade)
	w.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.wg.Add(2)
	go w.serve()
	go w.pingLoop()

	w.logger.Info("WebSocket emitter listening", "addr", listener.Addr().String(), "path", w.path)
	return nil
}

// Addr returns the listening address, nil before Initialize.
func (w *Emitter) Addr() net.Addr {
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

func (w *Emitter) serve() {
	defer w.wg.Done()
	if err := w.server.Serve(w.listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		w.logger.Error("WebSocket server failed", "error", err)
	}
}

func (w *Emitter) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	c.outbox = buffer.NewRing[[]byte](w.clientBuffer,
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
		buffer.WithDropCallback[[]byte](func([]byte) {
			w.dropped.Add(1)
			if w.metrics != nil {
				w.metrics.framesDropped.WithLabelValues(w.ID()).Inc()
			}
		}),
	)

	w.clientsMu.Lock()
	if w.closed {
		w.clientsMu.Unlock()
		c.close()
		return
	}
	w.clients[c] = struct{}{}
	count := len(w.clients)
	// under the lock: Shutdown only waits once closed is set
	w.wg.Add(2)
	w.clientsMu.Unlock()

	w.recordClients(count)
	w.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "clients", count)

	go w.writeLoop(c)
	go w.readLoop(c)
}

// readLoop discards inbound frames and notices when the peer goes away.
func (w *Emitter) readLoop(c *client) {
	defer w.wg.Done()
	defer w.removeClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *Emitter) writeLoop(c *client) {
	defer w.wg.Done()
	defer w.removeClient(c)
	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
		}
		for {
			frame, ok := c.outbox.Read()
			if !ok {
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			w.sent.Add(1)
			if w.metrics != nil {
				w.metrics.framesSent.WithLabelValues(w.ID()).Inc()
			}
		}
	}
}

func (w *Emitter) pingLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			for _, c := range w.snapshot() {
				deadline := time.Now().Add(5 * time.Second)
				if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					w.removeClient(c)
				}
			}
		}
	}
}

func (w *Emitter) removeClient(c *client) {
	w.clientsMu.Lock()
	_, present := w.clients[c]
	delete(w.clients, c)
	count := len(w.clients)
	w.clientsMu.Unlock()

	c.close()
	if present {
		w.recordClients(count)
	}
}

func (w *Emitter) recordClients(n int) {
	if w.metrics != nil {
		w.metrics.clientsConnected.WithLabelValues(w.ID()).Set(float64(n))
	}
}

func (w *Emitter) snapshot() []*client {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	out := make([]*client, 0, len(w.clients))
	for c := range w.clients {
		out = append(out, c)
	}
	return out
}

// Clients returns the number of connected clients.
func (w *Emitter) Clients() int {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return len(w.clients)
}

// OnMessage queues the message for every connected client. It never blocks on
// a slow client: the client's oldest frame is dropped instead.
func (w *Emitter) OnMessage(_ context.Context, msg message.Message) error {
	w.total.Add(1)

	env := Envelope{
		Type:      "data",
		ID:        uuid.NewString(),
		Timestamp: msg.Timestamp,
		Payload:   string(msg.Body),
	}
	if sonic.Valid(msg.Body) {
		env.Payload = json.RawMessage(msg.Body)
	}
	frame, err := sonic.Marshal(env)
	if err != nil {
		return errors.WrapInvalid(err, "WebSocketEmitter", "OnMessage", "encode envelope")
	}

	for _, c := range w.snapshot() {
		if ok, _ := c.outbox.Write(frame); !ok {
			continue
		}
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// TotalNumOfMessages implements component.Emitter.
func (w *Emitter) TotalNumOfMessages() int64 {
	return w.total.Load()
}

// Frames returns how many frames were written and dropped across all clients.
func (w *Emitter) Frames() (sent, dropped int64) {
	return w.sent.Load(), w.dropped.Load()
}

// Shutdown stops the server and disconnects every client. Safe to call more than once.
func (w *Emitter) Shutdown() error {
	var err error
	w.shutdownOnce.Do(func() {
		w.clientsMu.Lock()
		w.closed = true
		w.clientsMu.Unlock()
		close(w.shutdown)
		if w.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := w.server.Shutdown(ctx); serr != nil {
				err = errors.Wrap(serr, "WebSocketEmitter", "Shutdown", "stop server")
			}
		}
		for _, c := range w.snapshot() {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			w.removeClient(c)
		}
		w.wg.Wait()
		w.logger.Debug("WebSocket emitter stopped", "total", w.total.Load(),
			"sent", w.sent.Load(), "dropped", w.dropped.Load())
	})
	return err
}
