// Package conn owns the realtime websocket channel: dialing, the
// auth-first handshake, heartbeats, close-code classification, and the
// reconnect schedule. Everything above it consumes parsed envelopes from
// the event channel; nothing above it touches the socket.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaydesk/relay-go/pkg/core"
	"github.com/relaydesk/relay-go/pkg/core/wire"
	"github.com/relaydesk/relay-go/pkg/metrics"
)

// Status is the channel lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Application close codes the backend uses for abnormal closure.
const (
	CloseUnauthorized  = 4401
	CloseDeviceRevoked = 4403
	CloseIdleTimeout   = 4408
)

// Config tunes the channel. Zero values are filled from DefaultConfig.
type Config struct {
	URL string

	// DialTimeout bounds the transport handshake.
	DialTimeout time.Duration
	// HeartbeatInterval is the keep-alive send period.
	HeartbeatInterval time.Duration
	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
	// MaxFailures is the consecutive-failure ceiling; past it the manager
	// stops retrying and surfaces an unauthorized event.
	MaxFailures int
	// IdleRetryDelay is the fixed delay after an idle-timeout close.
	IdleRetryDelay time.Duration
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
}

// DefaultConfig returns the production tuning.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		DialTimeout:       15 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxBackoff:        15 * time.Second,
		MaxFailures:       8,
		IdleRetryDelay:    time.Second,
		EventBuffer:       256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.URL)
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	if c.IdleRetryDelay <= 0 {
		c.IdleRetryDelay = d.IdleRetryDelay
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// BackoffDelay returns the reconnect delay for the given consecutive
// failure count: min(MaxBackoff, 2*failures seconds).
func (c Config) BackoffDelay(failures int) time.Duration {
	d := time.Duration(2*failures) * time.Second
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Event is the closed set of notifications the manager emits.
type Event interface {
	connEvent()
}

// EnvelopeEvent carries one parsed inbound envelope.
type EnvelopeEvent struct {
	Env wire.Inbound
}

func (EnvelopeEvent) connEvent() {}

// StatusEvent reports a lifecycle transition.
type StatusEvent struct {
	Old, New Status
}

func (StatusEvent) connEvent() {}

// UnauthorizedEvent reports that the channel cannot recover without fresh
// credentials, either because the backend revoked them or because the
// retry ceiling was hit.
type UnauthorizedEvent struct {
	Reason string
}

func (UnauthorizedEvent) connEvent() {}

// Manager runs the channel. Construct with NewManager; one per process.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	mu             sync.Mutex
	ws             *websocket.Conn
	status         Status
	token          string
	failures       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	gen            int

	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	events    chan Event
}

// NewManager builds a manager; it does not dial until Connect.
func NewManager(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		done:    make(chan struct{}),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the channel of manager notifications. Events are dropped,
// not blocked on, if the consumer falls behind.
func (m *Manager) Events() <-chan Event { return m.events }

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ConsecutiveFailures returns the current failure streak.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// SetToken stores the auth token used on the next (re)connect.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Token returns the stored auth token, empty after a revocation.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Connect dials the channel and performs the auth-first handshake: the
// auth envelope is the first frame written after the transport handshake,
// before anything else may be sent.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return core.NewConnectionError("connection manager is closed")
	}

	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		m.mu.Unlock()
		return core.NewInvalidRequestError("already connected")
	}
	token := m.token
	m.setStateLocked(StatusConnecting)
	m.mu.Unlock()

	if token == "" {
		m.mu.Lock()
		m.setStateLocked(StatusError)
		m.mu.Unlock()
		return core.NewAuthenticationError("no auth token")
	}

	ws, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.logger.Debug("dial failed", "url", m.cfg.URL, "error", err)
		m.handleFailure(fmt.Sprintf("dial: %v", err))
		return core.NewConnectionError(fmt.Sprintf("dial %s: %v", m.cfg.URL, err))
	}

	if err := m.writeJSON(ws, wire.NewAuth(token)); err != nil {
		ws.Close()
		m.handleFailure(fmt.Sprintf("auth write: %v", err))
		return core.NewConnectionError(fmt.Sprintf("auth write: %v", err))
	}

	m.mu.Lock()
	m.ws = ws
	m.failures = 0
	m.gen++
	gen := m.gen
	m.heartbeatStop = make(chan struct{})
	stop := m.heartbeatStop
	m.setStateLocked(StatusConnected)
	m.mu.Unlock()

	m.metrics.SetConnected(true)
	m.logger.Debug("connected", "url", m.cfg.URL)

	go m.readLoop(ws, gen)
	go m.heartbeatLoop(ws, stop)
	return nil
}

// Send writes one envelope if the channel is currently open. It never
// buffers or retries; the return value is whether the channel was open at
// the time of the call.
func (m *Manager) Send(env wire.Outbound) bool {
	m.mu.Lock()
	ws := m.ws
	open := m.status == StatusConnected && ws != nil
	m.mu.Unlock()
	if !open {
		return false
	}
	if err := m.writeJSON(ws, env); err != nil {
		m.logger.Debug("send failed", "type", env.OutboundType(), "error", err)
		return false
	}
	return true
}

// Close tears the channel down for good: cancels the reconnect timer,
// stops the heartbeat, and closes the socket. The manager cannot be
// reused afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.mu.Lock()
		if m.reconnectTimer != nil {
			m.reconnectTimer.Stop()
			m.reconnectTimer = nil
		}
		if m.heartbeatStop != nil {
			close(m.heartbeatStop)
			m.heartbeatStop = nil
		}
		ws := m.ws
		m.ws = nil
		m.setStateLocked(StatusDisconnected)
		m.mu.Unlock()

		if ws != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			m.writeMu.Lock()
			ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			ws.Close()
		}
		m.metrics.SetConnected(false)
		close(m.done)
	})
}

// Done is closed when the manager shuts down.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) writeJSON(ws *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return ws.WriteJSON(v)
}

func (m *Manager) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		env := wire.DecodeInbound(data)
		m.metrics.RecordEnvelope(env.InboundType())

		// Pings are answered inline so liveness never depends on the
		// consumer draining the event channel.
		if _, ok := env.(wire.Ping); ok {
			if err := m.writeJSON(ws, wire.NewPong()); err != nil {
				m.logger.Debug("pong failed", "error", err)
			}
			continue
		}
		if e, ok := env.(wire.Error); ok && e.Synthetic {
			m.metrics.RecordError(string(core.ErrProtocol))
		}
		m.emit(EnvelopeEvent{Env: env})
	}
}

func (m *Manager) heartbeatLoop(ws *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case t := <-ticker.C:
			if err := m.writeJSON(ws, wire.NewHeartbeat(t.UnixMilli())); err != nil {
				m.logger.Debug("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// handleReadError classifies the closure and drives the reconnect policy.
// Stale generations (a reconnect already replaced this socket) are ignored.
func (m *Manager) handleReadError(gen int, err error) {
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	if m.ws != nil {
		m.ws.Close()
		m.ws = nil
	}
	m.mu.Unlock()
	m.metrics.SetConnected(false)

	code := closeCode(err)
	m.logger.Debug("channel closed", "code", code, "error", err)

	switch code {
	case CloseUnauthorized, CloseDeviceRevoked:
		m.mu.Lock()
		m.token = ""
		m.setStateLocked(StatusError)
		m.mu.Unlock()
		m.metrics.RecordError(string(core.ErrAuthentication))
		m.emit(UnauthorizedEvent{Reason: closeReason(code)})
	case CloseIdleTimeout:
		m.mu.Lock()
		m.setStateLocked(StatusDisconnected)
		m.mu.Unlock()
		m.scheduleReconnect(m.cfg.IdleRetryDelay)
	default:
		m.handleFailure(fmt.Sprintf("abnormal close (code %d)", code))
	}
}

// handleFailure counts one transient failure and schedules the next
// attempt, or gives up past the ceiling.
func (m *Manager) handleFailure(reason string) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.setStateLocked(StatusError)
	m.mu.Unlock()
	m.metrics.RecordError(string(core.ErrConnection))

	if failures > m.cfg.MaxFailures {
		m.logger.Debug("retry ceiling reached", "failures", failures, "reason", reason)
		m.emit(UnauthorizedEvent{Reason: "too many consecutive failures"})
		return
	}
	m.scheduleReconnect(m.cfg.BackoffDelay(failures))
}

// scheduleReconnect arms the reconnect timer. Any previously pending timer
// is cancelled first so attempts stay strictly sequential.
func (m *Manager) scheduleReconnect(delay time.Duration) {
	m.mu.Lock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		m.mu.Unlock()
		if m.closed.Load() {
			return
		}
		m.metrics.RecordReconnect()
		if err := m.Connect(context.Background()); err != nil {
			m.logger.Debug("reconnect attempt failed", "error", err)
		}
	})
	m.mu.Unlock()
	m.logger.Debug("reconnect scheduled", "delay", delay)
}

// setStateLocked transitions the status and emits a StatusEvent. Caller
// holds m.mu.
func (m *Manager) setStateLocked(to Status) {
	from := m.status
	if from == to {
		return
	}
	m.status = to
	m.emit(StatusEvent{Old: from, New: to})
}

// emit delivers without blocking; a full channel drops the event.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("event dropped, channel full")
	}
}

func closeCode(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return -1
}

func closeReason(code int) string {
	switch code {
	case CloseUnauthorized:
		return "unauthorized"
	case CloseDeviceRevoked:
		return "device revoked"
	default:
		return "connection failure"
	}
}
