package gigsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures a ConnectionManager.
type RealtimeConfig struct {
	// MaxReconnectAttempts bounds consecutive connection attempts, the first
	// one included.
	MaxReconnectAttempts int
	// ReconnectDelay is the fixed pause between attempts. There is no
	// backoff or jitter.
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	HTTPClient        *http.Client
	Logger            *zap.Logger
	Metrics           *Metrics
}

func (c *RealtimeConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 1 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ConnState represents the connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// realtimeErrorPayload is the body of an "error" frame.
type realtimeErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// Event Dispatcher
// ============================================================================

// RawHandler receives the undecoded payload of one event.
type RawHandler func(payload json.RawMessage)

// Subscription identifies one registered handler.
type Subscription struct {
	ID    string
	Event string
}

// EventSource is what the EventRouter listens on.
type EventSource interface {
	Subscribe(event string, h RawHandler) Subscription
	Unsubscribe(sub Subscription)
}

type registeredHandler struct {
	id string
	h  RawHandler
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registeredHandler
	logger   *zap.Logger
}

func newEventDispatcher(logger *zap.Logger) *eventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventDispatcher{
		handlers: make(map[string][]registeredHandler),
		logger:   logger,
	}
}

// Subscribe registers h for event and returns its handle.
func (d *eventDispatcher) Subscribe(event string, h RawHandler) Subscription {
	sub := Subscription{ID: uuid.NewString(), Event: event}
	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], registeredHandler{id: sub.ID, h: h})
	d.mu.Unlock()
	return sub
}

// Unsubscribe removes a handler. Unknown handles are ignored.
func (d *eventDispatcher) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[sub.Event]
	for i, rh := range list {
		if rh.id == sub.ID {
			d.handlers[sub.Event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.handlers[sub.Event]) == 0 {
		delete(d.handlers, sub.Event)
	}
}

func (d *eventDispatcher) handlerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

// dispatch runs handlers synchronously, in registration order. A panicking
// handler is logged and skipped.
func (d *eventDispatcher) dispatch(event string, payload json.RawMessage) {
	d.mu.RLock()
	handlers := append([]registeredHandler{}, d.handlers[event]...)
	d.mu.RUnlock()
	for _, rh := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("event handler panicked", zap.String("event", event), zap.Any("panic", r))
				}
			}()
			rh.h(payload)
		}()
	}
}

// ============================================================================
// ConnectionManager
// ============================================================================

// ConnectionManager owns the single realtime websocket of a viewer.
type ConnectionManager struct {
	*eventDispatcher

	url     string
	config  *RealtimeConfig
	logger  *zap.Logger
	metrics *Metrics

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ConnState
	token            string
	intentionalClose bool
	everConnected    bool
	lifeCtx          context.Context
	cancelFn         context.CancelFunc
}

// NewConnectionManager creates a manager for the websocket at url. Call
// Connect to open it.
func NewConnectionManager(url string, config *RealtimeConfig) *ConnectionManager {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return &ConnectionManager{
		eventDispatcher: newEventDispatcher(cfg.Logger),
		url:             url,
		config:          &cfg,
		logger:          cfg.Logger.With(zap.String("component", "realtime")),
		metrics:         cfg.Metrics,
		state:           StateDisconnected,
	}
}

// Realtime creates a ConnectionManager for the client's websocket endpoint.
func (c *Client) Realtime(config *RealtimeConfig) *ConnectionManager {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return NewConnectionManager(c.WSURL(), &cfg)
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect opens the connection with token. It is a no-op returning nil while
// connected. While a connect or reconnect loop is already running it returns
// ErrConnectInProgress without dialing; the running loop decides the outcome
// and State reports it. An empty token leaves the manager disconnected and
// returns nil: the viewer is simply not signed in.
//
// Failed attempts are retried with a fixed delay until MaxReconnectAttempts
// is reached, which returns ErrReconnectExhausted. A rejected token stops at
// once with ErrAuthRejected.
func (m *ConnectionManager) Connect(ctx context.Context, token string) error {
	if token == "" {
		m.logger.Debug("connect skipped: no auth token")
		return nil
	}

	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	m.state = StateConnecting
	m.token = token
	m.intentionalClose = false
	m.lifeCtx, m.cancelFn = context.WithCancel(context.Background())
	lifeCtx := m.lifeCtx
	m.mu.Unlock()
	m.metrics.setConnState(StateConnecting)

	return m.connectLoop(ctx, lifeCtx, token)
}

func (m *ConnectionManager) connectLoop(ctx, lifeCtx context.Context, token string) error {
	var lastErr error
	for attempt := 1; attempt <= m.config.MaxReconnectAttempts; attempt++ {
		if attempt > 1 {
			m.metrics.reconnectAttempt()
			timer := time.NewTimer(m.config.ReconnectDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				m.abandon(lifeCtx)
				return ctx.Err()
			case <-lifeCtx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		conn, err := m.dial(ctx, token)
		if err == nil {
			m.attach(conn, lifeCtx)
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrAuthRejected) {
			m.logger.Warn("realtime authentication rejected", zap.Error(err))
			m.abandon(lifeCtx)
			return err
		}
		m.logger.Warn("realtime connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.config.MaxReconnectAttempts),
			zap.Error(err))
		if ctx.Err() != nil {
			m.abandon(lifeCtx)
			return ctx.Err()
		}
	}

	m.abandon(lifeCtx)
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, m.config.MaxReconnectAttempts, lastErr)
}

// abandon gives up on the connection attempt owned by lifeCtx. A newer
// Connect or a Disconnect that already took over is left alone.
func (m *ConnectionManager) abandon(lifeCtx context.Context) {
	m.mu.Lock()
	if m.lifeCtx != lifeCtx || m.intentionalClose {
		m.mu.Unlock()
		return
	}
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	m.metrics.setConnState(StateDisconnected)
}

func (m *ConnectionManager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.config.HandshakeTimeout)
	defer cancel()

	opts := &websocket.DialOptions{
		HTTPClient: m.config.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	}
	conn, resp, err := websocket.Dial(dialCtx, m.url, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	// The first frame must be "authenticated".
	_, data, err := conn.Read(dialCtx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("read auth message: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("decode auth message: %w", err)
	}
	switch env.Type {
	case EventAuthenticated:
		return conn, nil
	case EventError:
		var p realtimeErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		conn.Close(websocket.StatusPolicyViolation, "")
		if p.Code == "UNAUTHORIZED" || p.Code == "FORBIDDEN" {
			return nil, fmt.Errorf("%w: %s", ErrAuthRejected, p.Message)
		}
		return nil, fmt.Errorf("server error during handshake: %s: %s", p.Code, p.Message)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return nil, fmt.Errorf("expected %q, got %q", EventAuthenticated, env.Type)
}

func (m *ConnectionManager) attach(conn *websocket.Conn, lifeCtx context.Context) {
	m.mu.Lock()
	if m.intentionalClose || m.lifeCtx != lifeCtx {
		m.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return
	}
	m.conn = conn
	m.state = StateConnected
	reconnect := m.everConnected
	m.everConnected = true
	m.mu.Unlock()
	m.metrics.setConnState(StateConnected)

	m.logger.Info("realtime connected", zap.Bool("reconnect", reconnect))
	payload, _ := json.Marshal(ConnectedEvent{Reconnect: reconnect})
	m.dispatch(EventConnect, payload)

	go m.readLoop(lifeCtx, conn)
	go m.heartbeatLoop(lifeCtx, conn)
}

// Disconnect closes the connection and stops any reconnect loop. A disconnect
// event is dispatched only when a live connection is closed: a drop already
// reported its own, and an attempt that never connected has nothing to report.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	wasConnected := m.state == StateConnected
	m.intentionalClose = true
	cancel := m.cancelFn
	m.cancelFn = nil
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	m.metrics.setConnState(StateDisconnected)

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			m.logger.Debug("close after disconnect", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
	if wasConnected {
		payload, _ := json.Marshal(DisconnectedEvent{Code: int(websocket.StatusNormalClosure), Reason: "client disconnect"})
		m.dispatch(EventDisconnect, payload)
	}
}

// Emit sends one event. Nothing is queued: while disconnected the event is
// dropped, logged and ErrNotConnected is returned.
func (m *ConnectionManager) Emit(ctx context.Context, event string, payload interface{}) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if conn == nil || !connected {
		m.logger.Warn("emit dropped: not connected", zap.String("event", event))
		m.metrics.emitDropped(event)
		return fmt.Errorf("%w: dropped %q", ErrNotConnected, event)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	data, err := json.Marshal(Envelope{Type: event, Payload: raw})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.logger.Warn("emit failed", zap.String("event", event), zap.Error(err))
		m.metrics.emitDropped(event)
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (m *ConnectionManager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleDrop(conn, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			m.logger.Warn("undecodable realtime frame dropped", zap.Int("bytes", len(data)))
			m.metrics.eventDropped("", "undecodable")
			continue
		}
		m.metrics.eventReceived(env.Type)
		m.dispatch(env.Type, env.Payload)
	}
}

// handleDrop reacts to an unexpected read failure: report the disconnect and
// run the bounded reconnect loop with the last token.
func (m *ConnectionManager) handleDrop(conn *websocket.Conn, cause error) {
	m.mu.Lock()
	if m.intentionalClose || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	token := m.token
	lifeCtx := m.lifeCtx
	m.mu.Unlock()
	m.metrics.setConnState(StateDisconnected)

	m.logger.Warn("realtime connection lost", zap.Error(cause))
	payload, _ := json.Marshal(DisconnectedEvent{Code: int(websocket.CloseStatus(cause)), Reason: cause.Error()})
	m.dispatch(EventDisconnect, payload)

	m.mu.Lock()
	if m.intentionalClose || m.lifeCtx != lifeCtx {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()
	m.metrics.setConnState(StateConnecting)

	if err := m.connectLoop(lifeCtx, lifeCtx, token); err != nil {
		m.logger.Error("realtime reconnect gave up", zap.Error(err))
	}
}

func (m *ConnectionManager) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			current := m.conn == conn
			m.mu.Unlock()
			if !current {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("heartbeat failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}
