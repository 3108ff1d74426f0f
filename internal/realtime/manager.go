package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/config"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/observability"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// Manager owns the single realtime connection of one authenticated session.
// It is created at login and torn down with Disconnect at logout; it is the
// only component that creates or replaces the connection.
type Manager struct {
	opts       Options
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	rooms      *Rooms

	mu   sync.Mutex
	conn *Conn
}

// NewManager builds a manager from client configuration.
func NewManager(cfg config.ClientConfig, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	return NewManagerWithOptions(Options{
		URL:               cfg.RealtimeURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		WriteTimeout:      cfg.WriteTimeout,
	}, logger, metrics)
}

// NewManagerWithOptions builds a manager from explicit connection options.
func NewManagerWithOptions(opts Options, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		opts:       opts,
		logger:     logger.Named("realtime"),
		metrics:    metrics,
		dispatcher: events.NewInMemoryDispatcher(),
	}
	m.rooms = newRooms(m, m.logger)
	return m
}

// EnsureConnection returns the session's connection, creating it on first use.
// An existing connection is reused while it is connected or still trying to
// connect with the same credential. A connection that gave up, or one created
// for a different credential, is closed and replaced. The handshake happens in
// the background; callers treat the result as eventually connected.
func (m *Manager) EnsureConnection(credential string) *Conn {
	m.mu.Lock()
	current := m.conn
	if current != nil && current.Credential() == credential && current.State() != StateDisconnected {
		m.mu.Unlock()
		return current
	}

	conn := newConn(m.opts, credential, m.logger, m.metrics)
	conn.onFrame = m.handleFrame
	conn.onState = m.handleState
	m.conn = conn
	m.mu.Unlock()

	if current != nil {
		if current.Credential() != credential {
			m.logger.Info("realtime credential changed; replacing connection")
			m.rooms.reset()
		}
		current.Close()
	}
	conn.start()
	return conn
}

// Connection returns the current connection or nil. It never dials.
func (m *Manager) Connection() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Connected reports whether a live connection is available for sends.
func (m *Manager) Connected() bool {
	conn := m.Connection()
	return conn != nil && conn.Connected()
}

// Emit writes a frame on the current connection.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	conn := m.Connection()
	if conn == nil {
		return apperrors.ErrNotConnected
	}
	return conn.Emit(ctx, event, payload)
}

// Subscribe registers a handler for inbound events of one type. The returned
// func removes it.
func (m *Manager) Subscribe(eventType events.EventType, handler events.EventHandler) func() {
	return m.dispatcher.Subscribe(eventType, handler)
}

// Dispatcher exposes the inbound event dispatcher.
func (m *Manager) Dispatcher() events.Dispatcher {
	return m.dispatcher
}

// Rooms returns the room subscription tracker bound to this session.
func (m *Manager) Rooms() *Rooms {
	return m.rooms
}

// JoinRoom is shorthand for Rooms().Join.
func (m *Manager) JoinRoom(ctx context.Context, conversationID string) func() {
	return m.rooms.Join(ctx, conversationID)
}

// Disconnect closes the active connection, if any, and resets the manager so
// the next EnsureConnection starts from scratch.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.rooms.reset()
	if conn != nil {
		conn.Close()
		m.logger.Info("realtime session closed")
	}
}

func (m *Manager) isCurrent(conn *Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn == conn
}

func (m *Manager) handleFrame(conn *Conn, frame events.Frame) {
	if !m.isCurrent(conn) {
		return
	}
	ev, err := events.Decode(frame)
	if err != nil {
		if events.EventType(frame.Event).Known() {
			m.logger.Warn("dropping malformed realtime event", zap.String("event", frame.Event), zap.Error(err))
		} else {
			m.logger.Debug("ignoring realtime event", zap.String("event", frame.Event))
		}
		m.metrics.Inc(observability.EventsDropped)
		return
	}
	m.metrics.Inc(observability.EventsReceived)
	if err := m.dispatcher.Publish(context.Background(), ev); err != nil {
		m.logger.Warn("realtime event handler failed",
			zap.String("event", string(ev.Type)),
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err))
	}
}

func (m *Manager) handleState(conn *Conn, state State) {
	m.logger.Debug("realtime state", zap.String("state", string(state)))
	if state != StateConnected || !m.isCurrent(conn) {
		return
	}
	m.rooms.rejoin(conn)
}
