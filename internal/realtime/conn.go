package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/observability"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// State represents the connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

const defaultDialTimeout = 10 * time.Second

// Options configures a connection.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
	HTTPClient        *http.Client
}

func (o *Options) defaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
}

// Conn is one authenticated realtime channel. It dials in the background,
// redials with a fixed delay after failures and gives up after the configured
// number of consecutive failed attempts.
type Conn struct {
	opts       Options
	credential string
	logger     *zap.Logger
	metrics    *observability.Metrics
	onFrame    func(*Conn, events.Frame)
	onState    func(*Conn, State)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  State
	ws     *websocket.Conn
	closed bool
}

func newConn(opts Options, credential string, logger *zap.Logger, metrics *observability.Metrics) *Conn {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		opts:       opts,
		credential: credential,
		logger:     logger,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateConnecting,
	}
}

func (c *Conn) start() {
	go c.run()
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether frames can be written right now.
func (c *Conn) Connected() bool {
	return c.State() == StateConnected
}

// Credential returns the credential the connection was created with.
func (c *Conn) Credential() string {
	return c.credential
}

// Done is closed once the connection has stopped for good.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Emit writes one frame. It fails fast with ErrNotConnected instead of queueing.
func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	frame, err := events.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ws := c.ws
	state := c.state
	c.mu.Unlock()
	if ws == nil || state != StateConnected {
		return apperrors.ErrNotConnected
	}

	wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := ws.Write(wctx, websocket.MessageText, data); err != nil {
		return apperrors.NewTransportError("emit "+event, err)
	}
	return nil
}

// Close stops the connection and any pending retry. It is safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	<-c.done
}

func (c *Conn) run() {
	defer close(c.done)
	failures := 0
	for {
		ws, err := c.dial()
		if err == nil {
			failures = 0
			c.attach(ws)
			err = c.readLoop(ws)
			c.detach(ws)
		}

		if c.ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.logger.Warn("realtime connection lost", zap.Error(err), zap.Int("failures", failures))

		if failures >= c.opts.ReconnectAttempts {
			c.logger.Warn("realtime reconnect attempts exhausted", zap.Int("attempts", c.opts.ReconnectAttempts))
			c.setState(StateDisconnected)
			return
		}
		failures++
		c.setState(StateReconnecting)
		c.metrics.Inc(observability.Reconnects)

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return
		}
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	target, err := withToken(c.opts.URL, c.credential)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.credential)

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.DialTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, apperrors.NewTransportError("realtime dial", err)
	}
	return ws, nil
}

func (c *Conn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.logger.Info("realtime connected", zap.String("url", c.opts.URL))
	c.setState(StateConnected)
}

func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close(websocket.StatusGoingAway, "")
	c.logger.Info("realtime disconnected")
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		typ, data, err := ws.Read(c.ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame events.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("realtime frame not json", zap.Error(err))
			c.metrics.Inc(observability.EventsDropped)
			continue
		}
		if c.onFrame != nil {
			c.onFrame(c, frame)
		}
	}
}

func (c *Conn) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.onState != nil {
		c.onState(c, state)
	}
}

func withToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperrors.NewTransportError("invalid realtime url", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
