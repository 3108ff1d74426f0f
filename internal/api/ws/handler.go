// Package ws serves the realtime channel of the relay.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/observability"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

const (
	readLimit    = 64 * 1024
	writeTimeout = 5 * time.Second

	// EventError is sent back when a command is rejected.
	EventError = "error"
)

// Authenticator validates a raw credential.
type Authenticator interface {
	Authenticate(token string) (*auth.Principal, error)
}

// Tickets is the slice of the ticket service the channel needs.
type Tickets interface {
	GetTicket(ctx context.Context, actor domain.Session, ticketID string) (*domain.TicketDetail, error)
	AddMessage(ctx context.Context, actor domain.Session, ticketID, body, clientMessageID string) (*domain.Message, error)
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler upgrades authenticated requests and serves one session per connection.
type Handler struct {
	auth           Authenticator
	tickets        Tickets
	hub            *hub.Hub
	originPatterns []string
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// NewHandler builds the websocket endpoint.
func NewHandler(authenticator Authenticator, tickets Tickets, h *hub.Hub, originPatterns []string, logger *zap.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:           authenticator,
		tickets:        tickets,
		hub:            h,
		originPatterns: originPatterns,
		logger:         logger.Named("ws"),
		metrics:        metrics,
	}
}

// ServeHTTP accepts the credential as a bearer header or a token query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.auth.Authenticate(requestToken(r))
	if err != nil {
		h.metrics.RecordError("/ws", r.Method, apperrors.CodeUnauthorized)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)
	h.metrics.Inc(observability.RelayConnections)

	ctx, cancel := context.WithCancel(r.Context())
	s := &session{
		handler: h,
		conn:    conn,
		actor:   domain.Session{SubjectID: principal.SubjectID, Role: principal.Role},
		client:  h.hub.Register(principal.SubjectID, principal.Role),
		replies: make(chan []byte, 8),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.logger.Info("client connected", zap.String("subject", principal.SubjectID), zap.String("role", string(principal.Role)))
	s.run()
	h.logger.Info("client disconnected", zap.String("subject", principal.SubjectID))
}

func requestToken(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

type session struct {
	handler *Handler
	conn    *websocket.Conn
	actor   domain.Session
	client  *hub.Client
	replies chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *session) run() {
	defer s.handler.hub.Unregister(s.client)
	go s.writePump()
	s.readPump()
}

func (s *session) readPump() {
	defer s.cancel()
	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame events.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.reject("", apperrors.NewValidationError("invalid frame", nil))
			continue
		}
		s.handle(frame)
	}
}

func (s *session) writePump() {
	defer func() { _ = s.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		var data []byte
		var ok bool
		select {
		case <-s.ctx.Done():
			return
		case data, ok = <-s.client.Messages():
		case data, ok = <-s.replies:
		}
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := s.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}

func (s *session) handle(frame events.Frame) {
	switch frame.Event {
	case events.CommandJoinRoom:
		var payload events.RoomPayload
		if err := decodePayload(frame, &payload); err != nil {
			s.reject(frame.Event, err)
			return
		}
		if _, err := s.handler.tickets.GetTicket(s.ctx, s.actor, payload.TicketID); err != nil {
			s.reject(frame.Event, err)
			return
		}
		s.handler.hub.Join(s.client, payload.TicketID)

	case events.CommandLeaveRoom:
		var payload events.RoomPayload
		if err := decodePayload(frame, &payload); err != nil {
			s.reject(frame.Event, err)
			return
		}
		s.handler.hub.Leave(s.client, payload.TicketID)

	case events.CommandSendMessage:
		var payload events.SendMessagePayload
		if err := decodePayload(frame, &payload); err != nil {
			s.reject(frame.Event, err)
			return
		}
		if _, err := s.handler.tickets.AddMessage(s.ctx, s.actor, payload.TicketID, payload.Message, payload.ClientMessageID); err != nil {
			s.reject(frame.Event, err)
			return
		}
		s.handler.metrics.Inc(observability.RelayMessages)

	default:
		s.reject(frame.Event, apperrors.NewValidationError("unknown command", map[string]any{"command": frame.Event}))
	}
}

func (s *session) reject(command string, err error) {
	domainErr := apperrors.ToDomainError(err)
	s.handler.metrics.Inc(observability.RelayRejected)
	s.handler.logger.Debug("command rejected",
		zap.String("subject", s.actor.SubjectID),
		zap.String("command", command),
		zap.Error(err))

	frame, ferr := events.NewFrame(EventError, ErrorPayload{Command: command, Code: domainErr.Code, Message: domainErr.Message})
	if ferr != nil {
		return
	}
	data, ferr := json.Marshal(frame)
	if ferr != nil {
		return
	}
	select {
	case s.replies <- data:
	default:
	}
}

func decodePayload(frame events.Frame, dst any) error {
	if len(frame.Data) == 0 {
		return apperrors.NewValidationError("payload required", nil)
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var ticketID string
	switch p := dst.(type) {
	case *events.RoomPayload:
		p.TicketID = strings.TrimSpace(p.TicketID)
		ticketID = p.TicketID
	case *events.SendMessagePayload:
		p.TicketID = strings.TrimSpace(p.TicketID)
		ticketID = p.TicketID
	}
	if ticketID == "" {
		return apperrors.NewValidationError("ticketId required", nil)
	}
	return nil
}
