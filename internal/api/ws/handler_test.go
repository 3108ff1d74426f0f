package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/repository"
	"github.com/vendorhub/ticket-sync/internal/service"
)

type relay struct {
	server  *httptest.Server
	tokens  *auth.TokenManager
	tickets *service.TicketService
	hub     *hub.Hub
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	ticketRepo, messageRepo := repository.NewMemoryRepositories()
	dispatcher := events.NewInMemoryDispatcher()
	h := hub.New(nil, 16)
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
	})
	notifications := service.NewNotificationService(dispatcher, h, nil)
	notifications.RegisterHandlers()
	t.Cleanup(notifications.Stop)

	handler := NewHandler(auth.NewAuthMiddleware(tokens), svc, h, []string{"*"}, nil, nil)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &relay{server: server, tokens: tokens, tickets: svc, hub: h}
}

func (r *relay) token(t *testing.T, subject string, role domain.SenderRole) string {
	t.Helper()
	token, _, err := r.tokens.GenerateToken(subject, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (r *relay) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := events.NewFrame(event, payload)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	data, _ := json.Marshal(frame)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func next(t *testing.T, conn *websocket.Conn) events.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame events.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestRejectsMissingToken(t *testing.T) {
	r := newRelay(t)
	resp, err := http.Get(r.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestBearerHeaderAccepted(t *testing.T) {
	r := newRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token(t, "vendor-1", domain.SenderVendor))
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return r.hub.Clients() == 1 })
}

func TestSendMessageFansOutToRoomAndOwner(t *testing.T) {
	r := newRelay(t)
	vendor := domain.Session{SubjectID: "vendor-1", Role: domain.SenderVendor}
	ticket, err := r.tickets.CreateTicket(context.Background(), vendor, service.TicketCreateInput{Subject: "Payout", Description: "late"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	owner := r.dial(t, r.token(t, "vendor-1", domain.SenderVendor))
	customer := r.dial(t, r.token(t, "customer-1", domain.SenderCustomer))
	waitFor(t, func() bool { return r.hub.Clients() == 2 })

	// The customer does not own the ticket, so the join is refused.
	send(t, customer, events.CommandJoinRoom, events.RoomPayload{TicketID: ticket.ID})
	if f := next(t, customer); f.Event != EventError {
		t.Fatalf("customer got %q, want error", f.Event)
	}

	send(t, owner, events.CommandJoinRoom, events.RoomPayload{TicketID: ticket.ID})
	waitFor(t, func() bool { return r.hub.RoomSize(ticket.ID) == 1 })

	send(t, owner, events.CommandSendMessage, events.SendMessagePayload{TicketID: ticket.ID, Message: "hello", ClientMessageID: "c-1"})
	frame := next(t, owner)
	if frame.Event != string(events.EventMessageReceived) {
		t.Fatalf("event = %q", frame.Event)
	}
	ev, err := events.Decode(frame)
	if err != nil || ev.ConversationID != ticket.ID {
		t.Fatalf("decoded = %+v, %v", ev, err)
	}

	detail, err := r.tickets.GetTicket(context.Background(), vendor, ticket.ID)
	if err != nil || len(detail.Messages) != 1 || detail.Messages[0].Body != "hello" {
		t.Fatalf("detail = %+v, %v", detail, err)
	}

	send(t, owner, events.CommandLeaveRoom, events.RoomPayload{TicketID: ticket.ID})
	waitFor(t, func() bool { return r.hub.RoomSize(ticket.ID) == 0 })
}

func TestUnknownCommandRejected(t *testing.T) {
	r := newRelay(t)
	conn := r.dial(t, r.token(t, "vendor-1", domain.SenderVendor))
	send(t, conn, "typing", events.RoomPayload{TicketID: "x"})
	frame := next(t, conn)
	var payload ErrorPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != EventError || payload.Command != "typing" || payload.Code != "VALIDATION_FAILED" {
		t.Fatalf("frame = %s %s", frame.Event, frame.Data)
	}
}
