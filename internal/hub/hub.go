// Package hub fans relay events out to connected realtime clients.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
)

// Broadcaster delivers an event to every interested client.
type Broadcaster interface {
	Broadcast(ctx context.Context, event events.Event) error
}

// Client is one websocket connection registered with the hub.
type Client struct {
	Subject string
	Role    domain.SenderRole

	send  chan []byte
	rooms map[string]struct{}
}

// Messages yields encoded frames queued for the client. It is closed on Unregister.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Hub tracks clients and the ticket rooms they joined. A client receives an
// event when it joined the ticket room, owns the ticket, or is an admin.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// New creates an empty hub. buffer bounds each client's outbound queue.
func New(logger *zap.Logger, buffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		logger:  logger.Named("hub"),
		buffer:  buffer,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client for the authenticated subject.
func (h *Hub) Register(subject string, role domain.SenderRole) *Client {
	c := &Client{
		Subject: subject,
		Role:    role,
		send:    make(chan []byte, h.buffer),
		rooms:   make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client registered", zap.String("subject", subject), zap.String("role", string(role)))
	return c
}

// Unregister removes the client from every room and closes its queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// Join adds the client to a ticket room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[ticketID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[ticketID] = members
	}
	members[c] = struct{}{}
	c.rooms[ticketID] = struct{}{}
}

// Leave removes the client from a ticket room.
func (h *Hub) Leave(c *Client, ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, ticketID)
}

func (h *Hub) leaveLocked(c *Client, ticketID string) {
	delete(c.rooms, ticketID)
	members, ok := h.rooms[ticketID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, ticketID)
	}
}

// RoomSize reports how many clients joined the ticket room.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ticketID])
}

// Clients reports how many clients are registered.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers the event to local clients.
func (h *Hub) Broadcast(_ context.Context, event events.Event) error {
	_, err := h.Deliver(event)
	return err
}

// Deliver encodes the event once and queues it for every interested client.
// A client whose queue is full misses the frame. It returns how many clients
// the frame was queued for.
func (h *Hub) Deliver(event events.Event) (int, error) {
	frame, err := events.NewFrame(string(event.Type), events.ConversationPayload{ConversationID: event.ConversationID})
	if err != nil {
		return 0, err
	}
	data, err := encodeFrame(frame)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !h.interested(c, event) {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("client queue full; frame dropped",
				zap.String("subject", c.Subject),
				zap.String("event", string(event.Type)),
				zap.String("conversation_id", event.ConversationID))
		}
	}
	return delivered, nil
}

func (h *Hub) interested(c *Client, event events.Event) bool {
	if c.Role == domain.SenderAdmin {
		return true
	}
	if event.OwnerID != "" && c.Subject == event.OwnerID {
		return true
	}
	_, joined := h.rooms[event.ConversationID][c]
	return joined
}
