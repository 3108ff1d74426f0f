package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType enumerates inbound event identifiers.
type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventTicketUpdated   EventType = "ticket_updated"
)

// Outbound command names.
const (
	CommandJoinRoom    = "join_ticket_room"
	CommandLeaveRoom   = "leave_ticket_room"
	CommandSendMessage = "send_message"
)

// Known reports whether t is an inbound event this client understands.
func (t EventType) Known() bool {
	return t == EventMessageReceived || t == EventTicketUpdated
}

// Frame is the wire envelope for every realtime message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a frame.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Event is a validated inbound notification about one conversation.
type Event struct {
	Type           EventType
	ConversationID string
	ReceivedAt     time.Time
	// OwnerID is set by the relay when it publishes; decoded events leave it empty.
	OwnerID string
}

// ConversationPayload is the body of every inbound event.
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// RoomPayload is the body of join/leave commands.
type RoomPayload struct {
	TicketID string `json:"ticketId"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	TicketID        string `json:"ticketId"`
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// ErrMalformedEvent marks a frame that failed validation.
var ErrMalformedEvent = errors.New("malformed event")

// Decode validates an inbound frame into an Event. Unknown event names and
// payloads without a conversation id are rejected.
func Decode(frame Frame) (Event, error) {
	eventType := EventType(frame.Event)
	if !eventType.Known() {
		return Event{}, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, frame.Event)
	}
	if len(frame.Data) == 0 {
		return Event{}, fmt.Errorf("%w: %s without payload", ErrMalformedEvent, frame.Event)
	}
	var payload ConversationPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, frame.Event, err)
	}
	id := strings.TrimSpace(payload.ConversationID)
	if id == "" {
		return Event{}, fmt.Errorf("%w: %s missing conversationId", ErrMalformedEvent, frame.Event)
	}
	return Event{Type: eventType, ConversationID: id, ReceivedAt: time.Now()}, nil
}
