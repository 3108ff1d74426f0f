package hub

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vendorhub/ticket-sync/internal/domain"
	"github.com/vendorhub/ticket-sync/internal/events"
)

func drain(c *Client) []events.Frame {
	var out []events.Frame
	for {
		select {
		case data := <-c.Messages():
			var f events.Frame
			if err := json.Unmarshal(data, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func TestDeliverAudience(t *testing.T) {
	h := New(nil, 8)
	owner := h.Register("vendor-1", domain.SenderVendor)
	stranger := h.Register("vendor-2", domain.SenderVendor)
	admin := h.Register("admin-1", domain.SenderAdmin)
	joined := h.Register("customer-1", domain.SenderCustomer)
	h.Join(joined, "T-1")

	n, err := h.Deliver(events.Event{Type: events.EventMessageReceived, ConversationID: "T-1", OwnerID: "vendor-1"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n != 3 {
		t.Fatalf("delivered = %d, want 3", n)
	}

	if got := drain(stranger); len(got) != 0 {
		t.Fatalf("stranger received %v", got)
	}
	for _, c := range []*Client{owner, admin, joined} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != "message_received" {
			t.Fatalf("%s got %v", c.Subject, got)
		}
		var payload events.ConversationPayload
		if err := json.Unmarshal(got[0].Data, &payload); err != nil || payload.ConversationID != "T-1" {
			t.Fatalf("payload = %s (%v)", got[0].Data, err)
		}
	}
}

func TestLeaveAndUnregister(t *testing.T) {
	h := New(nil, 8)
	c := h.Register("customer-1", domain.SenderCustomer)
	h.Join(c, "T-1")
	h.Join(c, "T-1")
	if n := h.RoomSize("T-1"); n != 1 {
		t.Fatalf("room size = %d, want 1", n)
	}
	h.Leave(c, "T-1")
	if n := h.RoomSize("T-1"); n != 0 {
		t.Fatalf("room size after leave = %d", n)
	}

	h.Join(c, "T-2")
	h.Unregister(c)
	h.Unregister(c)
	if h.Clients() != 0 || h.RoomSize("T-2") != 0 {
		t.Fatalf("clients = %d, room = %d", h.Clients(), h.RoomSize("T-2"))
	}
	if _, ok := <-c.Messages(); ok {
		t.Fatal("queue should be closed")
	}
}

func TestFullQueueDropsFrame(t *testing.T) {
	h := New(nil, 1)
	_ = h.Register("vendor-1", domain.SenderVendor)
	ev := events.Event{Type: events.EventTicketUpdated, ConversationID: "T-1", OwnerID: "vendor-1"}

	first, _ := h.Deliver(ev)
	second, _ := h.Deliver(ev)
	if first != 1 || second != 0 {
		t.Fatalf("delivered = %d, %d; want 1, 0", first, second)
	}
}

func TestRemoteEventCodec(t *testing.T) {
	ev := events.Event{Type: events.EventTicketUpdated, ConversationID: "T-9", OwnerID: "vendor-3"}
	payload, err := encodeRemote(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRemote(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != ev.Type || got.ConversationID != ev.ConversationID || got.OwnerID != ev.OwnerID {
		t.Fatalf("got %+v", got)
	}

	if _, err := decodeRemote([]byte(`{"type":"typing","conversationId":"T-1"}`)); !errors.Is(err, events.ErrMalformedEvent) {
		t.Fatalf("unknown type err = %v", err)
	}
	if _, err := decodeRemote([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
