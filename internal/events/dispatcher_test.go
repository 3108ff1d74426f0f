package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantErr bool
		wantID  string
	}{
		{"message received", Frame{Event: "message_received", Data: json.RawMessage(`{"conversationId":"T-1"}`)}, false, "T-1"},
		{"ticket updated trims id", Frame{Event: "ticket_updated", Data: json.RawMessage(`{"conversationId":"  T-2 "}`)}, false, "T-2"},
		{"extra fields ignored", Frame{Event: "ticket_updated", Data: json.RawMessage(`{"conversationId":"T-3","status":"closed"}`)}, false, "T-3"},
		{"unknown event", Frame{Event: "typing", Data: json.RawMessage(`{"conversationId":"T-1"}`)}, true, ""},
		{"missing id", Frame{Event: "message_received", Data: json.RawMessage(`{}`)}, true, ""},
		{"wrong id type", Frame{Event: "message_received", Data: json.RawMessage(`{"conversationId":12}`)}, true, ""},
		{"no payload", Frame{Event: "message_received"}, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode(tc.frame)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Fatalf("err = %v, want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if ev.ConversationID != tc.wantID {
				t.Fatalf("conversation id = %q, want %q", ev.ConversationID, tc.wantID)
			}
			if string(ev.Type) != tc.frame.Event {
				t.Fatalf("type = %q, want %q", ev.Type, tc.frame.Event)
			}
		})
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	unsubscribe := d.Subscribe(EventMessageReceived, func(context.Context, Event) error {
		calls++
		return nil
	})

	ev := Event{Type: EventMessageReceived, ConversationID: "T-1"}
	if err := d.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	unsubscribe()
	unsubscribe()
	if err := d.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if n := d.Listeners(EventMessageReceived); n != 0 {
		t.Fatalf("listeners = %d, want 0", n)
	}
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []EventType
	record := func(_ context.Context, ev Event) error {
		got = append(got, ev.Type)
		return nil
	}
	d.Subscribe(EventMessageReceived, record)
	d.Subscribe(EventTicketUpdated, record)

	_ = d.Publish(context.Background(), Event{Type: EventTicketUpdated, ConversationID: "a"})
	_ = d.Publish(context.Background(), Event{Type: EventMessageReceived, ConversationID: "a"})

	if len(got) != 2 || got[0] != EventTicketUpdated || got[1] != EventMessageReceived {
		t.Fatalf("got %v", got)
	}
}

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher()
	second := false
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		second = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketUpdated, ConversationID: "a"})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if !second {
		t.Fatal("second handler not invoked")
	}
}

func TestDispatcherSkipsHandlerRemovedMidPublish(t *testing.T) {
	d := NewInMemoryDispatcher()
	var unsubscribeSecond func()
	secondCalls := 0
	d.Subscribe(EventMessageReceived, func(context.Context, Event) error {
		unsubscribeSecond()
		return nil
	})
	unsubscribeSecond = d.Subscribe(EventMessageReceived, func(context.Context, Event) error {
		secondCalls++
		return nil
	})

	_ = d.Publish(context.Background(), Event{Type: EventMessageReceived, ConversationID: "a"})
	if secondCalls != 0 {
		t.Fatalf("removed handler called %d times", secondCalls)
	}
}
