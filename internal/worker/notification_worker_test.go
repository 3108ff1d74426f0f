package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/service"
)

func TestWorkerRegistersUntilCancelled(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, hub.New(nil, 1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	StartNotificationWorker(ctx, notifications, nil, zap.NewNop())
	if n := dispatcher.Listeners(events.EventTicketUpdated); n != 1 {
		t.Fatalf("listeners = %d, want 1", n)
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.Listeners(events.EventTicketUpdated) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("handlers not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
