package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/events"
	"github.com/vendorhub/ticket-sync/internal/hub"
)

// NotificationService forwards ticket events to realtime clients.
type NotificationService struct {
	dispatcher  events.Dispatcher
	broadcaster hub.Broadcaster
	logger      *zap.Logger
	unsubs      []func()
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, broadcaster hub.Broadcaster, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		logger:      logger.Named("notifications"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.broadcaster == nil {
		return
	}
	n.unsubs = append(n.unsubs,
		n.dispatcher.Subscribe(events.EventMessageReceived, n.forward),
		n.dispatcher.Subscribe(events.EventTicketUpdated, n.forward),
	)
}

// Stop removes the handlers registered by RegisterHandlers.
func (n *NotificationService) Stop() {
	for _, unsubscribe := range n.unsubs {
		unsubscribe()
	}
	n.unsubs = nil
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	n.logger.Debug(string(event.Type),
		zap.String("ticket_id", event.ConversationID),
		zap.String("owner_id", event.OwnerID))
	return n.broadcaster.Broadcast(ctx, event)
}
