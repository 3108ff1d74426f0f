package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/service"
)

// StartNotificationWorker registers notification handlers and, when a Redis
// bridge is given, runs its subscriber until ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, bridge *hub.RedisBridge, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	go func() {
		<-ctx.Done()
		notificationService.Stop()
	}()

	if bridge == nil {
		return
	}
	go func() {
		if err := bridge.Run(ctx); err != nil {
			logger.Error("redis bridge stopped", zap.Error(err))
		}
	}()
}
