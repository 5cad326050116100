package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/events"
	"github.com/superpool/dispute-service/internal/service"
)

// StartNotificationWorker registers notification handlers and delivers
// queued events until ctx is cancelled. The returned channel closes once
// the events buffered at shutdown have been flushed.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, dispatcher events.Dispatcher, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if notificationService == nil || dispatcher == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	notificationService.RegisterHandlers()

	go func() {
		defer close(done)
		logger.Info("notification worker started")
		notificationService.Queue().Drain(ctx, dispatcher, logger)
		logger.Info("notification worker stopped")
	}()
	return done
}
