package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/notify"
)

// NotificationService forwards lifecycle events to the notification sink
// the mailer consumes.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  notify.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher notify.Publisher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every lifecycle event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.publisher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		n.dispatcher.Subscribe(eventType, n.forward)
	}
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Error("notification not delivered",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return err
	}
	n.logger.Debug("notification delivered",
		zap.String("type", string(event.Type)),
		zap.String("event_id", event.EventID))
	return nil
}
