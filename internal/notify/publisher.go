// Package notify delivers lifecycle events to downstream consumers such as
// the mailer that sends tickets and reminders to buyers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/events"
)

// Publisher hands one lifecycle event to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

const (
	DriverLog   = "log"
	DriverRedis = "redis"
	DriverAMQP  = "amqp"
)

// LogPublisher writes events to the structured log only.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that only logs.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event events.Event) error {
	p.logger.Info("notification",
		zap.String("type", string(event.Type)),
		zap.String("event_id", event.EventID),
		zap.Any("payload", event.Payload))
	return nil
}

func encode(event events.Event) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s notification: %w", event.Type, err)
	}
	return body, nil
}
