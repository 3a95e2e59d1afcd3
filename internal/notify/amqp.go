package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/events"
)

// AMQPPublisher publishes each event type to its own durable queue named
// prefix+type on the default exchange.
type AMQPPublisher struct {
	url    string
	prefix string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	declared map[string]bool
}

// NewAMQPPublisher dials lazily on first publish.
func NewAMQPPublisher(url, queuePrefix string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		prefix:   queuePrefix,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// QueueName returns the queue an event type is routed to.
func (p *AMQPPublisher) QueueName(eventType events.EventType) string {
	return p.prefix + string(eventType)
}

func (p *AMQPPublisher) Publish(ctx context.Context, event events.Event) error {
	body, err := encode(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	queue := p.QueueName(event.Type)
	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		p.conn = conn
		p.declared = make(map[string]bool)
		p.logger.Info("connected to amqp broker")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		_ = p.conn.Close()
		p.conn = nil
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return ch, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
