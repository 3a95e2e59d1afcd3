package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/notify"
	"github.com/topcity/ticket-service/internal/persistence"
)

const notifyStreamMaxLen = 100000

// NewPublisher selects the notification sink named by cfg.Driver. The
// returned close func is never nil.
func NewPublisher(cfg config.NotificationConfig, redis *persistence.Redis, logger *zap.Logger) (notify.Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "", notify.DriverLog:
		return notify.NewLogPublisher(logger), noop, nil
	case notify.DriverRedis:
		if !redis.Enabled() {
			return nil, noop, fmt.Errorf("NOTIFY_DRIVER=redis requires REDIS_ENABLED")
		}
		return notify.NewRedisStreamPublisher(redis.Client, cfg.RedisStream, notifyStreamMaxLen), noop, nil
	case notify.DriverAMQP:
		publisher := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueuePrefix, logger)
		return publisher, publisher.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.Driver)
	}
}
