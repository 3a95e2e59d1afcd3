// Command sweeper runs one expiry sweep, and optionally one reminder pass
// and one issued-notification retry, then exits. It is meant for external schedulers such as a Kubernetes
// CronJob when the API process runs with SCHEDULER_ENABLED=false.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/app"
	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/service"
	"github.com/topcity/ticket-service/internal/worker"
)

type options struct {
	now       time.Time
	sweep     bool
	reminders bool
	notify    bool
}

func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	nowFlag := fs.String("now", "", "reference time as RFC3339 (default: current time)")
	sweep := fs.Bool("sweep", true, "expire tickets of elapsed events")
	reminders := fs.Bool("reminders", false, "send reminders for events starting soon")
	notify := fs.Bool("retry-notifications", false, "republish tickets_issued for orders that missed it")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{now: time.Now().UTC(), sweep: *sweep, reminders: *reminders, notify: *notify}
	if *nowFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			return options{}, fmt.Errorf("invalid --now: %w", err)
		}
		opts.now = parsed.UTC()
	}
	if !opts.sweep && !opts.reminders && !opts.notify {
		return options{}, fmt.Errorf("nothing to do: --sweep, --reminders and --retry-notifications are all off")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	err = run(context.Background(), cfg, opts, logger)
	if err != nil {
		logger.Error("sweeper failed", zap.Time("now", opts.now), zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	dispatcher := events.NewInMemoryDispatcher()
	publisher, closePublisher, err := app.NewPublisher(cfg.Notification, stores.Redis, logger)
	if err != nil {
		return err
	}
	defer closePublisher() //nolint:errcheck
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, publisher, logger))

	services, err := app.NewServices(cfg, stores.Repos, dispatcher, nil, logger)
	if err != nil {
		return err
	}

	if opts.sweep {
		report, err := services.Sweeper.Sweep(ctx, opts.now)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		logger.Info("sweep finished",
			zap.Time("now", opts.now),
			zap.Int("events_completed", report.EventsCompleted),
			zap.Int("tickets_expired", report.TicketsExpired),
			zap.Int("tickets_skipped", report.TicketsSkipped))
	}

	if opts.reminders {
		sent, err := services.Reminders.SendReminders(ctx, opts.now)
		if err != nil {
			return fmt.Errorf("reminders: %w", err)
		}
		logger.Info("reminders finished", zap.Time("now", opts.now), zap.Int("sent", sent))
	}

	if opts.notify {
		sent, err := services.Issuance.RetryNotifications(ctx, opts.now)
		if err != nil {
			return fmt.Errorf("retry notifications: %w", err)
		}
		logger.Info("notification retry finished", zap.Time("now", opts.now), zap.Int("sent", sent))
	}
	return nil
}
