package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/topcity/ticket-service/internal/api/http"
	"github.com/topcity/ticket-service/internal/api/http/handlers"
	"github.com/topcity/ticket-service/internal/app"
	"github.com/topcity/ticket-service/internal/auth"
	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/notify"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/service"
	"github.com/topcity/ticket-service/internal/worker"
)

const (
	tokenTTLMinutes = 60
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	services, err := app.NewServices(cfg, stores.Repos, dispatcher, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	publisher, closePublisher, err := app.NewPublisher(cfg.Notification, stores.Redis, logger)
	if err != nil {
		logger.Fatal("failed to build notification publisher", zap.Error(err))
	}
	defer closePublisher() //nolint:errcheck
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, publisher, logger))

	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = worker.NewScheduler(cfg.Scheduler, services.Sweeper, services.Reminders, services.Issuance, logger)
		if err != nil {
			logger.Fatal("failed to build scheduler", zap.Error(err))
		}
		scheduler.Start()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, tokenTTLMinutes)

	server := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(server, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, stores.Postgres, stores.Redis, cfg.Notification.Driver == notify.DriverRedis),
		Verify:         handlers.NewVerifyHandler(services.Verification),
		Webhooks:       handlers.NewWebhookHandler(services.Issuance, services.Tickets, cfg.Payments.WebhookSecret, logger),
		Tickets:        handlers.NewTicketsHandler(services.Tickets),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
