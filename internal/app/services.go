package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/codegen"
	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/repository"
	"github.com/topcity/ticket-service/internal/service"
)

// Services holds every lifecycle service over one repository set.
type Services struct {
	Issuance     *service.IssuanceService
	Verification *service.VerificationService
	Tickets      *service.TicketService
	Sweeper      *service.SweeperService
	Reminders    *service.ReminderService
}

// NewServices builds the services sharing repos, dispatcher and metrics.
func NewServices(cfg *config.Config, repos repository.Set, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) (*Services, error) {
	codes, err := codegen.NewGenerator(cfg.Tickets.CodePrefix, cfg.Tickets.CodeTokenBytes,
		codegen.WithMaxAttempts(cfg.Tickets.CodeMaxAttempts))
	if err != nil {
		return nil, fmt.Errorf("code generator: %w", err)
	}
	qr := codegen.NewQREncoder(cfg.Verification.BaseURL, cfg.Tickets.QRSize)

	return &Services{
		Issuance: service.NewIssuanceService(service.IssuanceDependencies{
			OrderRepo:   repos.Orders,
			TicketRepo:  repos.Tickets,
			EventRepo:   repos.Events,
			Codes:       codes,
			QR:          qr,
			Dispatcher:  dispatcher,
			Metrics:     metrics,
			Logger:      logger,
			MaxQuantity: cfg.Tickets.MaxOrderQuantity,
		}),
		Verification: service.NewVerificationService(service.VerificationDependencies{
			TicketRepo:       repos.Tickets,
			VerificationRepo: repos.Verifications,
			EventRepo:        repos.Events,
			Dispatcher:       dispatcher,
			Metrics:          metrics,
			Logger:           logger,
			Timeout:          cfg.Verification.Timeout(),
		}),
		Tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo: repos.Tickets,
			OrderRepo:  repos.Orders,
			QR:         qr,
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger,
		}),
		Sweeper: service.NewSweeperService(service.SweeperDependencies{
			TicketRepo: repos.Tickets,
			EventRepo:  repos.Events,
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger,
		}),
		Reminders: service.NewReminderService(service.ReminderDependencies{
			TicketRepo: repos.Tickets,
			EventRepo:  repos.Events,
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger,
			Window:     cfg.Scheduler.ReminderWindow(),
		}),
	}, nil
}
