package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/repository"
)

const defaultReminderWindow = 24 * time.Hour

// ReminderService notifies holders of valid tickets ahead of their event.
type ReminderService struct {
	tickets    repository.TicketRepository
	events     repository.EventRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	window     time.Duration
}

// ReminderDependencies bundles collaborators for the reminder service.
type ReminderDependencies struct {
	TicketRepo repository.TicketRepository
	EventRepo  repository.EventRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Window     time.Duration
}

// NewReminderService constructs the service.
func NewReminderService(deps ReminderDependencies) *ReminderService {
	s := &ReminderService{
		tickets:    deps.TicketRepo,
		events:     deps.EventRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		window:     deps.Window,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.window <= 0 {
		s.window = defaultReminderWindow
	}
	return s
}

// SendReminders publishes one reminder per valid ticket of every active
// event starting within the window after now. Each ticket is reminded at
// most once across runs.
func (s *ReminderService) SendReminders(ctx context.Context, now time.Time) (int, error) {
	upcoming, err := s.events.ListStartingBetween(ctx, now, now.Add(s.window))
	if err != nil {
		return 0, fmt.Errorf("list upcoming events: %w", err)
	}

	sent := 0
	var errs []error
	for _, event := range upcoming {
		tickets, err := s.tickets.ListByEvent(ctx, event.ID, domain.TicketStatusValid)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
			continue
		}
		for _, t := range tickets {
			if t.ReminderSentAt != nil || t.OwnerEmail == "" {
				continue
			}
			claimed, err := s.tickets.MarkReminderSent(ctx, t.ID, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("ticket %s: %w", t.ID, err))
				continue
			}
			if !claimed {
				continue
			}
			s.publish(ctx, event, t, now)
			sent++
		}
	}

	s.metrics.RecordReminders(sent)
	s.logger.Info("reminders sent", zap.Int("events", len(upcoming)), zap.Int("sent", sent))
	return sent, errors.Join(errs...)
}

func (s *ReminderService) publish(ctx context.Context, event domain.Event, ticket domain.Ticket, now time.Time) {
	if s.dispatcher == nil {
		return
	}
	payload := events.ReminderPayload{
		TicketID:   ticket.ID,
		Code:       ticket.Code,
		OwnerEmail: ticket.OwnerEmail,
		EventTitle: event.Title,
		StartsAt:   event.StartsAt,
	}
	if err := s.dispatcher.Publish(ctx, events.New(events.EventReminderDue, event.ID, now, payload)); err != nil {
		s.logger.Warn("reminder notification failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}
