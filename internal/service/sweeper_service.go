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

// SweepReport summarises one sweep.
type SweepReport struct {
	EventsCompleted int
	TicketsExpired  int
	TicketsSkipped  int
}

// SweeperService expires the tickets of elapsed events.
type SweeperService struct {
	tickets    repository.TicketRepository
	events     repository.EventRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	TicketRepo repository.TicketRepository
	EventRepo  repository.EventRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewSweeperService constructs the service.
func NewSweeperService(deps SweeperDependencies) *SweeperService {
	s := &SweeperService{
		tickets:    deps.TicketRepo,
		events:     deps.EventRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Sweep expires the valid tickets of every active event that started
// before now, then marks the event completed. It depends only on now and
// stored state, and running it again finds nothing left to do.
//
// Tickets are expired before the event is completed so an interrupted
// sweep leaves the event active and the next run picks it up. Completed
// events that still hold valid tickets are expired again.
func (s *SweeperService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	elapsed, err := s.events.ListElapsedActive(ctx, now)
	if err != nil {
		s.metrics.RecordSweep("failed", 0)
		return report, fmt.Errorf("list elapsed events: %w", err)
	}

	var errs []error
	for _, event := range elapsed {
		expired, skipped, err := s.expireEvent(ctx, event, now)
		report.TicketsExpired += expired
		report.TicketsSkipped += skipped
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
			continue
		}
		completed, err := s.events.Complete(ctx, event.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("complete event %s: %w", event.ID, err))
			continue
		}
		if completed {
			report.EventsCompleted++
		}
		if expired > 0 {
			s.publishExpired(ctx, event.ID, now, expired, skipped)
		}
	}

	// A batch completed while its event was being swept can leave valid
	// tickets behind on a completed event.
	stragglers, err := s.events.ListCompletedWithValidTickets(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list completed events: %w", err))
	}
	for _, event := range stragglers {
		expired, skipped, err := s.expireEvent(ctx, event, now)
		report.TicketsExpired += expired
		report.TicketsSkipped += skipped
		if expired > 0 {
			s.publishExpired(ctx, event.ID, now, expired, skipped)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
		}
	}

	result := "ok"
	if len(errs) > 0 {
		result = "partial"
	}
	s.metrics.RecordSweep(result, report.TicketsExpired)
	s.logger.Info("sweep finished",
		zap.Time("now", now),
		zap.Int("events_completed", report.EventsCompleted),
		zap.Int("tickets_expired", report.TicketsExpired),
		zap.Int("tickets_skipped", report.TicketsSkipped),
		zap.Int("errors", len(errs)))
	return report, errors.Join(errs...)
}

func (s *SweeperService) expireEvent(ctx context.Context, event domain.Event, now time.Time) (int, int, error) {
	valid, err := s.tickets.ListByEvent(ctx, event.ID, domain.TicketStatusValid)
	if err != nil {
		return 0, 0, err
	}
	expired, skipped := 0, 0
	for _, t := range valid {
		_, err := s.tickets.Transition(ctx, t.ID, domain.TicketStatusValid, domain.TicketStatusExpired, domain.TransitionFields{At: now})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
			// Redeemed or cancelled after the listing.
			skipped++
		default:
			return expired, skipped, err
		}
	}
	return expired, skipped, nil
}

func (s *SweeperService) publishExpired(ctx context.Context, eventID string, now time.Time, expired, skipped int) {
	if s.dispatcher == nil {
		return
	}
	payload := events.TicketsExpiredPayload{Expired: expired, Skipped: skipped}
	if err := s.dispatcher.Publish(ctx, events.New(events.EventTicketsExpired, eventID, now, payload)); err != nil {
		s.logger.Warn("tickets expired notification failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
