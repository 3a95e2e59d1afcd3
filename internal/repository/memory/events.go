package memory

import (
	"context"
	"sort"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
)

type eventRepository struct {
	s *Store
}

func (r *eventRepository) GetByID(_ context.Context, id string) (*domain.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *event
	return &out, nil
}

func (r *eventRepository) ListElapsedActive(_ context.Context, now time.Time) ([]domain.Event, error) {
	return r.s.filterEvents(func(e *domain.Event) bool {
		return e.Status == domain.EventStatusActive && e.Elapsed(now)
	}), nil
}

func (r *eventRepository) ListStartingBetween(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	return r.s.filterEvents(func(e *domain.Event) bool {
		return e.Status == domain.EventStatusActive && !e.StartsAt.Before(from) && !e.StartsAt.After(to)
	}), nil
}

func (r *eventRepository) ListCompletedWithValidTickets(context.Context) ([]domain.Event, error) {
	s := r.s
	return s.filterEvents(func(e *domain.Event) bool {
		if e.Status != domain.EventStatusCompleted {
			return false
		}
		// filterEvents holds the store lock.
		for _, t := range s.tickets {
			if t.EventID == e.ID && t.Status == domain.TicketStatusValid {
				return true
			}
		}
		return false
	}), nil
}

func (r *eventRepository) Complete(_ context.Context, id string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if event.Status != domain.EventStatusActive {
		return false, nil
	}
	event.Status = domain.EventStatusCompleted
	event.UpdatedAt = s.now()
	return true, nil
}

func (r *eventRepository) IncrementTicketsSold(_ context.Context, id string, delta int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	event.TicketsSold += delta
	event.UpdatedAt = s.now()
	return nil
}

func (s *Store) filterEvents(keep func(*domain.Event) bool) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Event
	for _, event := range s.events {
		if keep(event) {
			result = append(result, *event)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartsAt.Before(result[j].StartsAt) })
	return result
}
