package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
)

type ticketRepository struct {
	s *Store
}

func (r *ticketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ticketByCode[ticket.Code]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, ticket.Code)
	}
	unit := unitKey{orderID: ticket.OrderID, index: ticket.UnitIndex}
	if ticket.OrderID != "" {
		if _, ok := s.ticketByUnit[unit]; ok {
			return fmt.Errorf("%w: order %s unit %d", domain.ErrDuplicateUnit, ticket.OrderID, ticket.UnitIndex)
		}
	}

	now := s.now()
	stored := *ticket
	stored.ID = newID()
	stored.IssuedAt = now
	stored.UpdatedAt = now
	s.tickets[stored.ID] = &stored
	s.ticketByCode[stored.Code] = stored.ID
	if stored.OrderID != "" {
		s.ticketByUnit[unit] = stored.ID
	}

	ticket.ID = stored.ID
	ticket.IssuedAt = stored.IssuedAt
	ticket.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *ticketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.ticketCopy(id)
}

func (r *ticketRepository) GetByCode(_ context.Context, code string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.ticketByCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.s.ticketCopy(id)
}

func (r *ticketRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Ticket, error) {
	result := r.s.filterTickets(func(t *domain.Ticket) bool { return t.OwnerID == ownerID })
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].IssuedAt.After(result[j].IssuedAt)
		}
		return result[i].UnitIndex < result[j].UnitIndex
	})
	return result, nil
}

func (r *ticketRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Ticket, error) {
	result := r.s.filterTickets(func(t *domain.Ticket) bool { return t.OrderID == orderID })
	sort.Slice(result, func(i, j int) bool { return result[i].UnitIndex < result[j].UnitIndex })
	return result, nil
}

func (r *ticketRepository) ListByEvent(_ context.Context, eventID string, status domain.TicketStatus) ([]domain.Ticket, error) {
	result := r.s.filterTickets(func(t *domain.Ticket) bool {
		return t.EventID == eventID && (status == "" || t.Status == status)
	})
	sort.SliceStable(result, func(i, j int) bool { return result[i].IssuedAt.Before(result[j].IssuedAt) })
	return result, nil
}

func (r *ticketRepository) Transition(_ context.Context, id string, from, to domain.TicketStatus, fields domain.TransitionFields) (*domain.Ticket, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ticket.Status != from {
		return nil, fmt.Errorf("%w: ticket %s is %s, expected %s", domain.ErrConflict, id, ticket.Status, from)
	}

	at := fields.At
	if at.IsZero() {
		at = s.now()
	}
	ticket.Status = to
	ticket.UpdatedAt = at
	if to == domain.TicketStatusUsed {
		usedAt := at
		ticket.UsedAt = &usedAt
	}
	out := *ticket
	return &out, nil
}

func (r *ticketRepository) MarkReminderSent(_ context.Context, id string, at time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if ticket.ReminderSentAt != nil || ticket.Status != domain.TicketStatusValid {
		return false, nil
	}
	sentAt := at
	ticket.ReminderSentAt = &sentAt
	ticket.UpdatedAt = at
	return true, nil
}

func (s *Store) ticketCopy(id string) (*domain.Ticket, error) {
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *ticket
	return &out, nil
}

func (s *Store) filterTickets(keep func(*domain.Ticket) bool) []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if keep(ticket) {
			result = append(result, *ticket)
		}
	}
	return result
}
