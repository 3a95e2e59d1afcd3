// Package memory implements the repository interfaces in process memory.
// Every operation holds one store-wide lock, which gives Transition and
// the other conditional writes the same atomicity the Postgres
// implementation gets from single-statement updates and unique indexes.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/repository"
)

// Store holds all in-memory state.
type Store struct {
	mu            sync.Mutex
	tickets       map[string]*domain.Ticket
	ticketByCode  map[string]string
	ticketByUnit  map[unitKey]string
	verifications []domain.VerificationRecord
	orders        map[string]*domain.Order
	orderByKey    map[string]string
	events        map[string]*domain.Event
	now           func() time.Time
}

type unitKey struct {
	orderID string
	index   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:      make(map[string]*domain.Ticket),
		ticketByCode: make(map[string]string),
		ticketByUnit: make(map[unitKey]string),
		orders:       make(map[string]*domain.Order),
		orderByKey:   make(map[string]string),
		events:       make(map[string]*domain.Event),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepository{s: s} }

// Verifications returns the verification log view.
func (s *Store) Verifications() repository.VerificationRepository {
	return &verificationRepository{s: s}
}

// Orders returns the order repository view.
func (s *Store) Orders() repository.OrderRepository { return &orderRepository{s: s} }

// Events returns the event repository view.
func (s *Store) Events() repository.EventRepository { return &eventRepository{s: s} }

// Set returns every repository view of the store.
func (s *Store) Set() repository.Set {
	return repository.Set{
		Tickets:       s.Tickets(),
		Orders:        s.Orders(),
		Events:        s.Events(),
		Verifications: s.Verifications(),
	}
}

// PutEvent inserts or replaces an event. Events are owned by the listing
// side of the marketplace; this is how they enter the in-memory store.
func (s *Store) PutEvent(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = s.now()
	}
	s.events[event.ID] = &event
}

func newID() string {
	return uuid.NewString()
}
