package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/topcity/ticket-service/internal/domain"
)

// DBTX is the subset of pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TicketRepository is the single source of truth for ticket lifecycle state.
// Transition is the only way a stored status changes.
type TicketRepository interface {
	// Create fails with domain.ErrDuplicateCode on a code collision and
	// domain.ErrDuplicateUnit when the order unit already has a ticket.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Ticket, error)
	ListByEvent(ctx context.Context, eventID string, status domain.TicketStatus) ([]domain.Ticket, error)
	// Transition atomically moves id from `from` to `to`. It returns
	// domain.ErrInvalidTransition for edges outside the state machine and
	// domain.ErrConflict when the stored status no longer equals from.
	Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields domain.TransitionFields) (*domain.Ticket, error)
	// MarkReminderSent sets reminder_sent_at once; false means it was already set.
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
}

// VerificationRepository appends scan audit records.
type VerificationRepository interface {
	Append(ctx context.Context, record *domain.VerificationRecord) error
	ListByCode(ctx context.Context, code string) ([]domain.VerificationRecord, error)
}

// OrderRepository stores one order per payment idempotency key.
type OrderRepository interface {
	// Create fails with domain.ErrDuplicateIdempotencyKey when the key exists.
	Create(ctx context.Context, order *domain.Order) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	// UpdateStatus is a compare-and-set on status; false means another caller won.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error)
	// MarkNotified records that tickets_issued went out for the order. It
	// keeps the first timestamp when called again.
	MarkNotified(ctx context.Context, id string, at time.Time) error
	// ListUnnotified returns completed orders completed before the cutoff
	// whose tickets_issued event was never published, oldest first.
	ListUnnotified(ctx context.Context, completedBefore time.Time, limit int) ([]domain.Order, error)
}

// EventRepository exposes the event fields the lifecycle reads and writes.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListElapsedActive(ctx context.Context, now time.Time) ([]domain.Event, error)
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error)
	// ListCompletedWithValidTickets returns completed events that still
	// hold tickets in the valid status.
	ListCompletedWithValidTickets(ctx context.Context) ([]domain.Event, error)
	// Complete moves an active event to completed; false means it was not active.
	Complete(ctx context.Context, id string) (bool, error)
	IncrementTicketsSold(ctx context.Context, id string, delta int) error
}

// Set groups one implementation of every repository.
type Set struct {
	Tickets       TicketRepository
	Orders        OrderRepository
	Events        EventRepository
	Verifications VerificationRepository
}

// NewPostgresSet builds the Postgres-backed repositories over db.
func NewPostgresSet(db DBTX) Set {
	return Set{
		Tickets:       NewTicketRepository(db),
		Orders:        NewOrderRepository(db),
		Events:        NewEventRepository(db),
		Verifications: NewVerificationRepository(db),
	}
}
