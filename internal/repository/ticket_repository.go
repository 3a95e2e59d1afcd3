package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/topcity/ticket-service/internal/domain"
)

const ticketColumns = `id, event_id, order_id, unit_index, code, owner_id, owner_email, price_minor, currency,
               status, issued_at, used_at, reminder_sent_at, updated_at`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates a Postgres-backed ticket store.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (event_id, order_id, unit_index, code, owner_id, owner_email, price_minor, currency, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, issued_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.EventID,
		ticket.OrderID,
		ticket.UnitIndex,
		ticket.Code,
		ticket.OwnerID,
		ticket.OwnerEmail,
		ticket.PriceMinor,
		ticket.Currency,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.IssuedAt, &ticket.UpdatedAt)
	return classify(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id=$1 ORDER BY issued_at DESC, unit_index ASC`
	return r.list(ctx, query, ownerID)
}

func (r *ticketRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE order_id=$1 ORDER BY unit_index ASC`
	return r.list(ctx, query, orderID)
}

func (r *ticketRepository) ListByEvent(ctx context.Context, eventID string, status domain.TicketStatus) ([]domain.Ticket, error) {
	if status == "" {
		query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id=$1 ORDER BY issued_at ASC`
		return r.list(ctx, query, eventID)
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id=$1 AND status=$2 ORDER BY issued_at ASC`
	return r.list(ctx, query, eventID, status)
}

func (r *ticketRepository) Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields domain.TransitionFields) (*domain.Ticket, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	at := fields.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var usedAt *time.Time
	if to == domain.TicketStatusUsed {
		usedAt = &at
	}

	query := `
        UPDATE tickets SET status=$3, used_at=$4, updated_at=$5
        WHERE id=$1 AND status=$2
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id, from, to, usedAt, at))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify(err)
	}

	// Zero rows: either the ticket is gone or its status moved on.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: ticket %s is %s, expected %s", domain.ErrConflict, id, current.Status, from)
}

func (r *ticketRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET reminder_sent_at=$2, updated_at=$2
        WHERE id=$1 AND reminder_sent_at IS NULL AND status='valid'`
	cmd, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, classify(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, *ticket)
	}
	return result, classify(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.EventID,
		&ticket.OrderID,
		&ticket.UnitIndex,
		&ticket.Code,
		&ticket.OwnerID,
		&ticket.OwnerEmail,
		&ticket.PriceMinor,
		&ticket.Currency,
		&ticket.Status,
		&ticket.IssuedAt,
		&ticket.UsedAt,
		&ticket.ReminderSentAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
