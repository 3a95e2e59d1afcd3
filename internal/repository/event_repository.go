package repository

import (
	"context"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
)

const eventColumns = `id, title, seller_id, starts_at, status, tickets_sold, updated_at`

type eventRepository struct {
	db DBTX
}

// NewEventRepository reads and updates lifecycle fields on events.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	event, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return event, nil
}

func (r *eventRepository) ListElapsedActive(ctx context.Context, now time.Time) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE starts_at < $1 AND status=$2 ORDER BY starts_at ASC`
	return r.list(ctx, query, now, domain.EventStatusActive)
}

func (r *eventRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
        WHERE starts_at >= $1 AND starts_at <= $2 AND status=$3 ORDER BY starts_at ASC`
	return r.list(ctx, query, from, to, domain.EventStatusActive)
}

func (r *eventRepository) ListCompletedWithValidTickets(ctx context.Context) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
        WHERE status=$1 AND EXISTS (SELECT 1 FROM tickets t WHERE t.event_id = events.id AND t.status=$2)
        ORDER BY starts_at ASC`
	return r.list(ctx, query, domain.EventStatusCompleted, domain.TicketStatusValid)
}

func (r *eventRepository) Complete(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE events SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`
	cmd, err := r.db.Exec(ctx, query, id, domain.EventStatusActive, domain.EventStatusCompleted)
	if err != nil {
		return false, classify(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *eventRepository) IncrementTicketsSold(ctx context.Context, id string, delta int) error {
	const query = `UPDATE events SET tickets_sold=tickets_sold+$2, updated_at=NOW() WHERE id=$1`
	cmd, err := r.db.Exec(ctx, query, id, delta)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventRepository) list(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, *event)
	}
	return result, classify(rows.Err())
}

func scanEvent(row scanner) (*domain.Event, error) {
	var event domain.Event
	if err := row.Scan(
		&event.ID,
		&event.Title,
		&event.SellerID,
		&event.StartsAt,
		&event.Status,
		&event.TicketsSold,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &event, nil
}
