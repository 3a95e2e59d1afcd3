package repository

import (
	"context"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
)

const orderColumns = `id, idempotency_key, COALESCE(event_id, ''), buyer_id, buyer_email, quantity, amount_total,
        currency, status, created_at, completed_at, notified_at`

type orderRepository struct {
	db DBTX
}

// NewOrderRepository builds the order store keyed by idempotency key.
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	const query = `
        INSERT INTO orders (idempotency_key, event_id, buyer_id, buyer_email, quantity, amount_total, currency, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		order.IdempotencyKey,
		nullIfEmpty(order.EventID),
		order.BuyerID,
		order.BuyerEmail,
		order.Quantity,
		order.AmountTotal,
		order.Currency,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt)
	return classify(err)
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key=$1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, key))
	if err != nil {
		return nil, classify(err)
	}
	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error) {
	var completedAt *time.Time
	if to == domain.OrderStatusCompleted {
		completedAt = &at
	}
	const query = `
        UPDATE orders SET status=$3, completed_at=COALESCE($4, completed_at)
        WHERE id=$1 AND status=$2`
	cmd, err := r.db.Exec(ctx, query, id, from, to, completedAt)
	if err != nil {
		return false, classify(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *orderRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE orders SET notified_at=$2 WHERE id=$1 AND notified_at IS NULL`
	_, err := r.db.Exec(ctx, query, id, at)
	return classify(err)
}

func (r *orderRepository) ListUnnotified(ctx context.Context, completedBefore time.Time, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
        WHERE status=$1 AND notified_at IS NULL AND completed_at < $2
        ORDER BY completed_at ASC LIMIT $3`
	rows, err := r.db.Query(ctx, query, domain.OrderStatusCompleted, completedBefore, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, *order)
	}
	return result, classify(rows.Err())
}

func scanOrder(row scanner) (*domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID,
		&order.IdempotencyKey,
		&order.EventID,
		&order.BuyerID,
		&order.BuyerEmail,
		&order.Quantity,
		&order.AmountTotal,
		&order.Currency,
		&order.Status,
		&order.CreatedAt,
		&order.CompletedAt,
		&order.NotifiedAt,
	); err != nil {
		return nil, err
	}
	return &order, nil
}

// nullIfEmpty stores an empty string as NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
