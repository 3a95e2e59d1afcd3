package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
)

type orderRepository struct {
	s *Store
}

func (r *orderRepository) Create(_ context.Context, order *domain.Order) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orderByKey[order.IdempotencyKey]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, order.IdempotencyKey)
	}
	stored := *order
	stored.ID = newID()
	stored.CreatedAt = s.now()
	s.orders[stored.ID] = &stored
	s.orderByKey[stored.IdempotencyKey] = stored.ID

	order.ID = stored.ID
	order.CreatedAt = stored.CreatedAt
	return nil
}

func (r *orderRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.orderByKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *s.orders[id]
	return &out, nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	if to == domain.OrderStatusCompleted {
		completedAt := at
		order.CompletedAt = &completedAt
	}
	return true, nil
}

func (r *orderRepository) MarkNotified(_ context.Context, id string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if order.NotifiedAt == nil {
		notifiedAt := at
		order.NotifiedAt = &notifiedAt
	}
	return nil
}

func (r *orderRepository) ListUnnotified(_ context.Context, completedBefore time.Time, limit int) ([]domain.Order, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Order
	for _, order := range s.orders {
		if order.Status != domain.OrderStatusCompleted || order.NotifiedAt != nil {
			continue
		}
		if order.CompletedAt == nil || !order.CompletedAt.Before(completedBefore) {
			continue
		}
		result = append(result, *order)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CompletedAt.Before(*result[j].CompletedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
