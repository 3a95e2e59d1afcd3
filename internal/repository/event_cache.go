package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/domain"
)

const eventCacheKeyPrefix = "ticketing:event:"

// CachedEventRepository serves event lookups on the scan path from Redis,
// falling back to the wrapped repository on a miss or a Redis failure.
type CachedEventRepository struct {
	next   EventRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedEventRepository wraps next with a Redis cache.
func NewCachedEventRepository(next EventRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedEventRepository {
	return &CachedEventRepository{next: next, client: client, ttl: ttl, logger: logger}
}

type cachedEvent struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	SellerID    string             `json:"seller_id"`
	StartsAt    time.Time          `json:"starts_at"`
	Status      domain.EventStatus `json:"status"`
	TicketsSold int                `json:"tickets_sold"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func eventCacheKey(id string) string {
	return eventCacheKeyPrefix + id
}

func (r *CachedEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if r.client == nil || r.ttl <= 0 {
		return r.next.GetByID(ctx, id)
	}

	raw, err := r.client.Get(ctx, eventCacheKey(id)).Bytes()
	switch {
	case err == nil:
		var cached cachedEvent
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return &domain.Event{
				ID:          cached.ID,
				Title:       cached.Title,
				SellerID:    cached.SellerID,
				StartsAt:    cached.StartsAt,
				Status:      cached.Status,
				TicketsSold: cached.TicketsSold,
				UpdatedAt:   cached.UpdatedAt,
			}, nil
		}
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("event cache read failed", zap.String("event_id", id), zap.Error(err))
	}

	event, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, event)
	return event, nil
}

func (r *CachedEventRepository) ListElapsedActive(ctx context.Context, now time.Time) ([]domain.Event, error) {
	return r.next.ListElapsedActive(ctx, now)
}

func (r *CachedEventRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	return r.next.ListStartingBetween(ctx, from, to)
}

func (r *CachedEventRepository) ListCompletedWithValidTickets(ctx context.Context) ([]domain.Event, error) {
	return r.next.ListCompletedWithValidTickets(ctx)
}

func (r *CachedEventRepository) Complete(ctx context.Context, id string) (bool, error) {
	ok, err := r.next.Complete(ctx, id)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return ok, err
}

func (r *CachedEventRepository) IncrementTicketsSold(ctx context.Context, id string, delta int) error {
	err := r.next.IncrementTicketsSold(ctx, id, delta)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return err
}

func (r *CachedEventRepository) store(ctx context.Context, event *domain.Event) {
	payload, err := json.Marshal(cachedEvent{
		ID:          event.ID,
		Title:       event.Title,
		SellerID:    event.SellerID,
		StartsAt:    event.StartsAt,
		Status:      event.Status,
		TicketsSold: event.TicketsSold,
		UpdatedAt:   event.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, eventCacheKey(event.ID), payload, r.ttl).Err(); err != nil {
		r.logger.Warn("event cache write failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func (r *CachedEventRepository) invalidate(ctx context.Context, id string) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, eventCacheKey(id)).Err(); err != nil {
		r.logger.Warn("event cache invalidation failed", zap.String("event_id", id), zap.Error(err))
	}
}
