package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/domain"
)

type stubEventRepository struct {
	events map[string]domain.Event
	gets   int
}

func (s *stubEventRepository) GetByID(_ context.Context, id string) (*domain.Event, error) {
	s.gets++
	event, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &event, nil
}

func (s *stubEventRepository) ListElapsedActive(context.Context, time.Time) ([]domain.Event, error) {
	return nil, nil
}

func (s *stubEventRepository) ListStartingBetween(context.Context, time.Time, time.Time) ([]domain.Event, error) {
	return nil, nil
}

func (s *stubEventRepository) ListCompletedWithValidTickets(context.Context) ([]domain.Event, error) {
	return nil, nil
}

func (s *stubEventRepository) Complete(context.Context, string) (bool, error) { return true, nil }

func (s *stubEventRepository) IncrementTicketsSold(context.Context, string, int) error { return nil }

func TestCachedEventRepositoryMissThenStore(t *testing.T) {
	client, mock := redismock.NewClientMock()
	startsAt := time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC)
	next := &stubEventRepository{events: map[string]domain.Event{
		"E1": {ID: "E1", Title: "Jazz Night", StartsAt: startsAt, Status: domain.EventStatusActive},
	}}
	payload, err := json.Marshal(cachedEvent{ID: "E1", Title: "Jazz Night", StartsAt: startsAt, Status: domain.EventStatusActive})
	require.NoError(t, err)

	mock.ExpectGet("ticketing:event:E1").RedisNil()
	mock.ExpectSet("ticketing:event:E1", payload, time.Minute).SetVal("OK")

	repo := NewCachedEventRepository(next, client, time.Minute, zap.NewNop())
	event, err := repo.GetByID(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", event.Title)
	assert.Equal(t, 1, next.gets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedEventRepositoryHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &stubEventRepository{events: map[string]domain.Event{}}
	payload, err := json.Marshal(cachedEvent{ID: "E1", Title: "Cached", Status: domain.EventStatusActive})
	require.NoError(t, err)

	mock.ExpectGet("ticketing:event:E1").SetVal(string(payload))

	repo := NewCachedEventRepository(next, client, time.Minute, zap.NewNop())
	event, err := repo.GetByID(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "Cached", event.Title)
	assert.Equal(t, 0, next.gets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedEventRepositoryInvalidatesOnComplete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	next := &stubEventRepository{}

	mock.ExpectDel("ticketing:event:E1").SetVal(1)

	repo := NewCachedEventRepository(next, client, time.Minute, zap.NewNop())
	ok, err := repo.Complete(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
