package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcity/ticket-service/internal/domain"
)

func newTicket(code string, unit int) *domain.Ticket {
	return &domain.Ticket{
		EventID:    "E1",
		OrderID:    "O1",
		UnitIndex:  unit,
		Code:       code,
		OwnerID:    "buyer-1",
		OwnerEmail: "buyer@example.com",
		PriceMinor: 100,
		Currency:   "usd",
		Status:     domain.TicketStatusValid,
	}
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	ctx := context.Background()
	tickets := NewStore().Tickets()

	require.NoError(t, tickets.Create(ctx, newTicket("TCT-E1-AAAA", 0)))
	err := tickets.Create(ctx, newTicket("TCT-E1-AAAA", 1))
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)

	err = tickets.Create(ctx, newTicket("TCT-E1-BBBB", 0))
	assert.ErrorIs(t, err, domain.ErrDuplicateUnit)
}

func TestGetByCode(t *testing.T) {
	ctx := context.Background()
	tickets := NewStore().Tickets()
	created := newTicket("TCT-E1-AAAA", 0)
	require.NoError(t, tickets.Create(ctx, created))

	got, err := tickets.GetByCode(ctx, "TCT-E1-AAAA")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Nil(t, got.UsedAt)

	_, err = tickets.GetByCode(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransitionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	tickets := NewStore().Tickets()
	ticket := newTicket("TCT-E1-AAAA", 0)
	require.NoError(t, tickets.Create(ctx, ticket))

	at := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	used, err := tickets.Transition(ctx, ticket.ID, domain.TicketStatusValid, domain.TicketStatusUsed, domain.TransitionFields{At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusUsed, used.Status)
	require.NotNil(t, used.UsedAt)
	assert.Equal(t, at, *used.UsedAt)

	_, err = tickets.Transition(ctx, ticket.ID, domain.TicketStatusValid, domain.TicketStatusUsed, domain.TransitionFields{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = tickets.Transition(ctx, "nope", domain.TicketStatusValid, domain.TicketStatusUsed, domain.TransitionFields{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransitionOutOfTerminalStatesNeverMutates(t *testing.T) {
	ctx := context.Background()
	all := []domain.TicketStatus{domain.TicketStatusValid, domain.TicketStatusUsed, domain.TicketStatusCancelled, domain.TicketStatusExpired}

	for i, terminal := range []domain.TicketStatus{domain.TicketStatusUsed, domain.TicketStatusCancelled, domain.TicketStatusExpired} {
		tickets := NewStore().Tickets()
		ticket := newTicket("TCT-E1-T"+string(rune('A'+i)), 0)
		require.NoError(t, tickets.Create(ctx, ticket))
		_, err := tickets.Transition(ctx, ticket.ID, domain.TicketStatusValid, terminal, domain.TransitionFields{})
		require.NoError(t, err)
		before, err := tickets.GetByID(ctx, ticket.ID)
		require.NoError(t, err)

		for _, to := range all {
			_, err := tickets.Transition(ctx, ticket.ID, terminal, to, domain.TransitionFields{})
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", terminal, to)
		}

		after, err := tickets.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestTransitionConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	tickets := NewStore().Tickets()
	ticket := newTicket("TCT-E1-AAAA", 0)
	require.NoError(t, tickets.Create(ctx, ticket))

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tickets.Transition(ctx, ticket.ID, domain.TicketStatusValid, domain.TicketStatusUsed, domain.TransitionFields{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestOrdersUniqueKeyAndStatusCAS(t *testing.T) {
	ctx := context.Background()
	orders := NewStore().Orders()

	order := &domain.Order{IdempotencyKey: "pi_1", EventID: "E1", Quantity: 2, Status: domain.OrderStatusPending}
	require.NoError(t, orders.Create(ctx, order))
	err := orders.Create(ctx, &domain.Order{IdempotencyKey: "pi_1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

	ok, err := orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCompleted, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCompleted, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := orders.GetByIdempotencyKey(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestMarkReminderSentOnce(t *testing.T) {
	ctx := context.Background()
	tickets := NewStore().Tickets()
	ticket := newTicket("TCT-E1-AAAA", 0)
	require.NoError(t, tickets.Create(ctx, ticket))

	ok, err := tickets.MarkReminderSent(ctx, ticket.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tickets.MarkReminderSent(ctx, ticket.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventsCompleteOnlyFromActive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.PutEvent(domain.Event{ID: "E1", Status: domain.EventStatusActive, StartsAt: time.Now().Add(-time.Hour)})
	events := store.Events()

	elapsed, err := events.ListElapsedActive(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, elapsed, 1)

	ok, err := events.Complete(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = events.Complete(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, ok)

	elapsed, err = events.ListElapsedActive(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, elapsed)
}
