package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcity/ticket-service/internal/codegen"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/repository"
)

func ticketIDs(tickets []domain.Ticket) []string {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestIssueSplitsPriceEvenly(t *testing.T) {
	f := newFixture(t)
	batch, err := f.issuance(0).Issue(context.Background(), payment("pi_1", 3, 300))
	require.NoError(t, err)
	require.Len(t, batch, 3)

	var sum int64
	codes := map[string]bool{}
	for i, ticket := range batch {
		assert.Equal(t, i, ticket.UnitIndex)
		assert.Equal(t, int64(100), ticket.PriceMinor)
		assert.Equal(t, domain.TicketStatusValid, ticket.Status)
		assert.Equal(t, "buyer-1", ticket.OwnerID)
		assert.Nil(t, ticket.UsedAt)
		assert.True(t, codegen.ValidCode(ticket.Code), ticket.Code)
		assert.Contains(t, ticket.Code, "TCT-E1-")
		codes[ticket.Code] = true
		sum += ticket.PriceMinor
	}
	assert.Len(t, codes, 3)
	assert.Equal(t, int64(300), sum)

	event, err := f.store.Events().GetByID(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, 3, event.TicketsSold)

	issued := f.published.ofType(events.EventTicketsIssued)
	require.Len(t, issued, 1)
	payload := issued[0].Payload.(events.TicketsIssuedPayload)
	assert.Equal(t, "3.00", payload.Total)
	assert.Equal(t, "1.00", payload.Tickets[0].Price)
	assert.Equal(t, "https://tickets.example.com/verify/"+batch[0].Code, payload.Tickets[0].VerificationURL)
}

func TestIssueRemainderGoesToFirstTicket(t *testing.T) {
	f := newFixture(t)
	batch, err := f.issuance(0).Issue(context.Background(), payment("pi_2", 3, 1000))
	require.NoError(t, err)

	prices := []int64{batch[0].PriceMinor, batch[1].PriceMinor, batch[2].PriceMinor}
	assert.Equal(t, []int64{334, 333, 333}, prices)
}

func TestIssueIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.issuance(0)
	ctx := context.Background()

	first, err := svc.Issue(ctx, payment("pi_3", 2, 5000))
	require.NoError(t, err)
	second, err := svc.Issue(ctx, payment("pi_3", 2, 5000))
	require.NoError(t, err)

	assert.Equal(t, ticketIDs(first), ticketIDs(second))
	assert.Len(t, f.published.ofType(events.EventTicketsIssued), 1)

	event, err := f.store.Events().GetByID(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 2, event.TicketsSold)
}

func TestIssueConcurrentRedelivery(t *testing.T) {
	f := newFixture(t)
	svc := f.issuance(0)

	const deliveries = 10
	results := make([][]domain.Ticket, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Issue(context.Background(), payment("pi_4", 4, 400))
		}(i)
	}
	wg.Wait()

	var reference []string
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 4)
		if reference == nil {
			reference = ticketIDs(results[i])
		}
		assert.Equal(t, reference, ticketIDs(results[i]))
	}

	all, err := f.store.Tickets().ListByEvent(context.Background(), "E1", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Len(t, f.published.ofType(events.EventTicketsIssued), 1)
}

type flakyTickets struct {
	repository.TicketRepository
	mu     sync.Mutex
	calls  int
	failOn int
}

func (r *flakyTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls == r.failOn
	r.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return r.TicketRepository.Create(ctx, ticket)
}

func TestIssueCompletesPartialBatchOnRedelivery(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyTickets{TicketRepository: f.store.Tickets(), failOn: 2}
	svc := NewIssuanceService(IssuanceDependencies{
		OrderRepo:  f.store.Orders(),
		TicketRepo: flaky,
		EventRepo:  f.store.Events(),
		Codes:      f.codes,
		Dispatcher: f.dispatcher,
	})
	ctx := context.Background()

	_, err := svc.Issue(ctx, payment("pi_5", 3, 300))
	require.Error(t, err)

	order, err := f.store.Orders().GetByIdempotencyKey(ctx, "pi_5")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	partial, err := f.store.Tickets().ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Empty(t, f.published.ofType(events.EventTicketsIssued))

	batch, err := svc.Issue(ctx, payment("pi_5", 3, 300))
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, partial[0].ID, batch[0].ID)
	assert.Len(t, f.published.ofType(events.EventTicketsIssued), 1)
}

func TestIssueRejectsBadPayments(t *testing.T) {
	f := newFixture(t)
	svc := f.issuance(10)
	ctx := context.Background()

	_, err := svc.Issue(ctx, payment("  ", 1, 100))
	assert.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)

	_, err = svc.Issue(ctx, payment("pi_6", 0, 100))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Issue(ctx, payment("pi_6", 11, 100))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	unknown := payment("pi_6", 1, 100)
	unknown.EventID = "E404"
	_, err = svc.Issue(ctx, unknown)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	tickets, err := f.store.Tickets().ListByOwner(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestIssueRejectsEventIDsThatCannotFormCodes(t *testing.T) {
	f := newFixture(t)
	svc := f.issuance(0)
	ctx := context.Background()
	f.store.PutEvent(domain.Event{ID: "evt 42/jazz", Title: "Jazz", StartsAt: fixedNow.Add(time.Hour), Status: domain.EventStatusActive})

	p := payment("pi_odd", 1, 100)
	p.EventID = "evt 42/jazz"
	_, err := svc.Issue(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.store.Orders().GetByIdempotencyKey(ctx, "pi_odd")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	tickets, err := f.store.Tickets().ListByEvent(ctx, "evt 42/jazz", "")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestIssuedCodesAlwaysVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch, err := f.issuance(0).Issue(ctx, payment("pi_scan", 2, 200))
	require.NoError(t, err)
	for _, ticket := range batch {
		result, err := f.verification().Verify(ctx, ticket.Code, "door-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeValid, result.Outcome)
	}
}

func TestIssueRejectsReusedKeyForDifferentPurchase(t *testing.T) {
	f := newFixture(t)
	svc := f.issuance(0)
	ctx := context.Background()

	_, err := svc.Issue(ctx, payment("pi_7", 1, 100))
	require.NoError(t, err)
	_, err = svc.Issue(ctx, payment("pi_7", 2, 200))
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
}

func TestIssueOwnerFallsBackToEmail(t *testing.T) {
	f := newFixture(t)
	p := payment("pi_8", 1, 100)
	p.BuyerID = ""
	p.BuyerEmail = "Guest@Example.com"

	batch, err := f.issuance(0).Issue(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", batch[0].OwnerID)
	assert.Equal(t, "guest@example.com", batch[0].OwnerEmail)
}

func TestIssueAfterEarlyRefundIssuesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets().CancelOrder(ctx, "pi_early", "charge refunded")
	require.NoError(t, err)

	batch, err := f.issuance(0).Issue(ctx, payment("pi_early", 2, 200))
	require.NoError(t, err)
	assert.Empty(t, batch)

	all, err := f.store.Tickets().ListByEvent(ctx, "E1", "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.published.ofType(events.EventTicketsIssued))

	event, err := f.store.Events().GetByID(ctx, "E1")
	require.NoError(t, err)
	assert.Zero(t, event.TicketsSold)

	again, err := f.issuance(0).Issue(ctx, payment("pi_early", 2, 200))
	require.NoError(t, err)
	assert.Empty(t, again)
}

type refundingTickets struct {
	repository.TicketRepository
	once   sync.Once
	refund func()
}

func (r *refundingTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := r.TicketRepository.Create(ctx, ticket); err != nil {
		return err
	}
	r.once.Do(r.refund)
	return nil
}

func TestIssueVoidsTicketsWhenRefundLandsMidBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	refunds := f.tickets()
	repo := &refundingTickets{TicketRepository: f.store.Tickets()}
	repo.refund = func() {
		n, err := refunds.CancelOrder(ctx, "pi_race", "charge refunded")
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	svc := NewIssuanceService(IssuanceDependencies{
		OrderRepo:  f.store.Orders(),
		TicketRepo: repo,
		EventRepo:  f.store.Events(),
		Codes:      f.codes,
		Dispatcher: f.dispatcher,
		Now:        func() time.Time { return fixedNow },
	})

	batch, err := svc.Issue(ctx, payment("pi_race", 2, 200))
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, ticket := range batch {
		assert.Equal(t, domain.TicketStatusCancelled, ticket.Status)
	}

	order, err := f.store.Orders().GetByIdempotencyKey(ctx, "pi_race")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)
	assert.Empty(t, f.published.ofType(events.EventTicketsIssued))
	assert.Len(t, f.published.ofType(events.EventTicketsCancelled), 2)
}

func TestIssueRejectsEventsNotOnSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutEvent(domain.Event{ID: "E2", StartsAt: fixedNow.Add(-time.Hour), Status: domain.EventStatusCompleted})
	f.store.PutEvent(domain.Event{ID: "E3", StartsAt: fixedNow.Add(time.Hour), Status: domain.EventStatusCancelled})
	f.store.PutEvent(domain.Event{ID: "E4", StartsAt: fixedNow.Add(time.Hour), Status: domain.EventStatusDraft})

	for _, eventID := range []string{"E2", "E3", "E4"} {
		p := payment("pi_"+eventID, 1, 100)
		p.EventID = eventID
		_, err := f.issuance(0).Issue(ctx, p)
		assert.ErrorIs(t, err, domain.ErrEventClosed, eventID)

		_, err = f.store.Orders().GetByIdempotencyKey(ctx, p.IdempotencyKey)
		assert.ErrorIs(t, err, domain.ErrNotFound, eventID)
	}
}

func TestIssueReplaysSettledOrderAfterEventCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.issuance(0)

	first, err := svc.Issue(ctx, payment("pi_closed", 2, 200))
	require.NoError(t, err)
	_, err = f.store.Events().Complete(ctx, "E1")
	require.NoError(t, err)

	second, err := svc.Issue(ctx, payment("pi_closed", 2, 200))
	require.NoError(t, err)
	assert.Equal(t, ticketIDs(first), ticketIDs(second))

	_, err = svc.Issue(ctx, payment("pi_late", 1, 100))
	assert.ErrorIs(t, err, domain.ErrEventClosed)
}

type flakyBroker struct {
	mu        sync.Mutex
	down      bool
	delivered int
}

func (b *flakyBroker) handle(context.Context, events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return errors.New("broker unreachable")
	}
	b.delivered++
	return nil
}

func (b *flakyBroker) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *flakyBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered
}

func (f *fixture) issuanceWithBroker(broker *flakyBroker, now *time.Time) *IssuanceService {
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketsIssued, broker.handle)
	return NewIssuanceService(IssuanceDependencies{
		OrderRepo:  f.store.Orders(),
		TicketRepo: f.store.Tickets(),
		EventRepo:  f.store.Events(),
		Codes:      f.codes,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return *now },
	})
}

func TestRedeliveryRepublishesFailedNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broker := &flakyBroker{down: true}
	now := fixedNow
	svc := f.issuanceWithBroker(broker, &now)

	first, err := svc.Issue(ctx, payment("pi_n", 2, 200))
	require.NoError(t, err)
	order, err := f.store.Orders().GetByIdempotencyKey(ctx, "pi_n")
	require.NoError(t, err)
	assert.Nil(t, order.NotifiedAt)

	broker.setDown(false)
	_, err = svc.Issue(ctx, payment("pi_n", 2, 200))
	require.NoError(t, err)
	assert.Zero(t, broker.count(), "inside the grace period the completing delivery owns the notification")

	now = fixedNow.Add(2 * notifyGrace)
	second, err := svc.Issue(ctx, payment("pi_n", 2, 200))
	require.NoError(t, err)
	assert.Equal(t, ticketIDs(first), ticketIDs(second))
	assert.Equal(t, 1, broker.count())

	order, err = f.store.Orders().GetByIdempotencyKey(ctx, "pi_n")
	require.NoError(t, err)
	require.NotNil(t, order.NotifiedAt)

	_, err = svc.Issue(ctx, payment("pi_n", 2, 200))
	require.NoError(t, err)
	assert.Equal(t, 1, broker.count())
}

func TestRetryNotificationsPublishesMissedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broker := &flakyBroker{down: true}
	now := fixedNow
	svc := f.issuanceWithBroker(broker, &now)

	_, err := svc.Issue(ctx, payment("pi_a", 1, 100))
	require.NoError(t, err)
	broker.setDown(false)
	_, err = svc.Issue(ctx, payment("pi_b", 1, 100))
	require.NoError(t, err)
	require.Equal(t, 1, broker.count())

	sent, err := svc.RetryNotifications(ctx, fixedNow)
	require.NoError(t, err)
	assert.Zero(t, sent)

	now = fixedNow.Add(2 * notifyGrace)
	sent, err = svc.RetryNotifications(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, broker.count())

	sent, err = svc.RetryNotifications(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
