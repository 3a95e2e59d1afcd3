package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topcity/ticket-service/internal/codegen"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/repository/memory"
)

var fixedNow = time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(eventType events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store      *memory.Store
	dispatcher events.Dispatcher
	published  *eventLog
	codes      *codegen.Generator
	qr         *codegen.QREncoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	published := &eventLog{}
	for _, eventType := range events.AllTypes {
		dispatcher.Subscribe(eventType, published.handle)
	}
	codes, err := codegen.NewGenerator(codegen.DefaultPrefix, codegen.DefaultTokenBytes)
	require.NoError(t, err)

	store.PutEvent(domain.Event{ID: "E1", Title: "Jazz Night", SellerID: "seller-1", StartsAt: fixedNow.Add(2 * time.Hour), Status: domain.EventStatusActive})

	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		published:  published,
		codes:      codes,
		qr:         codegen.NewQREncoder("https://tickets.example.com", 0),
	}
}

func (f *fixture) issuance(maxQuantity int) *IssuanceService {
	return NewIssuanceService(IssuanceDependencies{
		OrderRepo:   f.store.Orders(),
		TicketRepo:  f.store.Tickets(),
		EventRepo:   f.store.Events(),
		Codes:       f.codes,
		QR:          f.qr,
		Dispatcher:  f.dispatcher,
		MaxQuantity: maxQuantity,
		Now:         func() time.Time { return fixedNow },
	})
}

func (f *fixture) verification() *VerificationService {
	return NewVerificationService(VerificationDependencies{
		TicketRepo:       f.store.Tickets(),
		VerificationRepo: f.store.Verifications(),
		EventRepo:        f.store.Events(),
		Dispatcher:       f.dispatcher,
		Timeout:          time.Second,
		Now:              func() time.Time { return fixedNow },
	})
}

func (f *fixture) tickets() *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo: f.store.Tickets(),
		OrderRepo:  f.store.Orders(),
		QR:         f.qr,
		Dispatcher: f.dispatcher,
		Now:        func() time.Time { return fixedNow },
	})
}

func payment(key string, quantity int, amount int64) domain.PaymentEvent {
	return domain.PaymentEvent{
		IdempotencyKey: key,
		EventID:        "E1",
		Quantity:       quantity,
		AmountTotal:    amount,
		Currency:       "usd",
		BuyerID:        "buyer-1",
		BuyerEmail:     "buyer@example.com",
		Source:         "test",
	}
}

// seedTicket stores a ticket for eventID and moves it to status.
func (f *fixture) seedTicket(t *testing.T, eventID, code string, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := &domain.Ticket{
		EventID:    eventID,
		Code:       code,
		OwnerID:    "buyer-1",
		OwnerEmail: "buyer@example.com",
		PriceMinor: 100,
		Currency:   "usd",
		Status:     domain.TicketStatusValid,
	}
	require.NoError(t, f.store.Tickets().Create(ctx, ticket))
	if status != domain.TicketStatusValid {
		updated, err := f.store.Tickets().Transition(ctx, ticket.ID, domain.TicketStatusValid, status, domain.TransitionFields{At: fixedNow.Add(-time.Hour)})
		require.NoError(t, err)
		ticket = updated
	}
	return ticket
}
