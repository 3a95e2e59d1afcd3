package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/codegen"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/repository"
)

const (
	defaultCurrency = "usd"

	notifyGrace     = time.Minute
	notifyBatchSize = 100
)

// IssuanceService turns confirmed payments into tickets, once per payment.
type IssuanceService struct {
	orders      repository.OrderRepository
	tickets     repository.TicketRepository
	events      repository.EventRepository
	codes       *codegen.Generator
	qr          *codegen.QREncoder
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	maxQuantity int
	now         func() time.Time
}

// IssuanceDependencies bundles collaborators for the issuance service.
type IssuanceDependencies struct {
	OrderRepo   repository.OrderRepository
	TicketRepo  repository.TicketRepository
	EventRepo   repository.EventRepository
	Codes       *codegen.Generator
	QR          *codegen.QREncoder
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	MaxQuantity int
	Now         func() time.Time
}

// NewIssuanceService constructs the service.
func NewIssuanceService(deps IssuanceDependencies) *IssuanceService {
	s := &IssuanceService{
		orders:      deps.OrderRepo,
		tickets:     deps.TicketRepo,
		events:      deps.EventRepo,
		codes:       deps.Codes,
		qr:          deps.QR,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		maxQuantity: deps.MaxQuantity,
		now:         deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Issue creates the tickets for payment and returns the full batch ordered
// by unit. Redelivering the same idempotency key returns the same batch;
// a partially written batch is completed by filling only the missing units.
// A payment whose order was refunded issues nothing valid.
func (s *IssuanceService) Issue(ctx context.Context, payment domain.PaymentEvent) ([]domain.Ticket, error) {
	payment, err := s.normalize(payment)
	if err != nil {
		s.metrics.RecordIssuance("rejected", 0)
		return nil, err
	}

	order, replay, err := s.openOrder(ctx, payment)
	if err != nil {
		result := "failed"
		if errors.Is(err, domain.ErrEventClosed) {
			result = "rejected"
		}
		s.metrics.RecordIssuance(result, 0)
		return nil, err
	}
	if replay && order.Status != domain.OrderStatusPending {
		return s.replay(ctx, order)
	}

	created, err := s.fillMissing(ctx, order)
	if err != nil {
		s.metrics.RecordIssuance("failed", created)
		s.logger.Error("ticket batch incomplete",
			zap.String("order_id", order.ID),
			zap.Int("created", created),
			zap.Error(err))
		return nil, err
	}

	batch, err := s.tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(batch) < order.Quantity {
		s.metrics.RecordIssuance("failed", created)
		return nil, fmt.Errorf("%w: order %s has %d of %d tickets", domain.ErrIncompleteIssuance, order.ID, len(batch), order.Quantity)
	}

	won, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCompleted, s.now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Another delivery completed the order, or a refund landed.
		current, err := s.orders.GetByIdempotencyKey(ctx, order.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.OrderStatusRefunded {
			s.metrics.RecordIssuance("refunded", created)
			return s.voidRefunded(ctx, current, batch)
		}
		s.metrics.RecordIssuance("replayed", created)
		return batch, nil
	}

	if err := s.events.IncrementTicketsSold(ctx, order.EventID, order.Quantity); err != nil {
		s.logger.Error("tickets sold counter not updated", zap.String("event_id", order.EventID), zap.Error(err))
	}
	s.notify(ctx, order, batch)
	s.metrics.RecordIssuance("created", created)
	s.logger.Info("tickets issued",
		zap.String("order_id", order.ID),
		zap.String("event_id", order.EventID),
		zap.Int("quantity", order.Quantity))
	return batch, nil
}

// replay answers a redelivery for an order that is no longer pending. A
// completed order whose tickets_issued event is still missing notifyGrace
// after completion is notified again, so notification is at-least-once.
func (s *IssuanceService) replay(ctx context.Context, order *domain.Order) ([]domain.Ticket, error) {
	batch, err := s.tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment redelivered",
		zap.String("idempotency_key", order.IdempotencyKey),
		zap.String("order_id", order.ID),
		zap.String("order_status", string(order.Status)))

	if order.Status == domain.OrderStatusRefunded {
		s.metrics.RecordIssuance("refunded", 0)
		return s.voidRefunded(ctx, order, batch)
	}
	if s.notificationOverdue(order) {
		s.notify(ctx, order, batch)
	}
	s.metrics.RecordIssuance("replayed", 0)
	return batch, nil
}

// voidRefunded cancels whatever valid tickets a refunded order still holds
// and returns the batch as stored afterwards.
func (s *IssuanceService) voidRefunded(ctx context.Context, order *domain.Order, batch []domain.Ticket) ([]domain.Ticket, error) {
	voided, err := cancelValid(ctx, s.tickets, batch, s.now())
	if len(voided) > 0 {
		s.metrics.RecordCancellations(len(voided))
		publishCancelled(ctx, s.dispatcher, s.logger, s.now(), order.EventID, order.ID, voided, "charge refunded")
		s.logger.Warn("tickets voided for refunded order",
			zap.String("order_id", order.ID),
			zap.Int("tickets", len(voided)))
	}
	if err != nil {
		return nil, err
	}
	if len(voided) == 0 {
		return batch, nil
	}
	return s.tickets.ListByOrder(ctx, order.ID)
}

// RetryNotifications publishes tickets_issued for completed orders whose
// notification failed. Orders completed within notifyGrace of now are left
// to the delivery that completed them.
func (s *IssuanceService) RetryNotifications(ctx context.Context, now time.Time) (int, error) {
	if s.dispatcher == nil {
		return 0, nil
	}
	orders, err := s.orders.ListUnnotified(ctx, now.Add(-notifyGrace), notifyBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unnotified orders: %w", err)
	}

	sent := 0
	var errs []error
	for i := range orders {
		order := &orders[i]
		batch, err := s.tickets.ListByOrder(ctx, order.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if s.notify(ctx, order, batch) {
			sent++
		}
	}
	s.logger.Info("notification retry finished",
		zap.Int("pending", len(orders)),
		zap.Int("sent", sent),
		zap.Int("errors", len(errs)))
	return sent, errors.Join(errs...)
}

func (s *IssuanceService) notificationOverdue(order *domain.Order) bool {
	if order.Status != domain.OrderStatusCompleted || order.NotifiedAt != nil || order.CompletedAt == nil {
		return false
	}
	return !order.CompletedAt.After(s.now().Add(-notifyGrace))
}

// notify publishes tickets_issued and marks the order notified. A failed
// publish leaves the order unmarked and reports false.
func (s *IssuanceService) notify(ctx context.Context, order *domain.Order, batch []domain.Ticket) bool {
	if s.dispatcher == nil {
		return false
	}
	if err := s.publishIssued(ctx, order, batch); err != nil {
		s.logger.Warn("tickets issued notification failed", zap.String("order_id", order.ID), zap.Error(err))
		return false
	}
	if err := s.orders.MarkNotified(ctx, order.ID, s.now()); err != nil {
		s.logger.Warn("order notification not recorded", zap.String("order_id", order.ID), zap.Error(err))
	}
	return true
}

func (s *IssuanceService) normalize(payment domain.PaymentEvent) (domain.PaymentEvent, error) {
	payment.IdempotencyKey = strings.TrimSpace(payment.IdempotencyKey)
	payment.EventID = strings.TrimSpace(payment.EventID)
	payment.BuyerID = strings.TrimSpace(payment.BuyerID)
	payment.BuyerEmail = strings.ToLower(strings.TrimSpace(payment.BuyerEmail))
	payment.Currency = strings.ToLower(strings.TrimSpace(payment.Currency))
	if payment.Currency == "" {
		payment.Currency = defaultCurrency
	}

	if payment.IdempotencyKey == "" {
		return payment, domain.ErrMissingIdempotencyKey
	}
	if payment.EventID == "" {
		return payment, fmt.Errorf("%w: event id required", domain.ErrInvalidInput)
	}
	if err := s.codes.CheckEventID(payment.EventID); err != nil {
		return payment, err
	}
	if payment.Quantity <= 0 {
		return payment, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidInput, payment.Quantity)
	}
	if s.maxQuantity > 0 && payment.Quantity > s.maxQuantity {
		return payment, fmt.Errorf("%w: quantity %d exceeds limit %d", domain.ErrInvalidInput, payment.Quantity, s.maxQuantity)
	}
	if payment.AmountTotal < 0 {
		return payment, fmt.Errorf("%w: negative amount", domain.ErrInvalidInput)
	}
	if payment.BuyerID == "" && payment.BuyerEmail == "" {
		return payment, fmt.Errorf("%w: buyer id or email required", domain.ErrInvalidInput)
	}
	return payment, nil
}

// openOrder creates the order for payment, or loads the one a previous
// delivery or an early refund created. replay reports the latter. Only an
// event on sale accepts new orders; settled orders still replay after the
// event closes.
func (s *IssuanceService) openOrder(ctx context.Context, payment domain.PaymentEvent) (*domain.Order, bool, error) {
	event, err := s.events.GetByID(ctx, payment.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: unknown event %s", domain.ErrInvalidInput, payment.EventID)
		}
		return nil, false, err
	}

	if !event.OnSale() {
		existing, err := s.existingOrder(ctx, payment)
		switch {
		case err == nil && existing.Status != domain.OrderStatusPending:
			return existing, true, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: event %s is %s", domain.ErrEventClosed, event.ID, event.Status)
	}

	order := &domain.Order{
		IdempotencyKey: payment.IdempotencyKey,
		EventID:        payment.EventID,
		BuyerID:        payment.BuyerID,
		BuyerEmail:     payment.BuyerEmail,
		Quantity:       payment.Quantity,
		AmountTotal:    payment.AmountTotal,
		Currency:       payment.Currency,
		Status:         domain.OrderStatusPending,
	}
	err = s.orders.Create(ctx, order)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		return nil, false, err
	}

	existing, err := s.existingOrder(ctx, payment)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// existingOrder loads the order stored under the payment's key. A refunded
// order is returned whatever it describes.
func (s *IssuanceService) existingOrder(ctx context.Context, payment domain.PaymentEvent) (*domain.Order, error) {
	existing, err := s.orders.GetByIdempotencyKey(ctx, payment.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing.Status != domain.OrderStatusRefunded && !existing.Matches(payment) {
		return nil, fmt.Errorf("%w: key %s", domain.ErrIdempotencyMismatch, payment.IdempotencyKey)
	}
	return existing, nil
}

// fillMissing creates a ticket for every unit index the order lacks and
// returns how many it created. A unit written concurrently by another
// delivery is skipped.
func (s *IssuanceService) fillMissing(ctx context.Context, order *domain.Order) (int, error) {
	existing, err := s.tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return 0, err
	}
	have := make(map[int]bool, len(existing))
	for _, t := range existing {
		have[t.UnitIndex] = true
	}

	ownerID := order.BuyerID
	if ownerID == "" {
		ownerID = order.BuyerEmail
	}
	prices := domain.SplitAmount(order.AmountTotal, order.Quantity)

	created := 0
	for unit := 0; unit < order.Quantity; unit++ {
		if have[unit] {
			continue
		}
		ticket := domain.Ticket{
			EventID:    order.EventID,
			OrderID:    order.ID,
			UnitIndex:  unit,
			OwnerID:    ownerID,
			OwnerEmail: order.BuyerEmail,
			PriceMinor: prices[unit],
			Currency:   order.Currency,
			Status:     domain.TicketStatusValid,
		}
		_, err := s.codes.Allocate(order.EventID, func(code string) error {
			ticket.Code = code
			err := s.tickets.Create(ctx, &ticket)
			if errors.Is(err, domain.ErrDuplicateCode) {
				s.metrics.RecordCodeCollision()
				s.logger.Warn("ticket code collision", zap.String("event_id", order.EventID))
			}
			return err
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrDuplicateUnit):
		default:
			return created, fmt.Errorf("issue unit %d of order %s: %w", unit, order.ID, err)
		}
	}
	return created, nil
}

func (s *IssuanceService) publishIssued(ctx context.Context, order *domain.Order, batch []domain.Ticket) error {
	issued := make([]events.IssuedTicket, 0, len(batch))
	for _, t := range batch {
		item := events.IssuedTicket{ID: t.ID, Code: t.Code, Price: domain.FormatMinor(t.PriceMinor)}
		if s.qr != nil {
			item.VerificationURL = s.qr.VerificationURL(t.Code)
		}
		issued = append(issued, item)
	}
	payload := events.TicketsIssuedPayload{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		BuyerEmail: order.BuyerEmail,
		Currency:   order.Currency,
		Total:      domain.FormatMinor(order.AmountTotal),
		Tickets:    issued,
	}
	return s.dispatcher.Publish(ctx, events.New(events.EventTicketsIssued, order.EventID, s.now(), payload))
}
