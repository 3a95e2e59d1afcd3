package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/codegen"
	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
	"github.com/topcity/ticket-service/internal/observability"
	"github.com/topcity/ticket-service/internal/repository"
)

// TicketService serves owner and seller reads and cancellations.
type TicketService struct {
	tickets    repository.TicketRepository
	orders     repository.OrderRepository
	qr         *codegen.QREncoder
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	OrderRepo  repository.OrderRepository
	QR         *codegen.QREncoder
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		orders:     deps.OrderRepo,
		qr:         deps.QR,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ListOwnerTickets returns tickets owned by the subject, including those
// issued to email before the buyer had an account id. Newest first.
func (s *TicketService) ListOwnerTickets(ctx context.Context, ownerID, email string) ([]domain.Ticket, error) {
	ownerID = strings.TrimSpace(ownerID)
	email = strings.ToLower(strings.TrimSpace(email))
	if ownerID == "" && email == "" {
		return nil, fmt.Errorf("%w: owner required", domain.ErrInvalidInput)
	}

	seen := make(map[string]bool)
	var result []domain.Ticket
	for _, key := range []string{ownerID, email} {
		if key == "" {
			continue
		}
		tickets, err := s.tickets.ListByOwner(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, t := range tickets {
			if !seen[t.ID] {
				seen[t.ID] = true
				result = append(result, t)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].IssuedAt.After(result[j].IssuedAt) })
	return result, nil
}

// GetByCode returns the ticket with code.
func (s *TicketService) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	if !codegen.WellFormed(code) {
		return nil, fmt.Errorf("%w: malformed ticket code", domain.ErrInvalidInput)
	}
	return s.tickets.GetByCode(ctx, code)
}

// QRCode renders the scan image for a ticket the caller may see.
func (s *TicketService) QRCode(ctx context.Context, code, ownerID, email string, staff bool) ([]byte, error) {
	ticket, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !staff && ticket.OwnerID != ownerID && (email == "" || !strings.EqualFold(ticket.OwnerEmail, email)) {
		// Hide other owners' tickets behind not found.
		return nil, domain.ErrNotFound
	}
	return s.qr.PNG(ticket.Code)
}

// CancelTicket moves a valid ticket to cancelled.
func (s *TicketService) CancelTicket(ctx context.Context, id, reason string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.tickets.Transition(ctx, ticket.ID, ticket.Status, domain.TicketStatusCancelled, domain.TransitionFields{At: s.now()})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCancellations(1)
	publishCancelled(ctx, s.dispatcher, s.logger, s.now(), updated.EventID, "", []string{updated.ID}, reason)
	s.logger.Info("ticket cancelled", zap.String("ticket_id", updated.ID), zap.String("reason", reason))
	return updated, nil
}

// CancelOrder marks the order paid under idempotencyKey refunded and
// cancels every still-valid ticket it holds. Repeating it is a no-op. A
// refund for a key with no order yet is stored as a refunded order, so
// the payment issues nothing when it arrives.
func (s *TicketService) CancelOrder(ctx context.Context, idempotencyKey, reason string) (int, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return 0, domain.ErrMissingIdempotencyKey
	}
	order, err := s.orders.GetByIdempotencyKey(ctx, idempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		order, err = s.recordEarlyRefund(ctx, idempotencyKey)
		if err == nil && order == nil {
			return 0, nil
		}
	}
	if err != nil {
		return 0, err
	}

	// Refund the order before touching tickets: an issuance still filling
	// the batch then loses its completion and voids what it wrote.
	for _, from := range []domain.OrderStatus{domain.OrderStatusCompleted, domain.OrderStatusPending} {
		ok, err := s.orders.UpdateStatus(ctx, order.ID, from, domain.OrderStatusRefunded, s.now())
		if err != nil {
			return 0, err
		}
		if ok {
			break
		}
	}

	tickets, err := s.tickets.ListByOrder(ctx, order.ID)
	if err != nil {
		return 0, err
	}
	cancelled, err := cancelValid(ctx, s.tickets, tickets, s.now())
	s.metrics.RecordCancellations(len(cancelled))
	if len(cancelled) > 0 {
		publishCancelled(ctx, s.dispatcher, s.logger, s.now(), order.EventID, order.ID, cancelled, reason)
	}
	if err != nil {
		return len(cancelled), err
	}
	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.Int("tickets_cancelled", len(cancelled)))
	return len(cancelled), nil
}

// recordEarlyRefund stores a refunded order with no tickets under key. It
// returns nil once stored, or the order a payment created under the same
// key in the meantime.
func (s *TicketService) recordEarlyRefund(ctx context.Context, key string) (*domain.Order, error) {
	tombstone := &domain.Order{
		IdempotencyKey: key,
		Currency:       defaultCurrency,
		Status:         domain.OrderStatusRefunded,
	}
	err := s.orders.Create(ctx, tombstone)
	if err == nil {
		s.logger.Warn("refund recorded before payment",
			zap.String("idempotency_key", key),
			zap.String("order_id", tombstone.ID))
		return nil, nil
	}
	if !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		return nil, err
	}
	return s.orders.GetByIdempotencyKey(ctx, key)
}

// cancelValid moves every valid ticket in batch to cancelled and returns
// the ids it moved. Tickets redeemed or swept meanwhile keep that status.
func cancelValid(ctx context.Context, repo repository.TicketRepository, batch []domain.Ticket, at time.Time) ([]string, error) {
	var cancelled []string
	for _, t := range batch {
		if t.Status != domain.TicketStatusValid {
			continue
		}
		_, err := repo.Transition(ctx, t.ID, domain.TicketStatusValid, domain.TicketStatusCancelled, domain.TransitionFields{At: at})
		switch {
		case err == nil:
			cancelled = append(cancelled, t.ID)
		case errors.Is(err, domain.ErrConflict):
		default:
			return cancelled, err
		}
	}
	return cancelled, nil
}

func publishCancelled(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, at time.Time, eventID, orderID string, ids []string, reason string) {
	if dispatcher == nil {
		return
	}
	payload := events.TicketsCancelledPayload{OrderID: orderID, TicketIDs: ids, Reason: reason}
	if err := dispatcher.Publish(ctx, events.New(events.EventTicketsCancelled, eventID, at, payload)); err != nil {
		logger.Warn("tickets cancelled notification failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
