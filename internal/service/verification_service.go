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
	ReasonNotFound  = "not found"
	ReasonCancelled = "ticket cancelled"
	ReasonExpired   = "ticket expired"
	ReasonOutage    = "ticket store unavailable"
)

// VerificationResult is what door staff see for one scan.
type VerificationResult struct {
	Outcome    domain.VerificationOutcome
	Reason     string
	Code       string
	TicketID   string
	EventID    string
	EventTitle string
	Status     domain.TicketStatus
	UsedAt     *time.Time
}

// VerificationService answers whether a code admits entry and performs the
// valid -> used redemption.
type VerificationService struct {
	tickets       repository.TicketRepository
	verifications repository.VerificationRepository
	events        repository.EventRepository
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	timeout       time.Duration
	now           func() time.Time
}

// VerificationDependencies bundles collaborators for the verification service.
type VerificationDependencies struct {
	TicketRepo       repository.TicketRepository
	VerificationRepo repository.VerificationRepository
	EventRepo        repository.EventRepository
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Timeout          time.Duration
	Now              func() time.Time
}

// NewVerificationService constructs the service.
func NewVerificationService(deps VerificationDependencies) *VerificationService {
	s := &VerificationService{
		tickets:       deps.TicketRepo,
		verifications: deps.VerificationRepo,
		events:        deps.EventRepo,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		timeout:       deps.Timeout,
		now:           deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Verify attempts to redeem code on behalf of verifiedBy. Every decided
// scan appends exactly one VerificationRecord. A store that cannot be
// reached within the timeout yields OutcomeUnavailable together with an
// error wrapping domain.ErrStoreUnavailable, and nothing is recorded.
func (s *VerificationService) Verify(ctx context.Context, code, verifiedBy string) (*VerificationResult, error) {
	start := time.Now()
	code = strings.TrimSpace(code)
	verifiedBy = strings.TrimSpace(verifiedBy)
	if !codegen.WellFormed(code) {
		return nil, fmt.Errorf("%w: malformed ticket code", domain.ErrInvalidInput)
	}
	if verifiedBy == "" {
		return nil, fmt.Errorf("%w: verifiedBy required", domain.ErrInvalidInput)
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.redeem(opCtx, code)
	if err != nil {
		s.metrics.RecordVerification(string(domain.OutcomeUnavailable), "redeem", time.Since(start))
		s.logger.Warn("verification unavailable", zap.String("code", code), zap.Error(err))
		return &VerificationResult{Outcome: domain.OutcomeUnavailable, Reason: ReasonOutage, Code: code}, err
	}
	s.enrich(opCtx, result)

	// Recorded even if the caller's deadline has passed.
	s.record(context.WithoutCancel(ctx), result, verifiedBy)
	if result.Outcome == domain.OutcomeValid {
		s.publishRedeemed(ctx, result, verifiedBy)
	}

	s.metrics.RecordVerification(string(result.Outcome), "redeem", time.Since(start))
	s.logger.Info("ticket verified",
		zap.String("code", code),
		zap.String("outcome", string(result.Outcome)),
		zap.String("verified_by", verifiedBy))
	return result, nil
}

// Check reports the current state of code without redeeming it and
// without writing an audit record.
func (s *VerificationService) Check(ctx context.Context, code string) (*VerificationResult, error) {
	start := time.Now()
	code = strings.TrimSpace(code)
	if !codegen.WellFormed(code) {
		return nil, fmt.Errorf("%w: malformed ticket code", domain.ErrInvalidInput)
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	ticket, err := s.tickets.GetByCode(opCtx, code)
	var result *VerificationResult
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result = &VerificationResult{Outcome: domain.OutcomeInvalid, Reason: ReasonNotFound, Code: code}
	case err != nil:
		s.metrics.RecordVerification(string(domain.OutcomeUnavailable), "check", time.Since(start))
		return &VerificationResult{Outcome: domain.OutcomeUnavailable, Reason: ReasonOutage, Code: code}, unavailable(err)
	default:
		result = resultFor(ticket)
	}
	s.enrich(opCtx, result)
	s.metrics.RecordVerification(string(result.Outcome), "check", time.Since(start))
	return result, nil
}

// History returns the audit trail for code.
func (s *VerificationService) History(ctx context.Context, code string) ([]domain.VerificationRecord, error) {
	return s.verifications.ListByCode(ctx, code)
}

func (s *VerificationService) redeem(ctx context.Context, code string) (*VerificationResult, error) {
	ticket, err := s.tickets.GetByCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return &VerificationResult{Outcome: domain.OutcomeInvalid, Reason: ReasonNotFound, Code: code}, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if ticket.Status != domain.TicketStatusValid {
		return resultFor(ticket), nil
	}

	updated, err := s.tickets.Transition(ctx, ticket.ID, domain.TicketStatusValid, domain.TicketStatusUsed, domain.TransitionFields{At: s.now()})
	if err == nil {
		result := resultFor(updated)
		result.Outcome = domain.OutcomeValid
		result.Reason = ""
		return result, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, unavailable(err)
	}

	// Lost the race to a concurrent scan or a sweep; report what won.
	current, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	return resultFor(current), nil
}

// resultFor maps a stored ticket that this call did not redeem.
func resultFor(ticket *domain.Ticket) *VerificationResult {
	result := &VerificationResult{
		Code:     ticket.Code,
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		Status:   ticket.Status,
		UsedAt:   ticket.UsedAt,
	}
	switch ticket.Status {
	case domain.TicketStatusValid:
		result.Outcome = domain.OutcomeValid
	case domain.TicketStatusUsed:
		result.Outcome = domain.OutcomeUsed
	case domain.TicketStatusCancelled:
		result.Outcome = domain.OutcomeInvalid
		result.Reason = ReasonCancelled
	case domain.TicketStatusExpired:
		result.Outcome = domain.OutcomeInvalid
		result.Reason = ReasonExpired
	default:
		result.Outcome = domain.OutcomeInvalid
		result.Reason = "unknown status " + string(ticket.Status)
	}
	return result
}

func (s *VerificationService) enrich(ctx context.Context, result *VerificationResult) {
	if result.EventID == "" || s.events == nil {
		return
	}
	event, err := s.events.GetByID(ctx, result.EventID)
	if err != nil {
		s.logger.Debug("event lookup failed", zap.String("event_id", result.EventID), zap.Error(err))
		return
	}
	result.EventTitle = event.Title
}

func (s *VerificationService) record(ctx context.Context, result *VerificationResult, verifiedBy string) {
	eventID := result.EventID
	if eventID == "" {
		eventID = domain.UnknownEventID
	}
	record := &domain.VerificationRecord{
		EventID:    eventID,
		Code:       result.Code,
		Outcome:    result.Outcome,
		Reason:     result.Reason,
		VerifiedBy: verifiedBy,
		VerifiedAt: s.now(),
	}
	if err := s.verifications.Append(ctx, record); err != nil {
		s.logger.Error("verification record not written",
			zap.String("code", result.Code),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(err))
	}
}

func (s *VerificationService) publishRedeemed(ctx context.Context, result *VerificationResult, verifiedBy string) {
	if s.dispatcher == nil {
		return
	}
	payload := events.TicketRedeemedPayload{TicketID: result.TicketID, Code: result.Code, VerifiedBy: verifiedBy}
	if result.UsedAt != nil {
		payload.UsedAt = *result.UsedAt
	}
	if err := s.dispatcher.Publish(ctx, events.New(events.EventTicketRedeemed, result.EventID, s.now(), payload)); err != nil {
		s.logger.Warn("ticket redeemed notification failed", zap.String("ticket_id", result.TicketID), zap.Error(err))
	}
}

func (s *VerificationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// unavailable folds any unexpected store failure into ErrStoreUnavailable
// so callers never see a raw driver error.
func unavailable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
