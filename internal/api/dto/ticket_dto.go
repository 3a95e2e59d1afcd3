package dto

import (
	"time"

	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/service"
)

// TicketResponse is the owner-facing view of a ticket.
type TicketResponse struct {
	ID        string              `json:"id"`
	EventID   string              `json:"event_id"`
	OrderID   string              `json:"order_id"`
	Code      string              `json:"code"`
	Status    domain.TicketStatus `json:"status"`
	Price     string              `json:"price"`
	Currency  string              `json:"currency"`
	IssuedAt  time.Time           `json:"issued_at"`
	UsedAt    *time.Time          `json:"used_at,omitempty"`
	QRCodeURL string              `json:"qr_code_url"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:        t.ID,
		EventID:   t.EventID,
		OrderID:   t.OrderID,
		Code:      t.Code,
		Status:    t.Status,
		Price:     domain.FormatMinor(t.PriceMinor),
		Currency:  t.Currency,
		IssuedAt:  t.IssuedAt,
		UsedAt:    t.UsedAt,
		QRCodeURL: "/tickets/" + t.Code + "/qr",
	}
}

// NewTicketResponses maps a slice of tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, NewTicketResponse(t))
	}
	return out
}

// CancelTicketRequest payload.
type CancelTicketRequest struct {
	Reason string `json:"reason"`
}

// VerifyRequest is the body of POST /verify/:code. SellerID is accepted
// for scanners that still send the older field name.
type VerifyRequest struct {
	VerifiedBy string `json:"verifiedBy"`
	SellerID   string `json:"sellerId"`
}

// VerifyResponse is returned for every verification outcome.
type VerifyResponse struct {
	Outcome    domain.VerificationOutcome `json:"outcome"`
	Reason     string                     `json:"reason,omitempty"`
	Code       string                     `json:"code"`
	EventID    string                     `json:"eventId,omitempty"`
	EventTitle string                     `json:"eventTitle,omitempty"`
	Status     domain.TicketStatus        `json:"status,omitempty"`
	UsedAt     *time.Time                 `json:"usedAt,omitempty"`
}

// NewVerifyResponse maps a verification result.
func NewVerifyResponse(r *service.VerificationResult) VerifyResponse {
	return VerifyResponse{
		Outcome:    r.Outcome,
		Reason:     r.Reason,
		Code:       r.Code,
		EventID:    r.EventID,
		EventTitle: r.EventTitle,
		Status:     r.Status,
		UsedAt:     r.UsedAt,
	}
}

// VerificationRecordResponse is one audit entry.
type VerificationRecordResponse struct {
	ID         string                     `json:"id"`
	EventID    string                     `json:"event_id,omitempty"`
	Outcome    domain.VerificationOutcome `json:"outcome"`
	Reason     string                     `json:"reason,omitempty"`
	VerifiedBy string                     `json:"verified_by"`
	VerifiedAt time.Time                  `json:"verified_at"`
}

// NewVerificationRecordResponses maps audit records.
func NewVerificationRecordResponses(records []domain.VerificationRecord) []VerificationRecordResponse {
	out := make([]VerificationRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, VerificationRecordResponse{
			ID:         r.ID,
			EventID:    r.EventID,
			Outcome:    r.Outcome,
			Reason:     r.Reason,
			VerifiedBy: r.VerifiedBy,
			VerifiedAt: r.VerifiedAt,
		})
	}
	return out
}
