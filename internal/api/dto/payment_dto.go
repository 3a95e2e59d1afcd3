package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/topcity/ticket-service/internal/domain"
)

// Webhook event types understood by the payment endpoint.
const (
	WebhookCheckoutCompleted = "checkout.session.completed"
	WebhookIntentSucceeded   = "payment_intent.succeeded"
	WebhookChargeRefunded    = "charge.refunded"
	WebhookPaymentConfirmed  = "ticketing.payment_confirmed"
)

// WebhookEnvelope is the processor's event wrapper.
type WebhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession holds the fields of a completed checkout session.
type CheckoutSession struct {
	ID              string            `json:"id"`
	PaymentIntent   string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// PaymentIntent holds the fields of a succeeded payment intent.
type PaymentIntent struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	ReceiptEmail   string            `json:"receipt_email"`
	Metadata       map[string]string `json:"metadata"`
}

// Charge holds the fields of a refunded charge.
type Charge struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Refunded      bool   `json:"refunded"`
}

// CanonicalPayment is a processor-neutral payment confirmation with the
// amount in major units, e.g. "49.90".
type CanonicalPayment struct {
	IdempotencyKey string          `json:"idempotency_key"`
	EventID        string          `json:"event_id"`
	Quantity       int             `json:"quantity"`
	AmountTotal    decimal.Decimal `json:"amount_total"`
	Currency       string          `json:"currency"`
	BuyerID        string          `json:"buyer_id"`
	BuyerEmail     string          `json:"buyer_email"`
}

// Paid reports whether the session has captured funds.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "" || s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// PaymentEvent converts a checkout session keyed by its payment intent.
func (s CheckoutSession) PaymentEvent() (domain.PaymentEvent, error) {
	quantity, err := metadataQuantity(s.Metadata)
	if err != nil {
		return domain.PaymentEvent{}, err
	}
	email := s.CustomerDetails.Email
	if email == "" {
		email = s.CustomerEmail
	}
	return domain.PaymentEvent{
		IdempotencyKey: s.PaymentIntent,
		EventID:        s.Metadata["eventId"],
		Quantity:       quantity,
		AmountTotal:    s.AmountTotal,
		Currency:       s.Currency,
		BuyerID:        s.Metadata["userId"],
		BuyerEmail:     email,
		Source:         WebhookCheckoutCompleted,
	}, nil
}

// HasTicketMetadata reports whether the intent itself names the event.
// Intents created by checkout sessions do not, and are issued from the
// session event instead.
func (p PaymentIntent) HasTicketMetadata() bool {
	return p.Metadata["eventId"] != ""
}

// PaymentEvent converts a payment intent.
func (p PaymentIntent) PaymentEvent() (domain.PaymentEvent, error) {
	quantity, err := metadataQuantity(p.Metadata)
	if err != nil {
		return domain.PaymentEvent{}, err
	}
	amount := p.AmountReceived
	if amount == 0 {
		amount = p.Amount
	}
	email := p.Metadata["email"]
	if email == "" {
		email = p.ReceiptEmail
	}
	return domain.PaymentEvent{
		IdempotencyKey: p.ID,
		EventID:        p.Metadata["eventId"],
		Quantity:       quantity,
		AmountTotal:    amount,
		Currency:       p.Currency,
		BuyerID:        p.Metadata["userId"],
		BuyerEmail:     email,
		Source:         WebhookIntentSucceeded,
	}, nil
}

// PaymentEvent converts the canonical form, rejecting sub-cent amounts.
func (p CanonicalPayment) PaymentEvent() (domain.PaymentEvent, error) {
	minor, ok := domain.MinorFromDecimal(p.AmountTotal)
	if !ok {
		return domain.PaymentEvent{}, fmt.Errorf("%w: amount_total %s is not a whole number of cents", domain.ErrInvalidInput, p.AmountTotal)
	}
	return domain.PaymentEvent{
		IdempotencyKey: p.IdempotencyKey,
		EventID:        p.EventID,
		Quantity:       p.Quantity,
		AmountTotal:    minor,
		Currency:       p.Currency,
		BuyerID:        p.BuyerID,
		BuyerEmail:     p.BuyerEmail,
		Source:         WebhookPaymentConfirmed,
	}, nil
}

func metadataQuantity(metadata map[string]string) (int, error) {
	raw := strings.TrimSpace(metadata["quantity"])
	if raw == "" {
		return 1, nil
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q", domain.ErrInvalidInput, raw)
	}
	return quantity, nil
}
