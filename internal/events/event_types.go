package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketsIssued    EventType = "tickets_issued"
	EventTicketRedeemed   EventType = "ticket_redeemed"
	EventTicketsExpired   EventType = "tickets_expired"
	EventTicketsCancelled EventType = "tickets_cancelled"
	EventReminderDue      EventType = "event_reminder_due"
)

// AllTypes lists every event type.
var AllTypes = []EventType{
	EventTicketsIssued,
	EventReminderDue,
	EventTicketRedeemed,
	EventTicketsCancelled,
	EventTicketsExpired,
}

// Event represents a lifecycle event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, eventID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		EventID:   eventID,
		Timestamp: at,
		Payload:   payload,
	}
}

// IssuedTicket is one ticket inside a TicketsIssuedPayload.
type IssuedTicket struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Price           string `json:"price"`
	VerificationURL string `json:"verification_url,omitempty"`
}

// TicketsIssuedPayload is published once per completed order.
type TicketsIssuedPayload struct {
	OrderID    string         `json:"order_id"`
	BuyerID    string         `json:"buyer_id,omitempty"`
	BuyerEmail string         `json:"buyer_email,omitempty"`
	Currency   string         `json:"currency"`
	Total      string         `json:"total"`
	Tickets    []IssuedTicket `json:"tickets"`
}

// TicketRedeemedPayload payload.
type TicketRedeemedPayload struct {
	TicketID   string    `json:"ticket_id"`
	Code       string    `json:"code"`
	VerifiedBy string    `json:"verified_by"`
	UsedAt     time.Time `json:"used_at"`
}

// TicketsExpiredPayload payload.
type TicketsExpiredPayload struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// TicketsCancelledPayload payload.
type TicketsCancelledPayload struct {
	OrderID   string   `json:"order_id,omitempty"`
	TicketIDs []string `json:"ticket_ids"`
	Reason    string   `json:"reason,omitempty"`
}

// ReminderPayload is addressed to one ticket holder.
type ReminderPayload struct {
	TicketID   string    `json:"ticket_id"`
	Code       string    `json:"code"`
	OwnerEmail string    `json:"owner_email"`
	EventTitle string    `json:"event_title"`
	StartsAt   time.Time `json:"starts_at"`
}
