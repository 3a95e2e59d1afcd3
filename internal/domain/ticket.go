package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
)

// Terminal reports whether no transition may leave the status.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

// Known reports whether s is one of the defined statuses.
func (s TicketStatus) Known() bool {
	return s == TicketStatusValid || s.Terminal()
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusValid:     {TicketStatusUsed, TicketStatusExpired, TicketStatusCancelled},
	TicketStatusUsed:      {},
	TicketStatusCancelled: {},
	TicketStatusExpired:   {},
}

// CanTransition reports whether from -> to is an edge of the ticket state machine.
func CanTransition(from, to TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Ticket is one admission issued for a paid order.
//
// UsedAt is non-nil exactly when Status is TicketStatusUsed.
type Ticket struct {
	ID             string
	EventID        string
	OrderID        string
	UnitIndex      int
	Code           string
	OwnerID        string
	OwnerEmail     string
	PriceMinor     int64
	Currency       string
	Status         TicketStatus
	IssuedAt       time.Time
	UsedAt         *time.Time
	ReminderSentAt *time.Time
	UpdatedAt      time.Time
}

// TransitionFields carries the columns written alongside a status change.
type TransitionFields struct {
	At time.Time
}
