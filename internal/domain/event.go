package domain

import "time"

// EventStatus represents the sale state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event is the sold occurrence tickets admit to. Only the fields the
// lifecycle needs are modelled; listing and seller details live elsewhere.
type Event struct {
	ID          string
	Title       string
	SellerID    string
	StartsAt    time.Time
	Status      EventStatus
	TicketsSold int
	UpdatedAt   time.Time
}

// Elapsed reports whether the event start lies strictly before now.
func (e Event) Elapsed(now time.Time) bool {
	return e.StartsAt.Before(now)
}

// OnSale reports whether new tickets may be issued for the event.
func (e Event) OnSale() bool {
	return e.Status == EventStatusActive
}
