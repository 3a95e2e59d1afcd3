package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/repository/memory"
)

type seedEvent struct {
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	SellerID string             `json:"sellerId"`
	StartsAt time.Time          `json:"startsAt"`
	Status   domain.EventStatus `json:"status"`
}

func (e seedEvent) event() (domain.Event, error) {
	event := domain.Event{
		ID:       strings.TrimSpace(e.ID),
		Title:    e.Title,
		SellerID: e.SellerID,
		StartsAt: e.StartsAt.UTC(),
		Status:   e.Status,
	}
	if event.ID == "" {
		return event, fmt.Errorf("%w: event id required", domain.ErrInvalidInput)
	}
	if e.StartsAt.IsZero() {
		return event, fmt.Errorf("%w: event %s has no startsAt", domain.ErrInvalidInput, event.ID)
	}
	switch event.Status {
	case "":
		event.Status = domain.EventStatusActive
	case domain.EventStatusDraft, domain.EventStatusActive, domain.EventStatusCompleted, domain.EventStatusCancelled:
	default:
		return event, fmt.Errorf("%w: event %s has status %q", domain.ErrInvalidInput, event.ID, event.Status)
	}
	return event, nil
}

// loadEventsFile puts the events listed in the JSON file at path into
// store and returns how many it loaded. Nothing is loaded if any entry is
// invalid.
func loadEventsFile(path string, store *memory.Store) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read events file: %w", err)
	}
	var seeds []seedEvent
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("parse events file %s: %w", path, err)
	}

	loaded := make([]domain.Event, 0, len(seeds))
	for i, seed := range seeds {
		event, err := seed.event()
		if err != nil {
			return 0, fmt.Errorf("events file %s entry %d: %w", path, i, err)
		}
		loaded = append(loaded, event)
	}
	for _, event := range loaded {
		store.PutEvent(event)
	}
	return len(loaded), nil
}
