package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcity/ticket-service/internal/domain"
	"github.com/topcity/ticket-service/internal/events"
)

func TestSendRemindersOncePerTicket(t *testing.T) {
	f := newFixture(t)
	f.store.PutEvent(domain.Event{ID: "E9", Title: "Later", StartsAt: fixedNow.Add(72 * time.Hour), Status: domain.EventStatusActive})
	valid := f.seedTicket(t, "E1", "TCT-E1-REMINDME", domain.TicketStatusValid)
	f.seedTicket(t, "E1", "TCT-E1-USEDUSED", domain.TicketStatusUsed)
	f.seedTicket(t, "E9", "TCT-E9-TOOEARLY", domain.TicketStatusValid)

	svc := NewReminderService(ReminderDependencies{
		TicketRepo: f.store.Tickets(),
		EventRepo:  f.store.Events(),
		Dispatcher: f.dispatcher,
	})
	ctx := context.Background()

	sent, err := svc.SendReminders(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = svc.SendReminders(ctx, fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	reminders := f.published.ofType(events.EventReminderDue)
	require.Len(t, reminders, 1)
	payload := reminders[0].Payload.(events.ReminderPayload)
	assert.Equal(t, valid.ID, payload.TicketID)
	assert.Equal(t, "Jazz Night", payload.EventTitle)
	assert.Equal(t, "buyer@example.com", payload.OwnerEmail)
}
