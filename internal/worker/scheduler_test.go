package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/service"
)

type stubSweeper struct {
	calls []time.Time
	err   error
}

func (s *stubSweeper) Sweep(_ context.Context, now time.Time) (service.SweepReport, error) {
	s.calls = append(s.calls, now)
	return service.SweepReport{}, s.err
}

type stubReminder struct {
	calls int
}

func (s *stubReminder) SendReminders(context.Context, time.Time) (int, error) {
	s.calls++
	return 0, nil
}

type stubNotifier struct {
	calls []time.Time
}

func (s *stubNotifier) RetryNotifications(_ context.Context, now time.Time) (int, error) {
	s.calls = append(s.calls, now)
	return 0, nil
}

func schedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:         true,
		Timezone:        "America/New_York",
		SweepCron:       "0 0 * * *",
		ReminderCron:    "0 9 * * *",
		NotifyRetryCron: "*/5 * * * *",
	}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s, err := NewScheduler(schedulerConfig(), &stubSweeper{}, &stubReminder{}, &stubNotifier{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 3)

	s, err = NewScheduler(schedulerConfig(), &stubSweeper{}, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	cfg := schedulerConfig()
	cfg.SweepCron = "every midnight"
	_, err := NewScheduler(cfg, &stubSweeper{}, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg = schedulerConfig()
	cfg.NotifyRetryCron = "often"
	_, err = NewScheduler(cfg, &stubSweeper{}, nil, &stubNotifier{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunJobsUseClock(t *testing.T) {
	fixed := time.Date(2026, 10, 2, 4, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{err: errors.New("store down")}
	reminders := &stubReminder{}
	notifier := &stubNotifier{}
	s, err := NewScheduler(schedulerConfig(), sweeper, reminders, notifier, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixed }

	s.RunSweep(context.Background())
	s.RunReminders(context.Background())
	s.RunNotificationRetry(context.Background())

	assert.Equal(t, []time.Time{fixed}, sweeper.calls)
	assert.Equal(t, 1, reminders.calls)
	assert.Equal(t, []time.Time{fixed}, notifier.calls)
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(schedulerConfig(), &stubSweeper{}, nil, nil, zap.NewNop())
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
