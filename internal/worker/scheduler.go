package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/service"
)

const jobTimeout = 10 * time.Minute

// Sweeper is satisfied by *service.SweeperService.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepReport, error)
}

// Reminder is satisfied by *service.ReminderService.
type Reminder interface {
	SendReminders(ctx context.Context, now time.Time) (int, error)
}

// Notifier is satisfied by *service.IssuanceService.
type Notifier interface {
	RetryNotifications(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the expiry sweep, event reminders and the issued
// notification retry on cron specs.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	reminders Reminder
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler registers the jobs. A nil reminder or notifier skips its job.
func NewScheduler(cfg config.SchedulerConfig, sweeper Sweeper, reminders Reminder, notifier Notifier, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper:   sweeper,
		reminders: reminders,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if _, err := s.cron.AddFunc(cfg.SweepCron, func() { s.RunSweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", cfg.SweepCron, err)
	}
	if reminders != nil {
		if _, err := s.cron.AddFunc(cfg.ReminderCron, func() { s.RunReminders(context.Background()) }); err != nil {
			return nil, fmt.Errorf("reminder schedule %q: %w", cfg.ReminderCron, err)
		}
	}
	if notifier != nil {
		if _, err := s.cron.AddFunc(cfg.NotifyRetryCron, func() { s.RunNotificationRetry(context.Background()) }); err != nil {
			return nil, fmt.Errorf("notification retry schedule %q: %w", cfg.NotifyRetryCron, err)
		}
	}
	return s, nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunSweep runs one sweep at the current time.
func (s *Scheduler) RunSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx, s.now()); err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

// RunReminders sends reminders at the current time.
func (s *Scheduler) RunReminders(ctx context.Context) {
	if s.reminders == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if _, err := s.reminders.SendReminders(ctx, s.now()); err != nil {
		s.logger.Error("scheduled reminders failed", zap.Error(err))
	}
}

// RunNotificationRetry republishes tickets_issued for orders that missed it.
func (s *Scheduler) RunNotificationRetry(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if _, err := s.notifier.RetryNotifications(ctx, s.now()); err != nil {
		s.logger.Error("scheduled notification retry failed", zap.Error(err))
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
