// Package refresh reloads the chat list on a cron schedule so chats
// created or renamed elsewhere show up without user action.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is anything that can reload its state from the backend.
// *chat.Manager satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// cronParser accepts 5-field expressions, 6-field expressions with
// seconds, and descriptors such as "@every 1m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether schedule is a usable cron expression. The empty
// schedule disables refreshing and is valid.
func Validate(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", schedule, err)
	}
	return nil
}

// Scheduler calls Refresh on its target according to a cron schedule. A
// tick that arrives while the previous refresh is still running is
// skipped.
type Scheduler struct {
	target   Refresher
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// New creates a Scheduler. timeout bounds each refresh call.
func New(target Refresher, schedule string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		target:   target,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
}

// Start registers the refresh job and starts the ticker. An empty schedule
// leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Debug("periodic refresh disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.fire); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Debug("periodic refresh scheduled", "schedule", s.schedule)
	return nil
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.target.Refresh(ctx); err != nil {
		s.logger.Warn("periodic refresh failed", "error", err)
	}
}

// Stop stops the ticker and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
