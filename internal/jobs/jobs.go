// Package jobs runs the periodic provider refresh and the reminder sweep.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
	"bnappcal/internal/reminder"
)

// ReminderSpec runs the reminder sweep at the top of every minute.
const ReminderSpec = "* * * * *"

// Target is what the jobs act on.
type Target interface {
	Refresh(ctx context.Context) bool
	Snapshot() model.Snapshot
}

// Runner owns the cron scheduler.
type Runner struct {
	cron     *cron.Cron
	target   Target
	notifier reminder.Notifier
	loc      *time.Location
	now      func() time.Time
}

// cronLogger routes cron's own messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New validates refreshSpec and registers both jobs. The jobs run on ctx
// once Start is called.
func New(ctx context.Context, refreshSpec string, t Target, n reminder.Notifier, loc *time.Location) (*Runner, error) {
	if n == nil {
		n = reminder.LogNotifier{}
	}
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	r := &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		target:   t,
		notifier: n,
		loc:      loc,
		now:      time.Now,
	}

	if _, err := r.cron.AddFunc(refreshSpec, func() { r.RunRefresh(ctx) }); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", refreshSpec, err)
	}
	if _, err := r.cron.AddFunc(ReminderSpec, func() { r.RunReminders(ctx) }); err != nil {
		return nil, fmt.Errorf("reminder schedule: %w", err)
	}
	return r, nil
}

// Start begins running the jobs in the background.
func (r *Runner) Start() {
	appLog.Info("jobs started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	appLog.Info("jobs stopped")
}

// RunRefresh is the refresh job body.
func (r *Runner) RunRefresh(ctx context.Context) {
	start := time.Now()
	installed := r.target.Refresh(ctx)
	appLog.Info("scheduled refresh done", "installed", installed, "took", time.Since(start).Round(time.Millisecond).String())
}

// RunReminders is the reminder job body. It returns how many were sent.
func (r *Runner) RunReminders(ctx context.Context) int {
	due := reminder.Due(r.target.Snapshot(), r.now(), time.Minute, r.loc)
	if len(due) == 0 {
		return 0
	}
	return reminder.Dispatch(ctx, r.notifier, due)
}
