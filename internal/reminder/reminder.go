// Package reminder finds events whose notification time has come.
package reminder

import (
	"context"
	"sort"
	"time"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

// Reminder is one notification to send.
type Reminder struct {
	Date   string
	At     time.Time // start - notifyMinutes
	Starts time.Time
	Event  model.Event
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder) error {
	appLog.Info("reminder",
		"date", r.Date,
		"start", r.Starts.Format("15:04"),
		"title", r.Event.Title,
		"owner", r.Event.Owner.Label(),
	)
	return nil
}

// Due returns the reminders whose notify time falls in (now-window, now],
// ordered by notify time. Events without notify or a start time never fire.
func Due(snap model.Snapshot, now time.Time, window time.Duration, loc *time.Location) []Reminder {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	from := now.Add(-window)

	var out []Reminder
	for key, events := range snap {
		day, err := dateutil.ParseKey(key, loc)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if !ev.Notify || ev.Auto || ev.Start == nil {
				continue
			}
			start, err := dateutil.At(day, *ev.Start)
			if err != nil {
				continue
			}
			at := start.Add(-time.Duration(ev.NotifyMinutes) * time.Minute)
			if at.After(from) && !at.After(now) {
				out = append(out, Reminder{Date: key, At: at, Starts: start, Event: ev})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Dispatch sends every due reminder; failures are logged and skipped.
func Dispatch(ctx context.Context, n Notifier, due []Reminder) int {
	sent := 0
	for _, r := range due {
		if err := n.Notify(ctx, r); err != nil {
			appLog.Error("reminder dispatch failed", err, "date", r.Date, "title", r.Event.Title)
			continue
		}
		sent++
	}
	return sent
}
