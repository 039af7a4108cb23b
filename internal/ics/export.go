package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
	"bnappcal/internal/schedule"
)

const (
	productID = "-//bnappcal//calendar export//HE"
	uidDomain = "bnappcal"
	// floating local time, rendered in the subscriber's zone
	floatingLayout = "20060102T150405"
)

// Export renders the stored events and the weekly auto rules as one
// VCALENDAR. Timed events are written as floating local times in loc;
// untimed events become all-day entries.
func Export(snap model.Snapshot, rules []schedule.Rule, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	count := 0
	for _, key := range keys {
		day, err := dateutil.ParseKey(key, loc)
		if err != nil {
			appLog.Warn("ics export: skipping bad date key", "key", key)
			continue
		}
		for i, ev := range snap[key] {
			if ev.Auto || ev.Source != "" {
				continue
			}
			if err := addStored(cal, key, i, day, ev, now); err != nil {
				appLog.Error("ics export: skipping event", err, "key", key, "title", ev.Title)
				continue
			}
			count++
		}
	}

	anchor := dateutil.WeekStart(now.In(loc))
	for i, r := range rules {
		if err := addRule(cal, i, r, anchor, now); err != nil {
			appLog.Error("ics export: skipping auto rule", err, "title", r.Title)
		}
	}

	appLog.Debug("ics export rendered", "events", count, "rules", len(rules))
	return cal.Serialize()
}

func addStored(cal *ical.Calendar, key string, pos int, day time.Time, ev model.Event, now time.Time) error {
	uid := ev.ID
	if uid == "" {
		// Rows written before ids existed are addressed by position.
		uid = fmt.Sprintf("%s-%d", key, pos)
	}

	var start, end time.Time
	timed := ev.Start != nil && *ev.Start != ""
	if timed {
		var err error
		if start, err = dateutil.At(day, *ev.Start); err != nil {
			return err
		}
		if ev.End != nil && *ev.End != "" {
			if end, err = dateutil.At(day, *ev.End); err != nil {
				return err
			}
		}
	}

	vev := cal.AddEvent(uid + "@" + uidDomain)
	vev.SetDtStampTime(now.UTC())
	vev.SetSummary(ev.Title)
	if ev.Address != nil && *ev.Address != "" {
		vev.SetLocation(*ev.Address)
	}
	vev.SetDescription(describe(ev))
	vev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.Kind)))

	if !timed {
		vev.SetAllDayStartAt(day)
		vev.SetAllDayEndAt(dateutil.AddDays(day, 1))
		return nil
	}
	vev.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
	if !end.IsZero() {
		vev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
	}
	return nil
}

func addRule(cal *ical.Calendar, idx int, r schedule.Rule, anchor, now time.Time) error {
	start, err := dateutil.At(anchor, r.Start)
	if err != nil {
		return err
	}
	end, err := dateutil.At(anchor, r.End)
	if err != nil {
		return err
	}
	vev := cal.AddEvent(fmt.Sprintf("auto-%d@%s", idx, uidDomain))
	vev.SetDtStampTime(now.UTC())
	vev.SetSummary(r.Title)
	vev.SetDescription(model.OwnerBoth.Label())
	vev.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
	vev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
	vev.SetProperty(ical.ComponentPropertyRrule, r.RRule)
	return nil
}

func describe(ev model.Event) string {
	parts := []string{ev.Owner.Label(), ev.Kind.Label()}
	if ev.Notify {
		parts = append(parts, fmt.Sprintf("תזכורת %d דק׳", ev.NotifyMinutes))
	}
	return strings.Join(parts, " • ")
}
