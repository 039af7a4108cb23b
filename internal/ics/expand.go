package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone DateKeys and HH:MM clocks are derived in.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules; zero uses the default.
	MaxOccurrencesPerEvent int
}

// Overlays maps DateKey to read-only events from subscribed feeds.
type Overlays map[string][]model.Event

// Expand turns parsed VEVENTs into per-day overlay events. Recurring events
// are expanded with their EXDATEs and RECURRENCE-ID overrides applied.
func Expand(events []ParsedEvent, cfg ExpandConfig) (Overlays, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make([]ParsedEvent, 0, len(events))
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	out := make(Overlays)
	for _, ev := range bases {
		for _, occ := range occurrences(ev, overrides[ev.UID], cfg) {
			place(out, occ, cfg)
		}
	}
	return out, nil
}

type occurrence struct {
	ev         ParsedEvent
	start, end time.Time
}

func occurrences(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []occurrence {
	if ev.RawRRule == "" {
		if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil
		}
		return []occurrence{applyOverride(ev, overrides, ev.Start, ev.End)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(cfg.RangeStart.In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location()), true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("expand: occurrences truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		starts = starts[:cfg.MaxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, applyOverride(ev, overrides, s, s.Add(dur)))
	}
	return out
}

// applyOverride swaps in an override whose RECURRENCE-ID equals start.
func applyOverride(ev ParsedEvent, overrides []ParsedEvent, start, end time.Time) occurrence {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return occurrence{ev: ov, start: ov.Start, end: ov.End}
		}
	}
	return occurrence{ev: ev, start: start, end: end}
}

// place files one occurrence under its DateKey(s). All-day occurrences land
// on every day they cover; timed ones on their start day, clipped to 23:59.
func place(out Overlays, occ occurrence, cfg ExpandConfig) {
	loc := cfg.DisplayLocation
	base := model.Event{
		ID:      occ.ev.UID + "@" + occ.start.UTC().Format("20060102T150405Z"),
		Title:   occ.ev.Summary,
		Kind:    model.KindEvent,
		Owner:   model.OwnerBoth,
		Address: model.Str(occ.ev.Location),
		Source:  occ.ev.Source.Name,
	}

	if occ.ev.AllDay {
		// All-day dates are calendar dates; keep them in the feed's own zone.
		first := dateutil.StartOfDay(occ.start)
		for d := first; d.Before(occ.end); d = dateutil.AddDays(d, 1) {
			local := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
			if local.Before(dateutil.StartOfDay(cfg.RangeStart.In(loc))) || local.After(cfg.RangeEnd.In(loc)) {
				continue
			}
			key := dateutil.Key(local)
			out[key] = append(out[key], base)
		}
		return
	}

	start := occ.start.In(loc)
	end := occ.end.In(loc)
	ev := base
	ev.Start = model.Str(start.Format("15:04"))
	if dateutil.Key(end) != dateutil.Key(start) {
		ev.End = model.Str("23:59")
	} else {
		ev.End = model.Str(end.Format("15:04"))
	}
	key := dateutil.Key(start)
	out[key] = append(out[key], ev)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
