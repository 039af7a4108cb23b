package ics

import (
	"strings"
	"testing"
	"time"

	"bnappcal/internal/model"
	"bnappcal/internal/provider"
	"bnappcal/internal/schedule"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup-1\r\n" +
	"SUMMARY:Standup\r\n" +
	"LOCATION:Office\r\n" +
	"DTSTART:20251013T070000Z\r\n" +
	"DTEND:20251013T071500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20251015T070000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup-1\r\n" +
	"RECURRENCE-ID:20251016T070000Z\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"DTSTART:20251016T090000Z\r\n" +
	"DTEND:20251016T091500Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:no uid\r\n" +
	"DTSTART:20251013T070000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Source{Name: "work"}, []byte(sampleFeed))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events (uid-less skipped), got %d", len(events))
	}
	base := events[0]
	if base.UID != "standup-1" || base.Summary != "Standup" || base.Location != "Office" || base.Source.Name != "work" {
		t.Fatalf("base = %+v", base)
	}
	if base.RawRRule != "FREQ=DAILY;COUNT=5" || len(base.ExDates) != 1 || base.IsOverride() {
		t.Fatalf("recurrence fields = %+v", base)
	}
	if !events[1].IsOverride() {
		t.Fatal("second VEVENT should be an override")
	}
}

func TestParseICSEmpty(t *testing.T) {
	if _, err := ParseICS(Source{Name: "x"}, nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestExpandRecurringWithExdateAndOverride(t *testing.T) {
	events, err := ParseICS(Source{Name: "work"}, []byte(sampleFeed))
	if err != nil {
		t.Fatal(err)
	}
	loc := time.FixedZone("IDT", 3*60*60)
	out, err := Expand(events, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2025, 10, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2025, 10, 31, 23, 59, 0, 0, loc),
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"2025-10-13", "2025-10-14", "2025-10-17"} {
		got := out[key]
		if len(got) != 1 || got[0].Title != "Standup" || *got[0].Start != "10:00" || *got[0].End != "10:15" {
			t.Fatalf("%s = %+v", key, got)
		}
		if got[0].Source != "work" || got[0].Owner != model.OwnerBoth || got[0].Auto {
			t.Fatalf("%s overlay fields = %+v", key, got[0])
		}
	}
	if len(out["2025-10-15"]) != 0 {
		t.Fatal("EXDATE occurrence should be removed")
	}
	moved := out["2025-10-16"]
	if len(moved) != 1 || moved[0].Title != "Standup (moved)" || *moved[0].Start != "12:00" {
		t.Fatalf("override = %+v", moved)
	}
}

func TestExpandAllDaySpansDays(t *testing.T) {
	loc := time.UTC
	ev := ParsedEvent{
		Source:  Source{Name: "family"},
		UID:     "trip",
		Summary: "Trip",
		Start:   time.Date(2025, 10, 20, 0, 0, 0, 0, loc),
		End:     time.Date(2025, 10, 23, 0, 0, 0, 0, loc),
		AllDay:  true,
	}
	out, err := Expand([]ParsedEvent{ev}, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2025, 10, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2025, 10, 31, 0, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"2025-10-20", "2025-10-21", "2025-10-22"} {
		if len(out[key]) != 1 || out[key][0].Start != nil {
			t.Fatalf("%s = %+v", key, out[key])
		}
	}
	if len(out["2025-10-23"]) != 0 {
		t.Fatal("DTEND of an all-day event is exclusive")
	}
}

func TestExpandTimedAcrossMidnightIsClipped(t *testing.T) {
	ev := ParsedEvent{
		UID:   "late",
		Start: time.Date(2025, 10, 20, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 10, 21, 1, 0, 0, 0, time.UTC),
	}
	out, err := Expand([]ParsedEvent{ev}, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	got := out["2025-10-20"]
	if len(got) != 1 || *got[0].Start != "22:00" || *got[0].End != "23:59" {
		t.Fatalf("late event = %+v", got)
	}
}

func TestExpandOutOfRangeAndBadRange(t *testing.T) {
	ev := ParsedEvent{
		UID:   "old",
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	cfg := ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
	}
	out, err := Expand([]ParsedEvent{ev}, cfg)
	if err != nil || len(out) != 0 {
		t.Fatalf("out of range = %+v, %v", out, err)
	}
	cfg.RangeStart, cfg.RangeEnd = cfg.RangeEnd, cfg.RangeStart
	if _, err := Expand(nil, cfg); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestExport(t *testing.T) {
	snap := model.Snapshot{
		"2025-10-15": {
			{ID: "a1", Title: "dentist", Kind: model.KindEvent, Owner: model.OwnerNana, Start: model.Str("09:30"), End: model.Str("10:00")},
			{ID: "a2", Title: "groceries", Kind: model.KindTask, Owner: model.OwnerBoth},
		},
		"2025-10-16": {
			{ID: "stale", Title: "stale auto", Auto: true},
		},
	}
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	out := Export(snap, schedule.DefaultRules, time.UTC, now)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:a1@bnappcal",
		"SUMMARY:dentist",
		"DTSTART:20251015T093000",
		"DTEND:20251015T100000",
		"UID:a2@bnappcal",
		"20251015",
		"RRULE:FREQ=WEEKLY;BYDAY=SU,MO,TU,WE,TH",
		"UID:auto-0@bnappcal",
		"UID:auto-1@bnappcal",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
	if strings.Contains(out, "stale auto") {
		t.Error("stored auto events must not be exported")
	}
}

func TestSubscriptionsSources(t *testing.T) {
	if subs := NewSubscriptions(nil, nil); subs != nil || subs.Sources() != nil {
		t.Fatalf("empty subscriptions = %+v", subs)
	}

	in := []Source{{Name: "work", URL: "https://example.com/work.ics"}}
	subs := NewSubscriptions(provider.NewFetcher(t.TempDir(), time.Second), in)
	got := subs.Sources()
	if len(got) != 1 || got[0] != in[0] {
		t.Fatalf("sources = %+v", got)
	}
	got[0].Name = "changed"
	if subs.Sources()[0].Name != "work" {
		t.Fatal("Sources must return a copy")
	}
}
