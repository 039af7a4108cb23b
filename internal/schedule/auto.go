// Package schedule derives the fixed weekly blocks and the free time left
// around them on a single day.
package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

// Rule is one recurring auto block. RRule holds only the recurrence part
// (no DTSTART); the block's wall-clock times come from Start/End.
type Rule struct {
	Title string
	Start string
	End   string
	RRule string
}

// SundayToThursday is the Israeli work week.
const SundayToThursday = "FREQ=WEEKLY;BYDAY=SU,MO,TU,WE,TH"

// DefaultRules is the weekday -> blocks table: work and a meal/shower block
// on Sunday..Thursday, nothing on Friday and Saturday.
var DefaultRules = []Rule{
	{Title: "עבודה", Start: "08:00", End: "17:00", RRule: SundayToThursday},
	{Title: "אוכל ומקלחת", Start: "17:00", End: "18:30", RRule: SundayToThursday},
}

// Generator evaluates a fixed rule table. It keeps no state between calls.
type Generator struct {
	rules []Rule
}

// NewGenerator validates rules up front so that For never has to fail.
func NewGenerator(rules []Rule) (*Generator, error) {
	for _, r := range rules {
		if _, err := rrule.StrToRRule(r.RRule); err != nil {
			return nil, fmt.Errorf("auto rule %q: %w", r.Title, err)
		}
		if _, err := dateutil.ParseClock(r.Start); err != nil {
			return nil, fmt.Errorf("auto rule %q start: %w", r.Title, err)
		}
		if _, err := dateutil.ParseClock(r.End); err != nil {
			return nil, fmt.Errorf("auto rule %q end: %w", r.Title, err)
		}
	}
	return &Generator{rules: append([]Rule(nil), rules...)}, nil
}

// Default returns a generator over DefaultRules.
func Default() *Generator {
	g, err := NewGenerator(DefaultRules)
	if err != nil {
		// DefaultRules is a constant table; failing here is a programming error.
		panic(err)
	}
	return g
}

// Rules returns a copy of the rule table, e.g. for ICS export.
func (g *Generator) Rules() []Rule {
	return append([]Rule(nil), g.rules...)
}

// For returns the auto events occurring on day, in rule order.
func (g *Generator) For(day time.Time) []model.Event {
	out := make([]model.Event, 0, len(g.rules))
	for _, r := range g.rules {
		if !occursOn(r, day) {
			continue
		}
		out = append(out, model.Event{
			Title: r.Title,
			Kind:  model.KindEvent,
			Owner: model.OwnerBoth,
			Start: model.Str(r.Start),
			End:   model.Str(r.End),
			Auto:  true,
		})
	}
	return out
}

func occursOn(r Rule, day time.Time) bool {
	rr, err := rrule.StrToRRule(r.RRule)
	if err != nil {
		appLog.Error("auto rule parse failed", err, "title", r.Title)
		return false
	}
	first, err := dateutil.At(day, r.Start)
	if err != nil {
		return false
	}
	// Anchor one week back so the day itself is inside the expansion.
	rr.DTStart(dateutil.AddDays(first, -7))

	dayStart := dateutil.StartOfDay(day)
	dayEnd := dateutil.AddDays(dayStart, 1).Add(-time.Nanosecond)
	return len(rr.Between(dayStart, dayEnd, true)) > 0
}
