package schedule

import (
	"sort"
	"time"

	"bnappcal/internal/dateutil"
	"bnappcal/internal/model"
)

// The bounded day window free time is computed in.
const (
	WindowStart = "06:00"
	WindowEnd   = "23:00"
)

// Interval is a [Start, End) span of zero padded "HH:MM" clock strings.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Blocks collects the busy intervals of the given events. Events without
// both a start and an end never block time; stored auto copies are skipped
// because auto blocks are always regenerated from the rules.
func Blocks(auto, events []model.Event) []Interval {
	out := make([]Interval, 0, len(auto)+len(events))
	add := func(ev model.Event) {
		if !ev.Timed() {
			return
		}
		start, err := dateutil.NormalizeClock(*ev.Start)
		if err != nil {
			return
		}
		end, err := dateutil.NormalizeClock(*ev.End)
		if err != nil {
			return
		}
		out = append(out, Interval{Start: start, End: end})
	}
	for _, ev := range auto {
		add(ev)
	}
	for _, ev := range events {
		if ev.Auto {
			continue
		}
		add(ev)
	}
	return out
}

// FreeIntervals sweeps the blocks left to right and returns the uncovered
// parts of the WindowStart..WindowEnd window. HH:MM strings compare in time
// order, so plain string comparison is enough.
func FreeIntervals(blocks []Interval) []Interval {
	sorted := append([]Interval(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Interval, 0, len(sorted)+1)
	cursor := WindowStart
	for _, b := range sorted {
		gapEnd := b.Start
		if gapEnd > WindowEnd {
			gapEnd = WindowEnd
		}
		if gapEnd > cursor {
			out = append(out, Interval{Start: cursor, End: gapEnd})
		}
		// Overlapping blocks only ever push the cursor forward.
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < WindowEnd {
		out = append(out, Interval{Start: cursor, End: WindowEnd})
	}
	return out
}

// FreeTime is the free-time finder for one day: rule blocks for the day plus
// the day's stored events.
func (g *Generator) FreeTime(day time.Time, events []model.Event) []Interval {
	return FreeIntervals(Blocks(g.For(day), events))
}
