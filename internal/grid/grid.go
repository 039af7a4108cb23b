// Package grid builds the six-week month view and joins every date-keyed
// mapping onto its cells.
package grid

import (
	"math"
	"strings"
	"time"

	"bnappcal/internal/dateutil"
	"bnappcal/internal/model"
	"bnappcal/internal/provider"
)

const (
	// Cells is 6 full weeks.
	Cells = 42
	// MaxPreview is how many event titles a cell lists before "+ N".
	MaxPreview = 2
	// BusyThreshold: a cell with more user events than this is highlighted.
	BusyThreshold = 2
)

// Day is one grid position.
type Day struct {
	Date    time.Time
	InMonth bool
}

// FirstOfMonth normalizes a zero-based month (any int) to local midnight on
// the 1st, rolling the year as needed.
func FirstOfMonth(year, month0 int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, loc)
}

// Days returns the 42 consecutive dates starting from the Sunday on or
// before the 1st of the month.
func Days(year, month0 int, loc *time.Location) []Day {
	first := FirstOfMonth(year, month0, loc)
	start := dateutil.AddDays(first, -dateutil.Weekday(first))

	out := make([]Day, 0, Cells)
	for i := 0; i < Cells; i++ {
		d := dateutil.AddDays(start, i)
		out = append(out, Day{
			Date:    d,
			InMonth: d.Year() == first.Year() && d.Month() == first.Month(),
		})
	}
	return out
}

// Range is the first and last date shown for the month.
func Range(year, month0 int, loc *time.Location) (from, to time.Time) {
	days := Days(year, month0, loc)
	return days[0].Date, days[len(days)-1].Date
}

// Sources are the independent date-keyed mappings joined at render time.
// Any of them may be nil.
type Sources struct {
	Today    time.Time
	Events   model.Snapshot
	Overlays map[string][]model.Event
	Holidays map[string]model.HolidayEntry
	Shabbat  map[string]model.ShabbatEntry
	Weather  map[string]model.WeatherEntry
	Hebrew   map[string]model.HebrewDate
}

// Marker is the Shabbat icon shown on a cell.
type Marker string

const (
	MarkerNone     Marker = ""
	MarkerCandle   Marker = "candle"
	MarkerHavdalah Marker = "havdalah"
)

type Preview struct {
	Title string      `json:"title"`
	Owner model.Owner `json:"owner"`
}

type WeatherBadge struct {
	Emoji string `json:"emoji"`
	TMax  int    `json:"tmax"`
	TMin  int    `json:"tmin"`
}

type Cell struct {
	Date      time.Time     `json:"-"`
	Key       string        `json:"date"`
	Day       int           `json:"day"`
	Weekday   int           `json:"weekday"`
	HebrewDay string        `json:"hebrewDay,omitempty"`
	InMonth   bool          `json:"inMonth"`
	Today     bool          `json:"today"`
	Holiday   string        `json:"holiday,omitempty"`
	Shabbat   Marker        `json:"shabbat,omitempty"`
	Previews  []Preview     `json:"events"`
	More      int           `json:"more,omitempty"`
	Weather   *WeatherBadge `json:"weather,omitempty"`
	Busy      bool          `json:"busy"`
}

// Month is the rendered grid for one month.
type Month struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Cells []Cell `json:"cells"`
}

// Build renders the month. It is pure: the same inputs give the same cells.
func Build(year, month0 int, loc *time.Location, src Sources) Month {
	first := FirstOfMonth(year, month0, loc)
	todayKey := ""
	if !src.Today.IsZero() {
		todayKey = dateutil.Key(src.Today.In(first.Location()))
	}

	m := Month{Year: first.Year(), Month: int(first.Month()), Cells: make([]Cell, 0, Cells)}
	for _, d := range Days(year, month0, loc) {
		m.Cells = append(m.Cells, buildCell(d, todayKey, src))
	}
	return m
}

func buildCell(d Day, todayKey string, src Sources) Cell {
	key := dateutil.Key(d.Date)
	weekday := dateutil.Weekday(d.Date)
	c := Cell{
		Date:     d.Date,
		Key:      key,
		Day:      d.Date.Day(),
		Weekday:  weekday,
		InMonth:  d.InMonth,
		Today:    key == todayKey,
		Previews: []Preview{},
	}

	if hd, ok := src.Hebrew[key]; ok {
		c.HebrewDay = provider.HebrewDayLabel(hd)
	}

	// Weekly Torah portions are listed on every Saturday; the cell skips them.
	if h, ok := src.Holidays[key]; ok && !strings.Contains(h.Title, "Parashat") {
		c.Holiday = h.Title
	}

	c.Shabbat = ShabbatMarker(weekday, src.Shabbat[key])

	dayEvents := UserEvents(src.Events[key], src.Overlays[key])
	for i := 0; i < len(dayEvents) && i < MaxPreview; i++ {
		c.Previews = append(c.Previews, Preview{Title: dayEvents[i].Title, Owner: dayEvents[i].Owner})
	}
	if len(dayEvents) > MaxPreview {
		c.More = len(dayEvents) - MaxPreview
	}
	if len(dayEvents) == 0 {
		if w, ok := src.Weather[key]; ok {
			code := w.Code
			c.Weather = &WeatherBadge{
				Emoji: provider.Emoji(&code),
				TMax:  Round(w.TMax),
				TMin:  Round(w.TMin),
			}
		}
	}
	c.Busy = len(dayEvents) > BusyThreshold
	return c
}

// ShabbatMarker puts the candle on Friday and havdalah on Saturday, only
// when the corresponding time is known.
func ShabbatMarker(weekday int, e model.ShabbatEntry) Marker {
	switch {
	case weekday == 5 && e.Candle != "":
		return MarkerCandle
	case weekday == 6 && e.Havdalah != "":
		return MarkerHavdalah
	default:
		return MarkerNone
	}
}

// UserEvents drops stored auto copies and appends read-only overlays.
func UserEvents(stored, overlays []model.Event) []model.Event {
	out := make([]model.Event, 0, len(stored)+len(overlays))
	for _, ev := range stored {
		if !ev.Auto {
			out = append(out, ev)
		}
	}
	return append(out, overlays...)
}

// Round rounds half up, so -2.5 becomes -2 and 2.5 becomes 3.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}
