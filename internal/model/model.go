package model

import (
	"strings"
)

// Kind distinguishes timed events from to-do style tasks.
type Kind string

const (
	KindEvent Kind = "event"
	KindTask  Kind = "task"
)

// Owner is one of the two calendar owners, or both of them.
type Owner string

const (
	OwnerBenjamin Owner = "benjamin"
	OwnerNana     Owner = "nana"
	OwnerBoth     Owner = "both"
)

// Label is the Hebrew display name.
func (o Owner) Label() string {
	switch o {
	case OwnerBenjamin:
		return "בנימין"
	case OwnerNana:
		return "ננה"
	default:
		return "משותף"
	}
}

// Label is the Hebrew display name.
func (k Kind) Label() string {
	if k == KindTask {
		return "משימה"
	}
	return "אירוע"
}

// Theme is the persisted UI theme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Event is a single calendar entry for one DateKey.
//
// Start/End/Address are pointers because the stored shape uses null for
// "not set", which is different from an empty string.
type Event struct {
	ID            string  `json:"id,omitempty"`
	Title         string  `json:"title"`
	Kind          Kind    `json:"kind"`
	Owner         Owner   `json:"owner"`
	Start         *string `json:"start"`
	End           *string `json:"end"`
	Address       *string `json:"address"`
	Notify        bool    `json:"notify"`
	NotifyMinutes int     `json:"notifyMinutes"`
	Auto          bool    `json:"auto"`

	// Source is set for read-only events overlaid from a subscribed ICS feed.
	Source string `json:"source,omitempty"`
}

// Timed reports whether the event carries both a start and an end time.
func (e Event) Timed() bool {
	return e.Start != nil && *e.Start != "" && e.End != nil && *e.End != ""
}

// StartOr returns the start time or def when unset.
func (e Event) StartOr(def string) string {
	if e.Start == nil || *e.Start == "" {
		return def
	}
	return *e.Start
}

// EndOr returns the end time or def when unset.
func (e Event) EndOr(def string) string {
	if e.End == nil || *e.End == "" {
		return def
	}
	return *e.End
}

// AddressOr returns the address or def when unset.
func (e Event) AddressOr(def string) string {
	if e.Address == nil || *e.Address == "" {
		return def
	}
	return *e.Address
}

// Str returns a pointer to s, or nil for the empty string.
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ParseOwner normalizes free-form input; anything unknown is shared.
func ParseOwner(s string) Owner {
	switch Owner(strings.ToLower(strings.TrimSpace(s))) {
	case OwnerBenjamin:
		return OwnerBenjamin
	case OwnerNana:
		return OwnerNana
	default:
		return OwnerBoth
	}
}

// ParseKind normalizes free-form input; anything other than "task" is an event.
func ParseKind(s string) Kind {
	if Kind(strings.ToLower(strings.TrimSpace(s))) == KindTask {
		return KindTask
	}
	return KindEvent
}

// ParseTheme defaults to dark for anything other than "light".
func ParseTheme(s string) Theme {
	if Theme(strings.TrimSpace(s)) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// HolidayEntry is one holiday/zemanim item for a date.
type HolidayEntry struct {
	Title    string  `json:"title"`
	Category *string `json:"category"`
}

// ShabbatEntry holds candle lighting and havdalah times for a date.
// Unparsed is set when the provider listed a time for the date but none
// could be extracted from it.
type ShabbatEntry struct {
	Candle   string `json:"candle,omitempty"`
	Havdalah string `json:"havdalah,omitempty"`
	Unparsed bool   `json:"unparsed,omitempty"`
}

// WeatherEntry is the daily forecast for a date.
type WeatherEntry struct {
	Code int     `json:"code"`
	TMax float64 `json:"tmax"`
	TMin float64 `json:"tmin"`
}

// CurrentWeather is the unkeyed "now" snapshot.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	WeatherCode *int    `json:"weathercode"`
}

// HebrewDate is the Hebrew calendar date for a Gregorian DateKey.
type HebrewDate struct {
	Day    int    `json:"hd"`
	Month  string `json:"hm"`
	Year   int    `json:"hy"`
	Hebrew string `json:"hebrew"`
}

// City is the single active location driving provider queries.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	TZID string  `json:"tzid"`
}

// Usable reports whether the city has coordinates worth querying with.
func (c City) Usable() bool {
	return c.Lat != 0 && c.Lon != 0
}

// Snapshot maps DateKey to the ordered list of events stored for that date.
type Snapshot map[string][]Event

// Clone copies the map and the per-date slices.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = append([]Event(nil), v...)
	}
	return out
}
