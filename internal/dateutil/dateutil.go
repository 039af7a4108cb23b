// Package dateutil holds the small date helpers shared by every date-keyed
// mapping in the app.
package dateutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyLayout is the canonical YYYY-MM-DD layout used as DateKey.
const KeyLayout = "2006-01-02"

var ErrInvalidClock = errors.New("invalid HH:MM value")

// Key formats d as a DateKey in d's own location. Callers convert to the
// display zone first; the key is never derived from UTC.
func Key(d time.Time) string {
	return d.Format(KeyLayout)
}

// ParseKey parses a DateKey as local midnight in loc.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(KeyLayout, key, loc)
}

// ValidKey reports whether key is a well-formed DateKey.
func ValidKey(key string) bool {
	_, err := time.Parse(KeyLayout, key)
	return err == nil
}

// StartOfDay truncates d to local midnight, keeping its location.
func StartOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// Weekday numbers days 0=Sunday .. 6=Saturday.
func Weekday(d time.Time) int {
	return int(d.Weekday())
}

// WeekStart returns the Sunday on or before d at local midnight.
func WeekStart(d time.Time) time.Time {
	day := StartOfDay(d)
	return day.AddDate(0, 0, -Weekday(day))
}

// AddDays steps by calendar days, which stays on midnight across DST.
func AddDays(d time.Time, n int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day()+n, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
}

func Pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Clock formats minutes after midnight as "HH:MM".
func Clock(minutes int) string {
	return Pad2(minutes/60) + ":" + Pad2(minutes%60)
}

// ParseClock converts "H:MM" or "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hh*60 + mm, nil
}

// NormalizeClock rewrites "H:MM" as zero padded "HH:MM" so that clock strings
// compare lexicographically in time order.
func NormalizeClock(s string) (string, error) {
	mins, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return Clock(mins), nil
}

// At returns day (midnight) advanced to the given "HH:MM".
func At(day time.Time, clock string) (time.Time, error) {
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	d := StartOfDay(day)
	return time.Date(d.Year(), d.Month(), d.Day(), mins/60, mins%60, 0, 0, d.Location()), nil
}
