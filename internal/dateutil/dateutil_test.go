package dateutil

import (
	"errors"
	"testing"
	"time"
)

func TestKeyUsesLocalDate(t *testing.T) {
	loc := time.FixedZone("IST", 2*60*60)
	// 00:30 local is still the previous day in UTC; the key must stay local.
	d := time.Date(2025, time.March, 1, 0, 30, 0, 0, loc)
	if got := Key(d); got != "2025-03-01" {
		t.Fatalf("Key = %s, want 2025-03-01", got)
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	d, err := ParseKey("2024-02-29", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if Key(d) != "2024-02-29" {
		t.Fatalf("round trip = %s", Key(d))
	}
	if _, err := ParseKey("2024-13-01", time.UTC); err == nil {
		t.Fatal("expected error for month 13")
	}
	if ValidKey("2024-1-1") {
		t.Fatal("unpadded key should be invalid")
	}
}

func TestWeekStart(t *testing.T) {
	// 2025-10-15 is a Wednesday.
	d := time.Date(2025, time.October, 15, 13, 0, 0, 0, time.UTC)
	ws := WeekStart(d)
	if ws.Weekday() != time.Sunday || Key(ws) != "2025-10-12" {
		t.Fatalf("WeekStart = %s (%s)", Key(ws), ws.Weekday())
	}
	if ws.Hour() != 0 {
		t.Fatalf("WeekStart should be midnight, got %v", ws)
	}
	sunday := time.Date(2025, time.October, 12, 9, 0, 0, 0, time.UTC)
	if Key(WeekStart(sunday)) != "2025-10-12" {
		t.Fatal("a Sunday is its own week start")
	}
}

func TestWeekday(t *testing.T) {
	sat := time.Date(2025, time.October, 18, 0, 0, 0, 0, time.UTC)
	if Weekday(sat) != 6 {
		t.Fatalf("Weekday(saturday) = %d", Weekday(sat))
	}
}

func TestPad2AndClock(t *testing.T) {
	if Pad2(7) != "07" || Pad2(12) != "12" {
		t.Fatal("Pad2 mismatch")
	}
	if Clock(6*60) != "06:00" || Clock(18*60+30) != "18:30" {
		t.Fatal("Clock mismatch")
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"06:00", 360, false},
		{"9:05", 545, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:5", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidClock) {
				t.Errorf("ParseClock(%q) err = %v, want ErrInvalidClock", c.in, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("ParseClock(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
	}
}

func TestNormalizeClock(t *testing.T) {
	got, err := NormalizeClock("7:45")
	if err != nil || got != "07:45" {
		t.Fatalf("NormalizeClock = %q, %v", got, err)
	}
}

func TestAt(t *testing.T) {
	day := time.Date(2025, time.January, 5, 15, 0, 0, 0, time.UTC)
	got, err := At(day, "08:30")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, time.January, 5, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("At = %v, want %v", got, want)
	}
}

func TestAddDaysCrossesMonth(t *testing.T) {
	d := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	if Key(AddDays(d, 1)) != "2025-02-01" {
		t.Fatal("AddDays did not roll over")
	}
}
