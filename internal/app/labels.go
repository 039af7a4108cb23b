package app

import (
	"fmt"
	"time"
)

var hebrewMonths = [...]string{
	"ינואר", "פברואר", "מרץ", "אפריל", "מאי", "יוני",
	"יולי", "אוגוסט", "ספטמבר", "אוקטובר", "נובמבר", "דצמבר",
}

var hebrewWeekdays = [...]string{"ראשון", "שני", "שלישי", "רביעי", "חמישי", "שישי", "שבת"}

// WeekdayLetters are the one-letter day names, Sunday first. The weather
// strip and the terminal grid header use them.
var WeekdayLetters = [...]string{"א", "ב", "ג", "ד", "ה", "ו", "ש"}

// MonthLabel formats "אוקטובר 2025".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", hebrewMonths[month-1], year)
}

// DateLabel formats "יום רביעי, 15 באוקטובר 2025".
func DateLabel(d time.Time) string {
	return fmt.Sprintf("יום %s, %d ב%s %d", hebrewWeekdays[d.Weekday()], d.Day(), hebrewMonths[d.Month()-1], d.Year())
}

// WeekdayLetter is the one-letter Hebrew day name, Sunday = "א".
func WeekdayLetter(d time.Time) string {
	return WeekdayLetters[d.Weekday()]
}
