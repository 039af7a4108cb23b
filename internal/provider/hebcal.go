package provider

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

// Endpoints are the provider base URLs; tests point them at httptest servers.
type Endpoints struct {
	Hebcal       string
	OpenMeteo    string
	GeoNames     string
	GeoNamesUser string
}

// DefaultEndpoints are the public services the app was built against.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Hebcal:    "https://www.hebcal.com",
		OpenMeteo: "https://api.open-meteo.com",
		GeoNames:  "https://secure.geonames.org",
	}
}

// Client talks to the holiday, Shabbat, Hebrew date, weather and city
// providers. Each method is one request that returns a fresh mapping; the
// caller decides whether to install it.
type Client struct {
	f  *Fetcher
	ep Endpoints
}

func NewClient(f *Fetcher, ep Endpoints) *Client {
	return &Client{f: f, ep: ep}
}

type hebcalItem struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Category string `json:"category"`
}

type hebcalResponse struct {
	Items []hebcalItem `json:"items"`
}

// candle lighting minutes before sunset
const candleMinutes = "50"

func geoParams(city model.City) url.Values {
	q := url.Values{}
	q.Set("cfg", "json")
	q.Set("geo", "pos")
	q.Set("latitude", strconv.FormatFloat(city.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(city.Lon, 'f', -1, 64))
	q.Set("tzid", city.TZID)
	q.Set("m", candleMinutes)
	return q
}

// normalizeMonth maps a possibly out-of-range zero-based month onto a real one.
func normalizeMonth(year, month0 int) (int, time.Month) {
	first := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	return first.Year(), first.Month()
}

// Holidays fetches the holiday/zemanim calendar for one month. Items missing
// a date or title are dropped one by one.
func (c *Client) Holidays(ctx context.Context, city model.City, year, month0 int) (map[string]model.HolidayEntry, error) {
	y, m := normalizeMonth(year, month0)
	q := geoParams(city)
	q.Set("v", "1")
	q.Set("year", strconv.Itoa(y))
	q.Set("month", strconv.Itoa(int(m)))
	for _, flag := range []string{"maj", "min", "mod", "nx", "ss", "mf", "c"} {
		q.Set(flag, "on")
	}

	var resp hebcalResponse
	if err := c.f.GetJSON(ctx, "hebcal-holidays", c.ep.Hebcal+"/hebcal?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]model.HolidayEntry)
	for _, item := range resp.Items {
		if item.Date == "" || item.Title == "" || len(item.Date) < 10 {
			continue
		}
		out[item.Date[:10]] = model.HolidayEntry{
			Title:    item.Title,
			Category: model.Str(item.Category),
		}
	}
	appLog.Info("holidays fetched", "year", y, "month", int(m), "days", len(out))
	return out, nil
}

// ShabbatWindow is the two-month range the Shabbat adapter covers: the first
// of the month through the last day of the following month.
func ShabbatWindow(year, month0 int) (from, to time.Time) {
	y, m := normalizeMonth(year, month0)
	from = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC)
	return from, to
}

// Shabbat fetches candle lighting and havdalah times for the two-month window.
func (c *Client) Shabbat(ctx context.Context, city model.City, year, month0 int) (map[string]model.ShabbatEntry, error) {
	from, to := ShabbatWindow(year, month0)
	q := geoParams(city)
	q.Set("start", dateutil.Key(from))
	q.Set("end", dateutil.Key(to))

	var resp hebcalResponse
	if err := c.f.GetJSON(ctx, "hebcal-shabbat", c.ep.Hebcal+"/shabbat?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]model.ShabbatEntry)
	for _, item := range resp.Items {
		if item.Date == "" || item.Category == "" || len(item.Date) < 10 {
			continue
		}
		if item.Category != "candles" && item.Category != "havdalah" {
			continue
		}
		key := item.Date[:10]
		entry := out[key]
		clock, ok := ExtractClock(item.Date, item.Title)
		switch {
		case !ok:
			entry.Unparsed = true
			appLog.Warn("shabbat time not found", "date", key, "category", item.Category, "title", item.Title)
		case item.Category == "candles":
			entry.Candle = clock
		default:
			entry.Havdalah = clock
		}
		out[key] = entry
	}
	appLog.Info("shabbat fetched", "from", dateutil.Key(from), "to", dateutil.Key(to), "days", len(out))
	return out, nil
}

var titleClock = regexp.MustCompile(`^.*?\s(\d\d?:\d\d)`)

// ExtractClock pulls an "HH:MM" time for a Shabbat item. The structured
// time in an ISO date ("2025-10-17T17:58:00+03:00") wins; otherwise the
// first "H:MM"/"HH:MM" after whitespace in the title is used.
func ExtractClock(date, title string) (string, bool) {
	if len(date) >= 16 && date[10] == 'T' {
		if clock, err := dateutil.NormalizeClock(date[11:16]); err == nil {
			return clock, true
		}
	}
	m := titleClock.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	clock, err := dateutil.NormalizeClock(m[1])
	if err != nil {
		return "", false
	}
	return clock, true
}

type converterResponse struct {
	HDates map[string]model.HebrewDate `json:"hdates"`
}

// HebrewDates converts every Gregorian date in [from, to] to its Hebrew date.
func (c *Client) HebrewDates(ctx context.Context, from, to time.Time) (map[string]model.HebrewDate, error) {
	q := url.Values{}
	q.Set("cfg", "json")
	q.Set("g2h", "1")
	q.Set("start", dateutil.Key(from))
	q.Set("end", dateutil.Key(to))

	var resp converterResponse
	if err := c.f.GetJSON(ctx, "hebcal-converter", c.ep.Hebcal+"/converter?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make(map[string]model.HebrewDate, len(resp.HDates))
	for key, hd := range resp.HDates {
		if !dateutil.ValidKey(key) || hd.Hebrew == "" {
			continue
		}
		out[key] = hd
	}
	return out, nil
}

// HebrewDayLabel is the day part of a Hebrew date ("ט׳" of "ט׳ תִּשְׁרֵי תשפ״ו").
func HebrewDayLabel(hd model.HebrewDate) string {
	day, _, _ := strings.Cut(strings.TrimSpace(hd.Hebrew), " ")
	return day
}

// HebrewMonthLabel drops the day part, leaving month and year.
func HebrewMonthLabel(hd model.HebrewDate) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(hd.Hebrew), " ")
	return strings.TrimSpace(rest)
}
