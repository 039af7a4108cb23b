package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bnappcal/internal/app"
	"bnappcal/internal/config"
	"bnappcal/internal/model"
	"bnappcal/internal/provider"
	"bnappcal/internal/store"
)

type stubProviders struct{}

func (stubProviders) Holidays(context.Context, model.City, int, int) (map[string]model.HolidayEntry, error) {
	return map[string]model.HolidayEntry{"2025-10-07": {Title: "Sukkot I"}}, nil
}

func (stubProviders) Shabbat(context.Context, model.City, int, int) (map[string]model.ShabbatEntry, error) {
	return map[string]model.ShabbatEntry{"2025-10-17": {Candle: "17:51"}}, nil
}

func (stubProviders) HebrewDates(context.Context, time.Time, time.Time) (map[string]model.HebrewDate, error) {
	return map[string]model.HebrewDate{}, nil
}

func (stubProviders) Weather(context.Context, model.City) (provider.Forecast, error) {
	return provider.Forecast{Daily: map[string]model.WeatherEntry{}}, nil
}

func (stubProviders) SearchCities(_ context.Context, q, tz string) ([]model.City, error) {
	return []model.City{{Name: q + ", Israel", Lat: 32.8, Lon: 34.98, TZID: tz}}, nil
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := app.New(s, stubProviders{}, app.Options{
		Location:    time.UTC,
		DefaultCity: cfg.DefaultCity(),
		Now:         func() time.Time { return time.Date(2025, time.October, 15, 10, 0, 0, 0, time.UTC) },
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	return NewServer(cfg, a)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := do(t, s.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestMonthAndNavigation(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	m := decode[app.MonthView](t, do(t, h, "GET", "/api/month", ""))
	if m.Year != 2025 || m.Month != 10 || len(m.Cells) != 42 {
		t.Fatalf("month = %d/%d cells=%d", m.Year, m.Month, len(m.Cells))
	}

	m = decode[app.MonthView](t, do(t, h, "POST", "/api/view/next", ""))
	if m.Month != 11 {
		t.Fatalf("next = %d", m.Month)
	}
	m = decode[app.MonthView](t, do(t, h, "POST", "/api/view/today", ""))
	if m.Month != 10 {
		t.Fatalf("today = %d", m.Month)
	}
	if w := do(t, h, "POST", "/api/view/sideways", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown action = %d", w.Code)
	}
	if w := do(t, h, "GET", "/api/view/next", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on view = %d", w.Code)
	}

	day := decode[app.DayView](t, do(t, h, "POST", "/api/view/jump?date=2026-01-04", ""))
	if day.Date != "2026-01-04" {
		t.Fatalf("jump = %+v", day)
	}
}

func TestAddEventAndDay(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := do(t, h, "POST", "/api/events", `{"date":"2025-10-17","title":"dinner","owner":"benjamin","start":"19:00","end":"21:00"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add = %d %s", w.Code, w.Body.String())
	}
	ev := decode[model.Event](t, w)
	if ev.ID == "" || ev.NotifyMinutes != 60 {
		t.Fatalf("created = %+v", ev)
	}

	if w := do(t, h, "POST", "/api/events", `{"title":"no date"}`); w.Code != http.StatusNoContent {
		t.Fatalf("dateless = %d", w.Code)
	}
	if w := do(t, h, "POST", "/api/events", `{"date":"2025-10-17","start":"7pm"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad clock = %d", w.Code)
	}
	if w := do(t, h, "POST", "/api/events", `{"date":"2025-10-17","start":"18:00","end":"09:00"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("end before start = %d", w.Code)
	}
	if w := do(t, h, "POST", "/api/events", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", w.Code)
	}

	day := decode[app.DayView](t, do(t, h, "GET", "/api/day?date=2025-10-17", ""))
	if len(day.Events) != 1 || day.Events[0].Title != "dinner" || day.Shabbat == "" {
		t.Fatalf("day = %+v", day)
	}
	if w := do(t, h, "GET", "/api/day?date=bad", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date = %d", w.Code)
	}

	ft := decode[app.FreeTimeView](t, do(t, h, "GET", "/api/freetime?date=2025-10-17", ""))
	if len(ft.Intervals) != 2 || ft.Intervals[0].End != "19:00" || ft.Intervals[1].Start != "21:00" {
		t.Fatalf("free time = %+v", ft)
	}

	res := decode[app.SearchResult](t, do(t, h, "GET", "/api/search?q=DIN", ""))
	if len(res.Hits) != 1 || res.Hits[0].Date != "2025-10-17" {
		t.Fatalf("search = %+v", res)
	}
}

func TestTasksAndWeather(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, "POST", "/api/events", `{"date":"2025-10-20","title":"pay rent","kind":"task"}`)

	tasks := decode[[]app.TaskItem](t, do(t, h, "GET", "/api/tasks", ""))
	if len(tasks) != 1 || tasks[0].Event.Title != "pay rent" {
		t.Fatalf("tasks = %+v", tasks)
	}
	wv := decode[app.WeatherView](t, do(t, h, "GET", "/api/weather", ""))
	if wv.Temperature != "--" {
		t.Fatalf("weather = %+v", wv)
	}
}

func TestCitiesAndTheme(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	cities := decode[[]model.City](t, do(t, h, "GET", "/api/cities?q=Haifa", ""))
	if len(cities) != 1 || cities[0].Name != "Haifa, Israel" || cities[0].TZID != "UTC" {
		t.Fatalf("cities = %+v", cities)
	}
	m := decode[app.MonthView](t, do(t, h, "POST", "/api/city", `{"name":"Haifa, Israel","lat":32.8,"lon":34.98,"tzid":"UTC"}`))
	if m.City != "Haifa, Israel" {
		t.Fatalf("city = %q", m.City)
	}
	if w := do(t, h, "POST", "/api/city", `{"name":"Null Island","lat":0,"lon":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unusable city = %d", w.Code)
	}

	if th := decode[themeBody](t, do(t, h, "GET", "/api/theme", "")); th.Theme != model.ThemeDark {
		t.Fatalf("theme = %s", th.Theme)
	}
	if th := decode[themeBody](t, do(t, h, "PUT", "/api/theme", `{"theme":"light"}`)); th.Theme != model.ThemeLight {
		t.Fatalf("theme = %s", th.Theme)
	}
}

func TestCalendarICS(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()
	do(t, h, "POST", "/api/events", `{"date":"2025-10-16","title":"dentist","start":"09:30","end":"10:00"}`)

	w := do(t, h, "GET", "/calendar.ics", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("ics = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.Contains(body, "SUMMARY:dentist") || !strings.Contains(body, "RRULE:FREQ=WEEKLY") {
		t.Fatalf("ics body = %s", body)
	}

	// A new event re-renders the app, which invalidates the cached export.
	do(t, h, "POST", "/api/events", `{"date":"2025-10-16","title":"plumber"}`)
	if body := do(t, h, "GET", "/calendar.ics", "").Body.String(); !strings.Contains(body, "SUMMARY:plumber") {
		t.Fatal("cached export was not invalidated")
	}
}

func TestBasicAuthPlain(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := newTestServer(t, cfg).Handler()

	if w := do(t, h, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/api/month", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no creds = %d", w.Code)
	}

	r := httptest.NewRequest("GET", "/api/month", nil)
	r.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("good creds = %d", w.Code)
	}
}

func TestBasicAuthBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: string(hash)}
	h := newTestServer(t, cfg).Handler()

	for _, c := range []struct {
		pass string
		want int
	}{{"hunter2", http.StatusOK}, {"hunter3", http.StatusUnauthorized}} {
		r := httptest.NewRequest("GET", "/calendar.ics", nil)
		r.SetBasicAuth("admin", c.pass)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != c.want {
			t.Errorf("password %q = %d, want %d", c.pass, w.Code, c.want)
		}
	}
}
