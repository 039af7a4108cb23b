package app

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bnappcal/internal/dateutil"
	"bnappcal/internal/grid"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
	"bnappcal/internal/provider"
	"bnappcal/internal/schedule"
)

const (
	defaultTitle         = "ללא כותרת"
	defaultNotifyMinutes = 60
	wazeURL              = "https://waze.com/ul?q="

	firstHour = 6
	lastHour  = 23
)

// Search statuses.
const (
	StatusOK         = ""
	StatusEmptyQuery = "empty query"
	StatusNoResults  = "no results"
)

// MonthView is the header plus the 42 annotated cells.
type MonthView struct {
	Year      int         `json:"year"`
	Month     int         `json:"month"`
	Gregorian string      `json:"gregorian"`
	Hebrew    string      `json:"hebrew"`
	Today     string      `json:"today"`
	City      string      `json:"city"`
	Theme     model.Theme `json:"theme"`
	Cells     []grid.Cell `json:"cells"`
}

// Month renders the current view.
func (a *App) Month() MonthView {
	a.mu.RLock()
	st := a.st
	a.mu.RUnlock()

	today := a.today()
	m := grid.Build(st.year, st.month0, a.loc, grid.Sources{
		Today:    today,
		Events:   st.events,
		Overlays: st.overlays,
		Holidays: st.holidays,
		Shabbat:  st.shabbat,
		Weather:  st.weather,
		Hebrew:   st.hebrew,
	})

	first := grid.FirstOfMonth(st.year, st.month0, a.loc)
	view := MonthView{
		Year:      m.Year,
		Month:     m.Month,
		Gregorian: MonthLabel(first.Year(), first.Month()),
		Today:     DateLabel(today),
		City:      st.city.Name,
		Theme:     st.theme,
		Cells:     m.Cells,
	}
	if hd, ok := st.hebrew[dateutil.Key(first)]; ok {
		view.Hebrew = provider.HebrewMonthLabel(hd)
	}
	return view
}

// DayEvent is one row of the day view.
type DayEvent struct {
	model.Event
	OwnerLabel string `json:"ownerLabel"`
	KindLabel  string `json:"kindLabel"`
	Meta       string `json:"meta"`
	Waze       string `json:"waze,omitempty"`
}

// DayView is the per-day detail.
type DayView struct {
	Date      string     `json:"date"`
	Gregorian string     `json:"gregorian"`
	Hebrew    string     `json:"hebrew"`
	Holiday   string     `json:"holiday"`
	Shabbat   string     `json:"shabbat"`
	Unparsed  bool       `json:"shabbatUnparsed,omitempty"`
	Weather   string     `json:"weather"`
	Hours     []string   `json:"hours"`
	Events    []DayEvent `json:"events"`
}

// Day builds the detail view for key.
func (a *App) Day(key string) (DayView, error) {
	d, err := dateutil.ParseKey(key, a.loc)
	if err != nil {
		return DayView{}, ErrInvalidDate
	}

	a.mu.RLock()
	st := a.st
	a.mu.RUnlock()

	v := DayView{
		Date:      key,
		Gregorian: DateLabel(d),
		Hours:     make([]string, 0, lastHour-firstHour+1),
		Events:    []DayEvent{},
	}
	if hd, ok := st.hebrew[key]; ok {
		v.Hebrew = provider.HebrewMonthLabel(hd)
	}
	// The day view keeps weekly portions that the grid cell hides.
	if h, ok := st.holidays[key]; ok {
		v.Holiday = h.Title
	}

	sh := st.shabbat[key]
	switch grid.ShabbatMarker(dateutil.Weekday(d), sh) {
	case grid.MarkerCandle:
		v.Shabbat = "🕯 כניסת שבת: " + sh.Candle
	case grid.MarkerHavdalah:
		v.Shabbat = "✨ יציאת שבת: " + sh.Havdalah
	}
	v.Unparsed = sh.Unparsed

	for h := firstHour; h <= lastHour; h++ {
		v.Hours = append(v.Hours, dateutil.Pad2(h)+":00")
	}

	if w, ok := st.weather[key]; ok {
		code := w.Code
		v.Weather = fmt.Sprintf("%s  %d° / %d°", provider.Emoji(&code), grid.Round(w.TMax), grid.Round(w.TMin))
	}

	merged := append(a.sched.For(d), grid.UserEvents(st.events[key], st.overlays[key])...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartOr("00:00") < merged[j].StartOr("00:00")
	})
	for _, ev := range merged {
		v.Events = append(v.Events, dayEvent(ev))
	}
	return v, nil
}

func dayEvent(ev model.Event) DayEvent {
	out := DayEvent{
		Event:      ev,
		OwnerLabel: ev.Owner.Label(),
		KindLabel:  ev.Kind.Label(),
	}
	span := ev.StartOr("")
	if end := ev.EndOr(""); end != "" {
		span += "–" + end
	}
	out.Meta = out.OwnerLabel + " • " + out.KindLabel + " • " + span
	if addr := ev.AddressOr(""); addr != "" {
		out.Waze = wazeURL + url.QueryEscape(addr)
	}
	return out
}

// EventForm is the raw event form input.
type EventForm struct {
	Date          string `json:"date"`
	Title         string `json:"title"`
	Kind          string `json:"kind"`
	Owner         string `json:"owner"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Address       string `json:"address"`
	Notify        bool   `json:"notify"`
	NotifyMinutes string `json:"notifyMinutes"`
}

// AddEvent saves a new event from the form. A form without a date is
// silently dropped: it returns (nil, nil) and saves nothing.
func (a *App) AddEvent(ctx context.Context, f EventForm) (*model.Event, error) {
	key := strings.TrimSpace(f.Date)
	if key == "" {
		return nil, nil
	}
	if !dateutil.ValidKey(key) {
		return nil, ErrInvalidDate
	}

	ev := model.Event{
		Title:         strings.TrimSpace(f.Title),
		Kind:          model.ParseKind(f.Kind),
		Owner:         model.ParseOwner(f.Owner),
		Address:       model.Str(strings.TrimSpace(f.Address)),
		Notify:        f.Notify,
		NotifyMinutes: defaultNotifyMinutes,
	}
	if ev.Title == "" {
		ev.Title = defaultTitle
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f.NotifyMinutes)); err == nil {
		ev.NotifyMinutes = n
	}
	for _, c := range []struct {
		in  string
		out **string
	}{{f.Start, &ev.Start}, {f.End, &ev.End}} {
		if strings.TrimSpace(c.in) == "" {
			continue
		}
		norm, err := dateutil.NormalizeClock(c.in)
		if err != nil {
			return nil, err
		}
		*c.out = model.Str(norm)
	}
	// Normalized clocks compare as strings.
	if ev.Start != nil && ev.End != nil && *ev.End < *ev.Start {
		return nil, fmt.Errorf("%w: end %s before start %s", dateutil.ErrInvalidClock, *ev.End, *ev.Start)
	}

	saved, err := a.store.Append(ctx, key, ev)
	if err != nil {
		appLog.Error("append event failed", err, "date", key)
		return nil, err
	}
	appLog.Info("event added", "date", key, "id", saved.ID, "owner", string(saved.Owner))
	return &saved, nil
}

// FreeTimeView lists the open intervals of one day.
type FreeTimeView struct {
	Date      string              `json:"date"`
	Intervals []schedule.Interval `json:"intervals"`
}

// FreeTime computes the open intervals for key, or for today when key is empty.
func (a *App) FreeTime(key string) (FreeTimeView, error) {
	d := a.today()
	if key != "" {
		var err error
		if d, err = dateutil.ParseKey(key, a.loc); err != nil {
			return FreeTimeView{}, ErrInvalidDate
		}
	}
	key = dateutil.Key(d)

	a.mu.RLock()
	events := grid.UserEvents(a.st.events[key], a.st.overlays[key])
	a.mu.RUnlock()

	return FreeTimeView{Date: key, Intervals: a.sched.FreeTime(d, events)}, nil
}

// TaskItem is one task in the upcoming-tasks list.
type TaskItem struct {
	Date  string      `json:"date"`
	Label string      `json:"label"`
	Event model.Event `json:"event"`
}

// Tasks lists task-kind events from today through the same day next month.
func (a *App) Tasks() []TaskItem {
	a.mu.RLock()
	events := a.st.events
	a.mu.RUnlock()

	today := a.today()
	until := time.Date(today.Year(), today.Month()+1, today.Day(), 0, 0, 0, 0, a.loc)
	out := []TaskItem{}
	for d := today; !d.After(until); d = dateutil.AddDays(d, 1) {
		key := dateutil.Key(d)
		for _, ev := range events[key] {
			if ev.Kind == model.KindTask {
				out = append(out, TaskItem{Date: key, Label: DateLabel(d), Event: ev})
			}
		}
	}
	return out
}

// WeatherDay is one card of the daily strip.
type WeatherDay struct {
	Date   string `json:"date"`
	Letter string `json:"letter"`
	Emoji  string `json:"emoji"`
	TMax   int    `json:"tmax"`
	TMin   int    `json:"tmin"`
}

// WeatherView is the current conditions plus the daily strip.
type WeatherView struct {
	City        string       `json:"city"`
	Temperature string       `json:"temperature"`
	Emoji       string       `json:"emoji"`
	Days        []WeatherDay `json:"days"`
}

// Weather builds the weather panel.
func (a *App) Weather() WeatherView {
	a.mu.RLock()
	city, daily, cw := a.st.city, a.st.weather, a.st.current
	a.mu.RUnlock()

	v := WeatherView{City: city.Name, Temperature: "--", Emoji: provider.Emoji(nil), Days: []WeatherDay{}}
	if cw != nil {
		v.Temperature = fmt.Sprintf("%d°", grid.Round(cw.Temperature))
		v.Emoji = provider.Emoji(cw.WeatherCode)
	}

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d, err := dateutil.ParseKey(k, a.loc)
		if err != nil {
			continue
		}
		w := daily[k]
		code := w.Code
		v.Days = append(v.Days, WeatherDay{
			Date:   k,
			Letter: WeekdayLetter(d),
			Emoji:  provider.Emoji(&code),
			TMax:   grid.Round(w.TMax),
			TMin:   grid.Round(w.TMin),
		})
	}
	return v
}

// SearchHit deep-links to the month and day of a matching event.
type SearchHit struct {
	Date  string      `json:"date"`
	Year  int         `json:"year"`
	Month int         `json:"month"`
	Event model.Event `json:"event"`
}

// SearchResult is the search outcome.
type SearchResult struct {
	Status string      `json:"status"`
	Hits   []SearchHit `json:"hits"`
}

// Search matches titles case-insensitively over every stored event.
func (a *App) Search(q string) SearchResult {
	q = strings.TrimSpace(q)
	if q == "" {
		return SearchResult{Status: StatusEmptyQuery, Hits: []SearchHit{}}
	}

	a.mu.RLock()
	events := a.st.events
	a.mu.RUnlock()

	keys := make([]string, 0, len(events))
	for k := range events {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lower := strings.ToLower(q)
	res := SearchResult{Status: StatusOK, Hits: []SearchHit{}}
	for _, k := range keys {
		d, err := dateutil.ParseKey(k, a.loc)
		if err != nil {
			continue
		}
		for _, ev := range events[k] {
			if strings.Contains(strings.ToLower(ev.Title), lower) {
				res.Hits = append(res.Hits, SearchHit{Date: k, Year: d.Year(), Month: int(d.Month()), Event: ev})
			}
		}
	}
	if len(res.Hits) == 0 {
		res.Status = StatusNoResults
	}
	return res
}

// SearchCities queries the geocoder. An empty query does nothing.
func (a *App) SearchCities(ctx context.Context, q string) ([]model.City, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []model.City{}, nil
	}
	return a.prov.SearchCities(ctx, q, a.loc.String())
}

// City is the active city.
func (a *App) City() model.City {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.city
}

// SelectCity persists city, makes it active and refreshes.
func (a *App) SelectCity(ctx context.Context, city model.City) error {
	if !city.Usable() {
		return ErrUnusableCity
	}
	if err := a.store.SaveCity(ctx, city); err != nil {
		return err
	}
	a.mu.Lock()
	a.st.city = city
	a.mu.Unlock()
	appLog.Info("city selected", "city", city.Name)

	a.Refresh(ctx)
	return nil
}

// Theme is the persisted theme.
func (a *App) Theme() model.Theme {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.theme
}

// SetTheme persists t.
func (a *App) SetTheme(ctx context.Context, t model.Theme) error {
	if err := a.store.SaveTheme(ctx, t); err != nil {
		return err
	}
	a.mu.Lock()
	a.st.theme = t
	a.mu.Unlock()
	a.render()
	return nil
}

// Snapshot is the current event mirror, e.g. for export and reminders.
func (a *App) Snapshot() model.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.st.events
}

// Schedule is the auto-block generator in use.
func (a *App) Schedule() *schedule.Generator {
	return a.sched
}
