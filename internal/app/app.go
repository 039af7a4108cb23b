// Package app holds the single application state and the view controllers
// that read and mutate it.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bnappcal/internal/dateutil"
	"bnappcal/internal/grid"
	"bnappcal/internal/ics"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
	"bnappcal/internal/provider"
	"bnappcal/internal/schedule"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrUnusableCity = errors.New("city has no coordinates")
)

// EventStore is the persisted side: events plus the city/theme settings.
type EventStore interface {
	Append(ctx context.Context, key string, ev model.Event) (model.Event, error)
	Subscribe(ctx context.Context, fn func(model.Snapshot)) (func(), error)
	LoadCity(ctx context.Context) (model.City, bool, error)
	SaveCity(ctx context.Context, c model.City) error
	LoadTheme(ctx context.Context) (model.Theme, error)
	SaveTheme(ctx context.Context, t model.Theme) error
}

// Providers are the remote adapters. Each call returns a fresh mapping.
type Providers interface {
	Holidays(ctx context.Context, city model.City, year, month0 int) (map[string]model.HolidayEntry, error)
	Shabbat(ctx context.Context, city model.City, year, month0 int) (map[string]model.ShabbatEntry, error)
	HebrewDates(ctx context.Context, from, to time.Time) (map[string]model.HebrewDate, error)
	Weather(ctx context.Context, city model.City) (provider.Forecast, error)
	SearchCities(ctx context.Context, query, fallbackTZ string) ([]model.City, error)
}

// OverlaySource yields read-only events from subscribed calendars.
type OverlaySource interface {
	Fetch(ctx context.Context, from, to time.Time, loc *time.Location) (ics.Overlays, error)
}

// Options configures New. Zero values get defaults.
type Options struct {
	Location    *time.Location
	DefaultCity model.City
	Schedule    *schedule.Generator
	Overlays    OverlaySource
	Now         func() time.Time
}

// state is everything the views are computed from. Every mapping is
// replaced wholesale and never mutated after install.
type state struct {
	year   int
	month0 int
	city   model.City
	theme  model.Theme

	events   model.Snapshot
	overlays ics.Overlays
	holidays map[string]model.HolidayEntry
	shabbat  map[string]model.ShabbatEntry
	weather  map[string]model.WeatherEntry
	current  *model.CurrentWeather
	hebrew   map[string]model.HebrewDate

	// applied is the sequence number of the newest installed refresh.
	applied uint64
}

// App is the application state plus its controllers. Safe for concurrent use.
type App struct {
	store    EventStore
	prov     Providers
	overlays OverlaySource
	sched    *schedule.Generator
	loc      *time.Location
	now      func() time.Time

	seq atomic.Uint64

	mu sync.RWMutex
	st state

	hookMu  sync.Mutex
	hooks   []func(MonthView)
	renders atomic.Int64

	cancelSub func()
}

// New builds an App showing the current month. Call Start to load persisted
// state and fetch provider data.
func New(store EventStore, prov Providers, opts Options) *App {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Schedule == nil {
		opts.Schedule = schedule.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &App{
		store:    store,
		prov:     prov,
		overlays: opts.Overlays,
		sched:    opts.Schedule,
		loc:      opts.Location,
		now:      opts.Now,
	}
	today := a.today()
	a.st = state{
		year:   today.Year(),
		month0: int(today.Month()) - 1,
		city:   opts.DefaultCity,
		theme:  model.ThemeDark,
		events: model.Snapshot{},
	}
	return a
}

// Start restores the persisted city and theme, subscribes to the event store
// and runs the first refresh.
func (a *App) Start(ctx context.Context) error {
	if city, ok, err := a.store.LoadCity(ctx); err != nil {
		appLog.Error("load city failed", err)
	} else if ok {
		a.mu.Lock()
		a.st.city = city
		a.mu.Unlock()
	}
	if theme, err := a.store.LoadTheme(ctx); err != nil {
		appLog.Error("load theme failed", err)
	} else {
		a.mu.Lock()
		a.st.theme = theme
		a.mu.Unlock()
	}

	cancel, err := a.store.Subscribe(ctx, a.onSnapshot)
	if err != nil {
		return err
	}
	a.cancelSub = cancel

	a.Refresh(ctx)
	return nil
}

// Close drops the event store subscription.
func (a *App) Close() {
	if a.cancelSub != nil {
		a.cancelSub()
		a.cancelSub = nil
	}
}

// OnRender registers fn to receive every rendered month view.
func (a *App) OnRender(fn func(MonthView)) {
	a.hookMu.Lock()
	a.hooks = append(a.hooks, fn)
	a.hookMu.Unlock()
}

// Renders is the number of renders so far.
func (a *App) Renders() int64 {
	return a.renders.Load()
}

func (a *App) onSnapshot(snap model.Snapshot) {
	a.mu.Lock()
	a.st.events = snap
	a.mu.Unlock()
	a.render()
}

func (a *App) render() {
	a.renders.Add(1)
	a.hookMu.Lock()
	hooks := append(([]func(MonthView))(nil), a.hooks...)
	a.hookMu.Unlock()
	if len(hooks) == 0 {
		return
	}
	view := a.Month()
	for _, fn := range hooks {
		fn(view)
	}
}

func (a *App) today() time.Time {
	return dateutil.StartOfDay(a.now().In(a.loc))
}

// Location is the display time zone.
func (a *App) Location() *time.Location {
	return a.loc
}

// refreshResult collects one refresh; nil fields mean that adapter failed.
type refreshResult struct {
	holidays map[string]model.HolidayEntry
	shabbat  map[string]model.ShabbatEntry
	hebrew   map[string]model.HebrewDate
	forecast *provider.Forecast
	overlays ics.Overlays
}

// Refresh fetches holidays, Shabbat times, Hebrew dates, weather and the
// subscribed calendars concurrently, installs what succeeded and renders
// once. It reports false when a newer refresh was already installed and
// this result was discarded.
func (a *App) Refresh(ctx context.Context) bool {
	seq := a.seq.Add(1)

	a.mu.RLock()
	year, month0, city := a.st.year, a.st.month0, a.st.city
	a.mu.RUnlock()

	from, to := grid.Range(year, month0, a.loc)

	var (
		wg sync.WaitGroup
		r  refreshResult
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		if m, err := a.prov.Holidays(ctx, city, year, month0); err != nil {
			appLog.Error("holiday fetch failed", err, "city", city.Name, "year", year, "month", month0+1)
		} else {
			r.holidays = m
		}
	}()
	go func() {
		defer wg.Done()
		if m, err := a.prov.Shabbat(ctx, city, year, month0); err != nil {
			appLog.Error("shabbat fetch failed", err, "city", city.Name, "year", year, "month", month0+1)
		} else {
			r.shabbat = m
		}
	}()
	go func() {
		defer wg.Done()
		if m, err := a.prov.HebrewDates(ctx, from, to); err != nil {
			appLog.Error("hebrew date fetch failed", err, "from", dateutil.Key(from), "to", dateutil.Key(to))
		} else {
			r.hebrew = m
		}
	}()
	go func() {
		defer wg.Done()
		if f, err := a.prov.Weather(ctx, city); err != nil {
			appLog.Error("weather fetch failed", err, "city", city.Name)
		} else {
			r.forecast = &f
		}
	}()
	if a.overlays != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Partial results are still installed.
			o, err := a.overlays.Fetch(ctx, from, to, a.loc)
			if err != nil {
				appLog.Error("calendar overlay fetch failed", err, "partial", o != nil)
			}
			if o != nil {
				r.overlays = o
			}
		}()
	}
	wg.Wait()

	a.mu.Lock()
	if seq < a.st.applied {
		a.mu.Unlock()
		appLog.Debug("refresh superseded, discarding", "seq", seq)
		return false
	}
	a.st.applied = seq
	if r.holidays != nil {
		a.st.holidays = r.holidays
	}
	if r.shabbat != nil {
		a.st.shabbat = r.shabbat
	}
	if r.hebrew != nil {
		a.st.hebrew = r.hebrew
	}
	if r.forecast != nil {
		a.st.weather = r.forecast.Daily
		a.st.current = r.forecast.Current
	}
	if r.overlays != nil {
		a.st.overlays = r.overlays
	}
	a.mu.Unlock()

	appLog.Debug("refresh installed", "seq", seq, "year", year, "month", month0+1)
	a.render()
	return true
}

// Navigate moves the view by delta months and refreshes.
func (a *App) Navigate(ctx context.Context, delta int) MonthView {
	a.mu.Lock()
	first := grid.FirstOfMonth(a.st.year, a.st.month0+delta, a.loc)
	a.st.year, a.st.month0 = first.Year(), int(first.Month())-1
	a.mu.Unlock()

	a.Refresh(ctx)
	return a.Month()
}

// Today returns the view to the current month.
func (a *App) Today(ctx context.Context) MonthView {
	today := a.today()
	a.setMonth(ctx, today.Year(), int(today.Month())-1)
	return a.Month()
}

// JumpTo switches the view to the month of key and returns that day's view.
// It is the deep-link target of search and city results.
func (a *App) JumpTo(ctx context.Context, key string) (DayView, error) {
	d, err := dateutil.ParseKey(key, a.loc)
	if err != nil {
		return DayView{}, ErrInvalidDate
	}
	a.setMonth(ctx, d.Year(), int(d.Month())-1)
	return a.Day(key)
}

// setMonth refreshes only when the month actually changes; otherwise it
// re-renders what is already loaded.
func (a *App) setMonth(ctx context.Context, year, month0 int) {
	a.mu.Lock()
	changed := a.st.year != year || a.st.month0 != month0
	a.st.year, a.st.month0 = year, month0
	a.mu.Unlock()

	if changed {
		a.Refresh(ctx)
		return
	}
	a.render()
}
