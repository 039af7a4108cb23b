package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bnappcal/internal/app"
	"bnappcal/internal/config"
	"bnappcal/internal/dateutil"
	"bnappcal/internal/ics"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

const maxBodyBytes = 64 << 10

// Server exposes the view controllers as a JSON API plus the ICS export.
type Server struct {
	cfg *config.Config
	app *app.App
	mux *http.ServeMux
	now func() time.Time

	// The export is rebuilt only when the app re-rendered or the TTL passed.
	icsMu    sync.Mutex
	icsCache *icsCache
}

type icsCache struct {
	body      string
	renders   int64
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, a *app.App) *Server {
	s := &Server{
		cfg: cfg,
		app: a,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. An empty
// username or an empty password/hash disables it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	ba := s.cfg.BasicAuth
	return ba.Username != "" && (ba.Password != "" || ba.PasswordHash != "")
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	ba := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !checkPassword(ba, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="bnappcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkPassword(ba config.BasicAuthConfig, p string) bool {
	if ba.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(ba.PasswordHash), []byte(p)) == nil
	}
	return secureCompare(p, ba.Password)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/month", s.handleMonth)
	s.mux.HandleFunc("POST /api/view/{dir}", s.handleView)
	s.mux.HandleFunc("GET /api/day", s.handleDay)
	s.mux.HandleFunc("POST /api/events", s.handleAddEvent)
	s.mux.HandleFunc("GET /api/freetime", s.handleFreeTime)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /api/weather", s.handleWeather)
	s.mux.HandleFunc("GET /api/cities", s.handleCities)
	s.mux.HandleFunc("POST /api/city", s.handleSelectCity)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/theme", s.handleGetTheme)
	s.mux.HandleFunc("PUT /api/theme", s.handleSetTheme)

	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMonth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Month())
}

// handleView changes the visible month.
//
// POST /api/view/prev | next | today
// POST /api/view/jump?date=YYYY-MM-DD  (returns the day view)
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.PathValue("dir") {
	case "prev":
		writeJSON(w, http.StatusOK, s.app.Navigate(ctx, -1))
	case "next":
		writeJSON(w, http.StatusOK, s.app.Navigate(ctx, 1))
	case "today":
		writeJSON(w, http.StatusOK, s.app.Today(ctx))
	case "jump":
		day, err := s.app.JumpTo(ctx, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, day)
	default:
		writeError(w, http.StatusNotFound, "unknown view action")
	}
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := s.app.Day(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// handleAddEvent saves an event form. A form without a date is accepted and
// dropped (204), matching the form's silent abort.
func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var form app.EventForm
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := s.app.AddEvent(r.Context(), form)
	switch {
	case errors.Is(err, app.ErrInvalidDate), errors.Is(err, dateutil.ErrInvalidClock):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to save event")
	case ev == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusCreated, ev)
	}
}

func (s *Server) handleFreeTime(w http.ResponseWriter, r *http.Request) {
	ft, err := s.app.FreeTime(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ft)
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Tasks())
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Weather())
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.app.SearchCities(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "city search failed")
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleSelectCity(w http.ResponseWriter, r *http.Request) {
	var city model.City
	if err := decodeJSON(w, r, &city); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SelectCity(r.Context(), city); err != nil {
		if errors.Is(err, app.ErrUnusableCity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save city")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Month())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Search(r.URL.Query().Get("q")))
}

type themeBody struct {
	Theme model.Theme `json:"theme"`
}

func (s *Server) handleGetTheme(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, themeBody{Theme: s.app.Theme()})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body themeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t := model.ParseTheme(string(body.Theme))
	if err := s.app.SetTheme(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save theme")
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: t})
}

// handleICS serves the stored events and the weekly auto blocks as an
// iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	const icsCacheTTL = 30 * time.Second
	now := s.now()
	renders := s.app.Renders()

	s.icsMu.Lock()
	c := s.icsCache
	if c == nil || c.renders != renders || now.Sub(c.updatedAt) >= icsCacheTTL {
		body := ics.Export(s.app.Snapshot(), s.app.Schedule().Rules(), s.app.Location(), now)
		c = &icsCache{body: body, renders: renders, updatedAt: now}
		s.icsCache = c
	}
	s.icsMu.Unlock()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(c.body))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
