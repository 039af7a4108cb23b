package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "bnappcal/internal/log"
	"bnappcal/internal/provider"
)

// Subscriptions fetches the configured feeds and expands them into overlays.
type Subscriptions struct {
	fetcher *provider.Fetcher
	sources []Source
}

// NewSubscriptions returns nil when there is nothing to subscribe to.
func NewSubscriptions(f *provider.Fetcher, sources []Source) *Subscriptions {
	if len(sources) == 0 {
		return nil
	}
	return &Subscriptions{fetcher: f, sources: append([]Source(nil), sources...)}
}

// Sources returns the configured feeds.
func (s *Subscriptions) Sources() []Source {
	if s == nil {
		return nil
	}
	return append([]Source(nil), s.sources...)
}

// Fetch downloads every feed and expands occurrences in [from, to] (whole
// days in loc). A failing feed is logged and left out; the error joins every
// per-feed failure. The overlays are nil only when every feed failed.
func (s *Subscriptions) Fetch(ctx context.Context, from, to time.Time, loc *time.Location) (Overlays, error) {
	if s == nil {
		return Overlays{}, nil
	}

	var (
		parsed []ParsedEvent
		errs   []error
		ok     int
	)
	for _, src := range s.sources {
		body, err := s.fetcher.Get(ctx, "ics:"+src.Name, src.URL)
		if err != nil {
			appLog.Error("ics fetch failed", err, "source", src.Name)
			errs = append(errs, fmt.Errorf("ics %s: %w", src.Name, err))
			continue
		}
		events, err := ParseICS(src, body)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics %s: %w", src.Name, err))
			continue
		}
		parsed = append(parsed, events...)
		ok++
	}

	if ok == 0 {
		return nil, errors.Join(errs...)
	}

	end := to.In(loc)
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	overlays, err := Expand(parsed, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      from.In(loc),
		RangeEnd:        end,
	})
	if err != nil {
		return nil, err
	}
	return overlays, errors.Join(errs...)
}
