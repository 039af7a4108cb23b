package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

var (
	ErrInvalidDateKey = errors.New("invalid date key")
	ErrAutoEvent      = errors.New("auto events are generated, not stored")
)

const eventColumns = `id, date_key, title, kind, owner, start_time, end_time, address, notify, notify_minutes`

// Append stores ev under key after every event already stored for that
// date. An ID is generated when ev has none. Subscribers are notified with
// the full snapshot once the row is committed.
func (s *Store) Append(ctx context.Context, key string, ev model.Event) (model.Event, error) {
	if !dateutil.ValidKey(key) {
		return model.Event{}, fmt.Errorf("%w: %q", ErrInvalidDateKey, key)
	}
	if ev.Auto {
		return model.Event{}, ErrAutoEvent
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, key, ev.Title, string(ev.Kind), string(ev.Owner),
		nullString(ev.Start), nullString(ev.End), nullString(ev.Address),
		ev.Notify, ev.NotifyMinutes,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	appLog.Info("event appended", "date", key, "id", ev.ID, "kind", ev.Kind, "owner", ev.Owner)
	s.publish(ctx)
	return ev, nil
}

// Events lists the events stored for one date in insertion order.
func (s *Store) Events(ctx context.Context, key string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE date_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		_, ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Snapshot returns every stored event grouped by DateKey.
func (s *Store) Snapshot(ctx context.Context) (model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY date_key, seq`)
	if err != nil {
		return nil, fmt.Errorf("snapshot events: %w", err)
	}
	defer rows.Close()

	snap := make(model.Snapshot)
	for rows.Next() {
		key, ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		snap[key] = append(snap[key], ev)
	}
	return snap, rows.Err()
}

// Subscribe delivers the current snapshot to fn right away and again after
// every change. The returned func cancels the subscription.
func (s *Store) Subscribe(ctx context.Context, fn func(model.Snapshot)) (func(), error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	fn(snap)

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}, nil
}

func (s *Store) publish(ctx context.Context) {
	s.subMu.Lock()
	fns := make([]func(model.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	if len(fns) == 0 {
		return
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		appLog.Error("event snapshot for subscribers failed", err)
		return
	}
	for _, fn := range fns {
		fn(snap.Clone())
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (string, model.Event, error) {
	var (
		ev                  model.Event
		key, kind, owner    string
		start, end, address sql.NullString
	)
	if err := r.Scan(&ev.ID, &key, &ev.Title, &kind, &owner, &start, &end, &address, &ev.Notify, &ev.NotifyMinutes); err != nil {
		return "", model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = model.Kind(kind)
	ev.Owner = model.Owner(owner)
	ev.Start = fromNull(start)
	ev.End = fromNull(end)
	ev.Address = fromNull(address)
	return key, ev, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
