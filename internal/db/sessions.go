package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/AMEND09/Razr/internal/session"
)

// ErrSessionNotFound is returned by DeleteSession when no row matches the id.
var ErrSessionNotFound = errors.New("session not found")

// SaveSession persists a finalized session. Implements session.Store.
func (db *DB) SaveSession(rec session.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session record has no id")
	}
	_, err := db.Exec(
		`INSERT INTO sessions (id, started_at, ended_at, duration_ms, segments, policy)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.Unix(),
		rec.EndedAt.Unix(),
		rec.Duration.Milliseconds(),
		rec.Segments,
		string(rec.Policy),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT id, started_at, ended_at, duration_ms, segments, policy
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SessionsInRange returns sessions whose start falls in [from, to),
// oldest first. Used for stats windows and daily rollups.
func (db *DB) SessionsInRange(from, to time.Time) ([]session.Record, error) {
	rows, err := db.Query(
		`SELECT id, started_at, ended_at, duration_ms, segments, policy
		 FROM sessions WHERE started_at >= ? AND started_at < ?
		 ORDER BY started_at ASC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// DeleteSession removes one session by id.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no session with id %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

type sessionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSessions(rows sessionRows) ([]session.Record, error) {
	var records []session.Record
	for rows.Next() {
		var (
			id         string
			startedAt  int64
			endedAt    int64
			durationMs int64
			segments   int
			policy     string
		)
		if err := rows.Scan(&id, &startedAt, &endedAt, &durationMs, &segments, &policy); err != nil {
			return nil, err
		}
		records = append(records, session.Record{
			ID:        id,
			StartedAt: time.Unix(startedAt, 0).UTC(),
			EndedAt:   time.Unix(endedAt, 0).UTC(),
			Duration:  time.Duration(durationMs) * time.Millisecond,
			Segments:  segments,
			Policy:    session.Policy(policy),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
