package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the guidance loop.
type Session struct {
	ID        string    `json:"id"`
	Preset    string    `json:"preset"`
	StartedAt time.Time `json:"started_at"`
	Records   int       `json:"records"`
}

// StartSession creates a session for the given preset and returns its ID.
func (db *DB) StartSession(preset string) (string, error) {
	return db.startSessionAt(preset, time.Now())
}

func (db *DB) startSessionAt(preset string, at time.Time) (string, error) {
	if preset == "" {
		return "", errors.New("preset name is required")
	}
	id := uuid.NewString()
	if _, err := db.Exec(
		`INSERT INTO sessions (session_id, preset, started_unix_nanos) VALUES (?, ?, ?)`,
		id, preset, at.UnixNano(),
	); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	opsf("session %s started (preset %s)", id, preset)
	return id, nil
}

// Sessions lists sessions newest first with their record counts.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.preset, s.started_unix_nanos, COUNT(t.session_id)
		FROM sessions s
		LEFT JOIN telemetry t ON t.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
		)
		if err := rows.Scan(&s.ID, &s.Preset, &started, &s.Records); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (Session, error) {
	sessions, err := db.Sessions()
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrNoSessions
	}
	return sessions[0], nil
}

// ErrNoSessions is returned by LatestSession on an empty database.
var ErrNoSessions = errors.New("no sessions recorded")
