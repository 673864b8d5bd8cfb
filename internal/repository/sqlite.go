// Package repository persists the per-turn usage ledger.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msf-usa/chatd/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	model TEXT NOT NULL,
	strategy TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL,
	stage_durations_ms TEXT NOT NULL,
	errors TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, started_at);
`

// Store is the sqlite-backed usage ledger.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and ensures the schema exists.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("sqlite3", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// In-memory databases vanish when their last connection closes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RecordTurn appends one turn to the ledger.
func (s *Store) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	durations := make(map[string]int64, len(rec.StageDurations))
	for stage, d := range rec.StageDurations {
		durations[stage] = d.Milliseconds()
	}
	durationsJSON, err := json.Marshal(durations)
	if err != nil {
		return fmt.Errorf("failed to marshal stage durations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (request_id, user_id, model, strategy, started_at, ended_at, stage_durations_ms, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.Model, string(rec.Strategy),
		rec.StartedAt, rec.EndedAt, string(durationsJSON), strings.Join(rec.Errors, "; "),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// RecentTurns returns the latest turns for a user, newest first.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, user_id, model, strategy, started_at, ended_at, stage_durations_ms, errors
		FROM turns WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var out []domain.TurnRecord
	for rows.Next() {
		var (
			rec           domain.TurnRecord
			strategy      string
			durationsJSON string
			errorsJoined  string
		)
		if err := rows.Scan(&rec.RequestID, &rec.UserID, &rec.Model, &strategy,
			&rec.StartedAt, &rec.EndedAt, &durationsJSON, &errorsJoined); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		rec.Strategy = domain.ExecutionStrategy(strategy)

		var durations map[string]int64
		if err := json.Unmarshal([]byte(durationsJSON), &durations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage durations: %w", err)
		}
		rec.StageDurations = make(map[string]time.Duration, len(durations))
		for stage, ms := range durations {
			rec.StageDurations[stage] = time.Duration(ms) * time.Millisecond
		}
		if errorsJoined != "" {
			rec.Errors = strings.Split(errorsJoined, "; ")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
