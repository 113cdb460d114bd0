package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Marker status values
const (
	MarkerRunning = "running"
)

// WorkerMarker is the liveness record the watchdog inspects: which process
// claims to be doing a named piece of work, and since when
type WorkerMarker struct {
	Name      string    `db:"name"`
	PID       int       `db:"pid"`
	Status    string    `db:"status"`
	StartedAt time.Time `db:"started_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetMarker returns the liveness marker for the named work, or ErrNotFound
func (db *DB) GetMarker(ctx context.Context, name string) (*WorkerMarker, error) {
	var marker WorkerMarker
	query := `SELECT * FROM worker_markers WHERE name = ?`
	err := db.GetContext(ctx, &marker, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get marker: %w", err)
	}
	return &marker, nil
}

// SetMarker records that the given process started the named work now
func (db *DB) SetMarker(ctx context.Context, name string, pid int) error {
	now := time.Now()
	query := `
		INSERT INTO worker_markers (name, pid, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET pid = excluded.pid, status = excluded.status,
			started_at = excluded.started_at, updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query, name, pid, MarkerRunning, now, now)
	if err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}

// ClearMarker removes the liveness marker after a terminal outcome
func (db *DB) ClearMarker(ctx context.Context, name string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM worker_markers WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to clear marker: %w", err)
	}
	return nil
}
