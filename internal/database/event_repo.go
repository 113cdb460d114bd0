package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nivora/mailsync/pkg/models"
)

// CreateEvent appends a sync event to the log
func (db *DB) CreateEvent(ctx context.Context, event *models.SyncEvent) error {
	query := `
		INSERT INTO sync_events (account_id, kind, folder, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		event.AccountID,
		event.Kind,
		event.Folder,
		event.Details,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	event.ID = id
	event.CreatedAt = now
	return nil
}

// GetRecentEvents returns the newest events for an account
func (db *DB) GetRecentEvents(ctx context.Context, accountID int64, limit int) ([]*models.SyncEvent, error) {
	var events []*models.SyncEvent
	query := `SELECT * FROM sync_events WHERE account_id = ? ORDER BY id DESC LIMIT ?`
	err := db.SelectContext(ctx, &events, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	return events, nil
}

// GetErrorEvents returns recent error events for an account
func (db *DB) GetErrorEvents(ctx context.Context, accountID int64, limit int) ([]*models.SyncEvent, error) {
	var events []*models.SyncEvent
	query := `SELECT * FROM sync_events WHERE account_id = ? AND kind = 'error' ORDER BY id DESC LIMIT ?`
	err := db.SelectContext(ctx, &events, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get error events: %w", err)
	}
	return events, nil
}

// PruneEventsBefore removes events older than the cutoff. Called by the
// housekeeping scheduler, not by the sync path.
func (db *DB) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM sync_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
