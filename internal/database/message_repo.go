package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nivora/mailsync/pkg/models"
)

// CreateMessage stores an ingested message (ignores if already exists).
// The UNIQUE(account_id, folder, uid) constraint makes re-delivery of the
// same UID a no-op, which keeps the sink idempotent.
func (db *DB) CreateMessage(ctx context.Context, msg *models.StoredMessage) error {
	query := `
		INSERT OR IGNORE INTO messages (account_id, folder, uid, message_id, from_addr, from_name,
			subject, preview, body_text, body_html, is_read, is_starred, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		msg.AccountID,
		msg.Folder,
		msg.UID,
		msg.MessageID,
		msg.FromAddr,
		msg.FromName,
		msg.Subject,
		msg.Preview,
		msg.BodyText,
		msg.BodyHTML,
		msg.IsRead,
		msg.IsStarred,
		msg.ReceivedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// CountMessages returns the number of stored messages for an account
func (db *DB) CountMessages(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM messages WHERE account_id = ?`
	if err := db.GetContext(ctx, &count, query, accountID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetHighestStoredUID returns the highest ingested UID for a folder, 0 if none
func (db *DB) GetHighestStoredUID(ctx context.Context, accountID int64, folder string) (uint32, error) {
	var uid uint32
	query := `SELECT COALESCE(MAX(uid), 0) FROM messages WHERE account_id = ? AND folder = ?`
	if err := db.GetContext(ctx, &uid, query, accountID, folder); err != nil {
		return 0, fmt.Errorf("failed to get highest stored uid: %w", err)
	}
	return uid, nil
}
