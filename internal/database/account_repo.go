package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nivora/mailsync/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// CreateAccount creates a new mail account
func (db *DB) CreateAccount(ctx context.Context, account *models.MailAccount) error {
	if account.PublicID == "" {
		account.PublicID = uuid.NewString()
	}
	if account.SyncStatus == "" {
		account.SyncStatus = models.SyncStatusPending
	}

	query := `
		INSERT INTO mail_accounts (public_id, user_id, team_id, name, email, provider, auth_type,
			imap_host, imap_port, imap_encryption, username, password, access_token, refresh_token,
			token_expires_at, is_active, is_verified, sync_status, last_synced_uid, sync_cursor,
			consecutive_failures, needs_reauth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.PublicID,
		account.UserID,
		account.TeamID,
		account.Name,
		account.Email,
		account.Provider,
		account.AuthType,
		account.IMAPHost,
		account.IMAPPort,
		account.IMAPEncryption,
		account.Username,
		account.Password,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.IsActive,
		account.IsVerified,
		account.SyncStatus,
		account.LastSyncedUID,
		account.SyncCursor,
		account.ConsecutiveFailures,
		account.NeedsReauth,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.MailAccount, error) {
	var account models.MailAccount
	query := `SELECT * FROM mail_accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountByPublicID returns an account by its stable external id
func (db *DB) GetAccountByPublicID(ctx context.Context, publicID string) (*models.MailAccount, error) {
	var account models.MailAccount
	query := `SELECT * FROM mail_accounts WHERE public_id = ?`
	err := db.GetContext(ctx, &account, query, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountsNeedingSync returns dispatchable accounts still in backfill:
// pending, seeding, or syncing. Accounts flagged needs_reauth are excluded.
func (db *DB) GetAccountsNeedingSync(ctx context.Context) ([]*models.MailAccount, error) {
	var accounts []*models.MailAccount
	query := `
		SELECT * FROM mail_accounts
		WHERE is_active = true AND is_verified = true AND needs_reauth = false
		  AND sync_status IN ('pending', 'seeding', 'syncing')
		ORDER BY id
	`
	err := db.SelectContext(ctx, &accounts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts needing sync: %w", err)
	}
	return accounts, nil
}

// GetUnverifiedAccounts returns active accounts awaiting verification.
// They are excluded from sync dispatch until a connection check passes.
func (db *DB) GetUnverifiedAccounts(ctx context.Context) ([]*models.MailAccount, error) {
	var accounts []*models.MailAccount
	query := `
		SELECT * FROM mail_accounts
		WHERE is_active = true AND is_verified = false AND needs_reauth = false
		ORDER BY id
	`
	err := db.SelectContext(ctx, &accounts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get unverified accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountsForIncrementalSync returns dispatchable completed accounts whose
// last check is older than the given interval
func (db *DB) GetAccountsForIncrementalSync(ctx context.Context, interval time.Duration) ([]*models.MailAccount, error) {
	var accounts []*models.MailAccount
	cutoff := time.Now().Add(-interval)
	query := `
		SELECT * FROM mail_accounts
		WHERE is_active = true AND is_verified = true AND needs_reauth = false
		  AND sync_status = 'completed'
		  AND (last_sync_at IS NULL OR last_sync_at <= ?)
		ORDER BY id
	`
	err := db.SelectContext(ctx, &accounts, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts for incremental sync: %w", err)
	}
	return accounts, nil
}

// AdvanceSyncProgress persists a chunk's outcome in one statement: status,
// cursor, and watermark. The MAX() keeps the watermark monotonic; only
// ResetSync may lower it.
func (db *DB) AdvanceSyncProgress(ctx context.Context, id int64, status models.SyncStatus, cursor models.SyncCursor, highestUID uint32) error {
	query := `
		UPDATE mail_accounts
		SET sync_status = ?,
		    sync_cursor = ?,
		    last_synced_uid = MAX(last_synced_uid, ?),
		    consecutive_failures = 0,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, status, cursor, highestUID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to advance sync progress: %w", err)
	}
	return nil
}

// MarkSyncCompleted transitions an account to completed and records the
// initial sync completion time
func (db *DB) MarkSyncCompleted(ctx context.Context, id int64, cursor models.SyncCursor) error {
	now := time.Now()
	query := `
		UPDATE mail_accounts
		SET sync_status = 'completed',
		    sync_cursor = ?,
		    initial_sync_completed_at = COALESCE(initial_sync_completed_at, ?),
		    last_sync_at = ?,
		    consecutive_failures = 0,
		    needs_reauth = false,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, cursor, now, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync completed: %w", err)
	}
	return nil
}

// RecordSyncFailure increments the consecutive-failure counter and stores the
// last error. When reauth is true the account is frozen until re-authenticated.
func (db *DB) RecordSyncFailure(ctx context.Context, id int64, errText string, reauth bool) error {
	query := `
		UPDATE mail_accounts
		SET consecutive_failures = consecutive_failures + 1,
		    last_error = ?,
		    needs_reauth = needs_reauth OR ?,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, errText, reauth, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	return nil
}

// MarkUnverified excludes an account from dispatch until its settings are
// corrected and it is re-verified
func (db *DB) MarkUnverified(ctx context.Context, id int64, errText string) error {
	query := `
		UPDATE mail_accounts
		SET is_verified = false,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, errText, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark account unverified: %w", err)
	}
	return nil
}

// MarkVerified clears a previous verification failure
func (db *DB) MarkVerified(ctx context.Context, id int64) error {
	query := `
		UPDATE mail_accounts
		SET is_verified = true,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}
	return nil
}

// SetIMAPEndpoint stores an autodiscovered server address
func (db *DB) SetIMAPEndpoint(ctx context.Context, id int64, host string, port int) error {
	query := `UPDATE mail_accounts SET imap_host = ?, imap_port = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, host, port, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set imap endpoint: %w", err)
	}
	return nil
}

// ClearReauth unparks an account after a successful re-authentication.
// This is the recovery path for basic-auth accounts, where there are no
// tokens to refresh.
func (db *DB) ClearReauth(ctx context.Context, id int64) error {
	query := `
		UPDATE mail_accounts
		SET needs_reauth = false,
		    consecutive_failures = 0,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to clear reauth: %w", err)
	}
	return nil
}

// UpdateTokens stores refreshed OAuth credentials and clears the reauth flag
func (db *DB) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE mail_accounts
		SET access_token = ?,
		    refresh_token = ?,
		    token_expires_at = ?,
		    consecutive_failures = 0,
		    needs_reauth = false,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// TouchLastSync records an incremental check time, even when no mail was found
func (db *DB) TouchLastSync(ctx context.Context, id int64, highestUID uint32) error {
	query := `
		UPDATE mail_accounts
		SET last_sync_at = ?,
		    last_synced_uid = MAX(last_synced_uid, ?),
		    consecutive_failures = 0,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, now, highestUID, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch last sync: %w", err)
	}
	return nil
}

// ResetSync is the administrative reset: back to pending with an empty
// cursor and a zero watermark. This is the only path that lowers the
// watermark.
func (db *DB) ResetSync(ctx context.Context, id int64) error {
	query := `
		UPDATE mail_accounts
		SET sync_status = 'pending',
		    sync_cursor = NULL,
		    last_synced_uid = 0,
		    consecutive_failures = 0,
		    needs_reauth = false,
		    last_error = NULL,
		    initial_sync_completed_at = NULL,
		    updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reset sync: %w", err)
	}
	return nil
}

// SetAccountActive sets the active status of an account
func (db *DB) SetAccountActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE mail_accounts SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return nil
}

// DeleteAccount deletes an account and its messages and events
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	query := `DELETE FROM mail_accounts WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
