package models

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of an account's mailbox mirror
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"   // registered, no sync attempted
	SyncStatusSeeding   SyncStatus = "seeding"   // historical backfill in progress
	SyncStatusSyncing   SyncStatus = "syncing"   // backfill believed complete, tail unconfirmed
	SyncStatusCompleted SyncStatus = "completed" // steady state, incremental fetch only
)

// AuthType is how the account authenticates with the IMAP server
type AuthType string

const (
	AuthTypeBasic AuthType = "basic"
	AuthTypeOAuth AuthType = "oauth"
)

// TokenRefreshMargin is how long before expiry a token is considered stale
const TokenRefreshMargin = 5 * time.Minute

// MailAccount represents a connected mailbox and its persisted sync state
type MailAccount struct {
	ID       int64         `db:"id"`
	PublicID string        `db:"public_id"` // stable external identifier (uuid)
	UserID   int64         `db:"user_id"`
	TeamID   sql.NullInt64 `db:"team_id"`
	Name     string        `db:"name"`
	Email    string        `db:"email"`
	Provider string        `db:"provider"` // "gmail", "outlook", "custom"
	AuthType AuthType      `db:"auth_type"`

	// Connection facts
	IMAPHost       string       `db:"imap_host"`
	IMAPPort       int          `db:"imap_port"`
	IMAPEncryption string       `db:"imap_encryption"` // "ssl" or "starttls"
	Username       string       `db:"username"`
	Password       string       `db:"password"`      // encrypted at rest
	AccessToken    string       `db:"access_token"`  // encrypted at rest
	RefreshToken   string       `db:"refresh_token"` // encrypted at rest
	TokenExpiresAt sql.NullTime `db:"token_expires_at"`

	IsActive   bool `db:"is_active"`
	IsVerified bool `db:"is_verified"`

	// Sync progress
	SyncStatus    SyncStatus `db:"sync_status"`
	LastSyncedUID uint32     `db:"last_synced_uid"` // watermark, only moves forward
	SyncCursor    SyncCursor `db:"sync_cursor"`

	// Health
	ConsecutiveFailures int            `db:"consecutive_failures"`
	NeedsReauth         bool           `db:"needs_reauth"`
	LastError           sql.NullString `db:"last_error"`

	InitialSyncCompletedAt sql.NullTime `db:"initial_sync_completed_at"`
	LastSyncAt             sql.NullTime `db:"last_sync_at"`
	CreatedAt              time.Time    `db:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at"`
}

// IsOAuth reports whether the account authenticates via OAuth
func (a *MailAccount) IsOAuth() bool {
	return a.AuthType == AuthTypeOAuth
}

// NeedsTokenRefresh reports whether the access token is missing, expired,
// or expiring within the refresh margin
func (a *MailAccount) NeedsTokenRefresh() bool {
	if !a.IsOAuth() {
		return false
	}
	if !a.TokenExpiresAt.Valid {
		return true
	}
	return time.Now().After(a.TokenExpiresAt.Time.Add(-TokenRefreshMargin))
}

// Dispatchable reports whether automated sync may run for this account
func (a *MailAccount) Dispatchable() bool {
	return a.IsActive && a.IsVerified && !a.NeedsReauth
}

// ServerAddr returns the host:port address of the IMAP server
func (a *MailAccount) ServerAddr() string {
	if a.IMAPHost == "" {
		return ""
	}
	port := a.IMAPPort
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", a.IMAPHost, port)
}

// LoginName returns the IMAP login, falling back to the email address
func (a *MailAccount) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

// ProviderConfig holds default connection facts for a known provider
type ProviderConfig struct {
	Name           string
	IMAPHost       string
	IMAPPort       int
	IMAPEncryption string
	SupportsOAuth  bool
}

// Providers maps provider keys to their default configurations
var Providers = map[string]ProviderConfig{
	"gmail": {
		Name:           "Gmail",
		IMAPHost:       "imap.gmail.com",
		IMAPPort:       993,
		IMAPEncryption: "ssl",
		SupportsOAuth:  true,
	},
	"outlook": {
		Name:           "Outlook",
		IMAPHost:       "outlook.office365.com",
		IMAPPort:       993,
		IMAPEncryption: "ssl",
		SupportsOAuth:  true,
	},
	"custom": {
		Name: "Custom IMAP",
	},
}

// GetProviderConfig returns the provider defaults, falling back to custom
func (a *MailAccount) GetProviderConfig() ProviderConfig {
	if cfg, ok := Providers[a.Provider]; ok {
		return cfg
	}
	return Providers["custom"]
}
