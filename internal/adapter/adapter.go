package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/nivora/mailsync/pkg/models"
)

// Credentials are the decrypted secrets for one connection attempt. The
// orchestrator resolves them through the credential vault; adapters never
// see values at rest.
type Credentials struct {
	Password     string
	AccessToken  string
	RefreshToken string
}

// TokenUpdate carries refreshed OAuth credentials back to the orchestrator
// for persistence. Adapters do not mutate account state themselves.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// MailSession is an open, authenticated connection to a mailbox
type MailSession interface {
	SelectFolder(ctx context.Context, folder string) (*FolderStatus, error)
	FetchUIDRange(ctx context.Context, folder string, start, end uint32) ([]*models.Message, error)
	FetchSince(ctx context.Context, folder string, afterUID uint32) ([]*models.Message, error)
	Close()
}

// Adapter hides provider differences behind a uniform contract: refresh
// credentials if needed, open a session, map logical folder names.
type Adapter interface {
	// RefreshTokenIfNeeded returns new tokens when a refresh happened,
	// nil when none was needed. Failure is an auth error.
	RefreshTokenIfNeeded(ctx context.Context, account *models.MailAccount, creds *Credentials) (*TokenUpdate, error)

	// Connect opens an authenticated IMAP session
	Connect(ctx context.Context, account *models.MailAccount, creds *Credentials) (MailSession, error)

	// FolderName maps a logical folder to the provider's IMAP name
	FolderName(folder string) string
}

// Options are the transport and OAuth settings shared by all adapters
type Options struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration

	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
}

// Factory builds the adapter variant for an account
type Factory struct {
	opts   Options
	logger *slog.Logger
}

// NewFactory creates an adapter factory
func NewFactory(opts Options, logger *slog.Logger) *Factory {
	return &Factory{opts: opts, logger: logger.With("component", "adapter")}
}

// ForAccount returns the adapter matching the account's auth type
func (f *Factory) ForAccount(account *models.MailAccount) Adapter {
	if account.IsOAuth() {
		return &OAuthAdapter{
			opts:     f.opts,
			provider: account.Provider,
			logger:   f.logger,
		}
	}
	return &BasicAdapter{
		opts:     f.opts,
		provider: account.Provider,
		logger:   f.logger,
	}
}

func buildDialConfig(opts Options, account *models.MailAccount) dialConfig {
	return dialConfig{
		addr:        account.ServerAddr(),
		encryption:  account.IMAPEncryption,
		dialTimeout: opts.DialTimeout,
		cmdTimeout:  opts.CommandTimeout,
	}
}
