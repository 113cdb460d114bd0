package adapter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nivora/mailsync/pkg/models"
)

// BasicAdapter connects with a username and password over IMAP LOGIN
type BasicAdapter struct {
	opts     Options
	provider string
	logger   *slog.Logger
}

// RefreshTokenIfNeeded is a no-op for password accounts
func (a *BasicAdapter) RefreshTokenIfNeeded(ctx context.Context, account *models.MailAccount, creds *Credentials) (*TokenUpdate, error) {
	return nil, nil
}

// Connect opens an authenticated session using the stored password
func (a *BasicAdapter) Connect(ctx context.Context, account *models.MailAccount, creds *Credentials) (MailSession, error) {
	if account.IMAPHost == "" {
		return nil, NewError(KindConfig, "connect", errors.New("account has no IMAP host"))
	}
	if creds.Password == "" {
		return nil, NewError(KindConfig, "connect", errors.New("account has no password"))
	}

	a.logger.Info("connecting to IMAP server", "server", account.ServerAddr(), "email", account.Email)
	return loginSession(buildDialConfig(a.opts, account), account.LoginName(), creds.Password, a.logger)
}

// FolderName maps a logical folder to the provider's IMAP name
func (a *BasicAdapter) FolderName(folder string) string {
	return folderName(a.provider, folder)
}
