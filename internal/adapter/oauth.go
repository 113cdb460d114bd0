package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/nivora/mailsync/pkg/models"
)

// Token endpoints for the supported OAuth providers
var oauthEndpoints = map[string]oauth2.Endpoint{
	"gmail": {
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	},
	"outlook": {
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	},
}

// OAuthAdapter connects with a bearer token over SASL XOAUTH2, refreshing
// the token through the provider's OAuth endpoint when it nears expiry
type OAuthAdapter struct {
	opts     Options
	provider string
	logger   *slog.Logger
}

func (a *OAuthAdapter) oauthConfig() (*oauth2.Config, error) {
	endpoint, ok := oauthEndpoints[a.provider]
	if !ok {
		return nil, NewError(KindConfig, "refresh", errors.New("provider does not support OAuth: "+a.provider))
	}

	cfg := &oauth2.Config{Endpoint: endpoint}
	switch a.provider {
	case "gmail":
		cfg.ClientID = a.opts.GoogleClientID
		cfg.ClientSecret = a.opts.GoogleClientSecret
	case "outlook":
		cfg.ClientID = a.opts.MicrosoftClientID
		cfg.ClientSecret = a.opts.MicrosoftClientSecret
	}
	if cfg.ClientID == "" {
		return nil, NewError(KindConfig, "refresh", errors.New("missing OAuth client credentials for "+a.provider))
	}
	return cfg, nil
}

// RefreshTokenIfNeeded exchanges the refresh token for a new access token
// when the stored one is missing or expiring within the safety margin.
// It must run before every connection attempt for OAuth accounts.
func (a *OAuthAdapter) RefreshTokenIfNeeded(ctx context.Context, account *models.MailAccount, creds *Credentials) (*TokenUpdate, error) {
	if !account.NeedsTokenRefresh() {
		return nil, nil
	}
	if creds.RefreshToken == "" {
		return nil, NewError(KindAuth, "refresh", errors.New("account has no refresh token"))
	}

	cfg, err := a.oauthConfig()
	if err != nil {
		return nil, err
	}

	a.logger.Info("refreshing OAuth token",
		"account", account.PublicID,
		"expires_at", account.TokenExpiresAt.Time)

	// Passing only the refresh token forces TokenSource to hit the
	// token endpoint instead of reusing the stale access token
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, NewError(KindAuth, "refresh", err)
	}

	update := &TokenUpdate{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	// Some providers omit the refresh token on renewal; keep the old one
	if update.RefreshToken == "" {
		update.RefreshToken = creds.RefreshToken
	}
	if update.ExpiresAt.IsZero() {
		update.ExpiresAt = time.Now().Add(time.Hour)
	}

	creds.AccessToken = update.AccessToken
	creds.RefreshToken = update.RefreshToken

	a.logger.Info("OAuth token refreshed", "account", account.PublicID, "new_expires_at", update.ExpiresAt)
	return update, nil
}

// Connect opens an authenticated session using the bearer token
func (a *OAuthAdapter) Connect(ctx context.Context, account *models.MailAccount, creds *Credentials) (MailSession, error) {
	if account.IMAPHost == "" {
		return nil, NewError(KindConfig, "connect", errors.New("account has no IMAP host"))
	}
	if creds.AccessToken == "" {
		return nil, NewError(KindAuth, "connect", errors.New("account has no access token"))
	}

	a.logger.Info("connecting to IMAP server", "server", account.ServerAddr(), "email", account.Email)
	saslClient := NewXOAuth2Client(account.LoginName(), creds.AccessToken)
	return saslSession(buildDialConfig(a.opts, account), saslClient, a.logger)
}

// FolderName maps a logical folder to the provider's IMAP name
func (a *OAuthAdapter) FolderName(folder string) string {
	return folderName(a.provider, folder)
}
