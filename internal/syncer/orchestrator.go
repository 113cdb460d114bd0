package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nivora/mailsync/internal/adapter"
	"github.com/nivora/mailsync/internal/database"
	"github.com/nivora/mailsync/internal/notify"
	"github.com/nivora/mailsync/internal/sink"
	"github.com/nivora/mailsync/pkg/crypto"
	"github.com/nivora/mailsync/pkg/models"
)

// A chunk gets one retry on a protocol error before it is skipped
const maxChunkAttempts = 2

// AdapterFactory builds the provider adapter for an account
type AdapterFactory interface {
	ForAccount(account *models.MailAccount) adapter.Adapter
}

// Orchestrator drives the per-account sync state machine: pending accounts
// are seeded, seeding and syncing accounts advance one backfill chunk per
// run, completed accounts get incremental checks.
type Orchestrator struct {
	db       *database.DB
	factory  AdapterFactory
	sink     sink.Sink
	vault    *crypto.Vault
	notifier notify.Notifier
	logger   *slog.Logger

	chunkSize    uint32
	fetchTimeout time.Duration

	// in-flight guard: at most one sync run per account at a time
	inFlight sync.Map
}

// OrchestratorDeps dependencies for creating an orchestrator
type OrchestratorDeps struct {
	DB           *database.DB
	Factory      AdapterFactory
	Sink         sink.Sink
	Vault        *crypto.Vault
	Notifier     notify.Notifier
	Logger       *slog.Logger
	ChunkSize    uint32
	FetchTimeout time.Duration
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		db:           deps.DB,
		factory:      deps.Factory,
		sink:         deps.Sink,
		vault:        deps.Vault,
		notifier:     deps.Notifier,
		logger:       deps.Logger.With("component", "syncer"),
		chunkSize:    deps.ChunkSize,
		fetchTimeout: deps.FetchTimeout,
	}
}

// SyncAccount runs one sync step for an account, routed by its status.
// A second call for the same account while one is in flight is a no-op.
func (o *Orchestrator) SyncAccount(ctx context.Context, account *models.MailAccount) error {
	if _, loaded := o.inFlight.LoadOrStore(account.ID, struct{}{}); loaded {
		o.logger.Debug("sync already in flight, skipping", "account_id", account.ID)
		return nil
	}
	defer o.inFlight.Delete(account.ID)

	if !account.Dispatchable() {
		return nil
	}

	var err error
	switch account.SyncStatus {
	case models.SyncStatusPending:
		err = o.startSeed(ctx, account)
	case models.SyncStatusSeeding, models.SyncStatusSyncing:
		err = o.continueSync(ctx, account)
	case models.SyncStatusCompleted:
		err = o.fetchNewMail(ctx, account)
	default:
		return fmt.Errorf("unknown sync status %q for account %d", account.SyncStatus, account.ID)
	}

	if err != nil {
		o.handleFailure(ctx, account, err)
		return err
	}
	return nil
}

// startSeed initializes the backfill cursor from the server's folder state
// and transitions the account to seeding
func (o *Orchestrator) startSeed(ctx context.Context, account *models.MailAccount) error {
	session, provider, err := o.connect(ctx, account)
	if err != nil {
		return err
	}
	defer session.Close()

	cursor := models.NewSyncCursor(adapter.SyncFolders())
	var folders []string
	for _, fc := range cursor.Folders {
		status, err := session.SelectFolder(ctx, provider.FolderName(fc.Name))
		if err != nil {
			// Non-inbox folders may not exist on this server
			if fc.Name == adapter.FolderInbox {
				return err
			}
			o.logger.Warn("folder unavailable, skipping",
				"account_id", account.ID, "folder", fc.Name, "error", err)
			fc.Done = true
			continue
		}
		seedFolder(fc, status)
		folders = append(folders, fc.Name)
	}

	if err := o.db.AdvanceSyncProgress(ctx, account.ID, models.SyncStatusSeeding, cursor, 0); err != nil {
		return err
	}
	account.SyncStatus = models.SyncStatusSeeding
	account.SyncCursor = cursor

	o.recordEvent(ctx, account.ID, models.EventSeedStarted, "", models.EventDetails{Folders: folders})
	o.logger.Info("seed started", "account_id", account.ID, "email", account.Email, "folders", folders)

	return o.advanceChunk(ctx, account, session, provider)
}

// continueSync advances the backfill by one chunk
func (o *Orchestrator) continueSync(ctx context.Context, account *models.MailAccount) error {
	if !account.SyncCursor.Initialized() {
		// Crashed before the cursor was persisted; start over
		return o.startSeed(ctx, account)
	}
	if account.SyncCursor.Exhausted() {
		return o.finishSeed(ctx, account)
	}

	session, provider, err := o.connect(ctx, account)
	if err != nil {
		return err
	}
	defer session.Close()

	return o.advanceChunk(ctx, account, session, provider)
}

// advanceChunk fetches the next chunk of the current folder and persists
// the moved cursor. Repeated protocol errors skip the chunk so one broken
// message range cannot stall the whole backfill.
func (o *Orchestrator) advanceChunk(ctx context.Context, account *models.MailAccount, session adapter.MailSession, provider adapter.Adapter) error {
	cursor := &account.SyncCursor
	fc := cursor.NextFolder()
	if fc == nil {
		return o.finishSeed(ctx, account)
	}

	c, ok := planChunk(fc, o.chunkSize)
	if !ok {
		fc.Done = true
		return o.persistProgress(ctx, account, 0)
	}

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	messages, err := session.FetchUIDRange(fetchCtx, provider.FolderName(fc.Name), c.Start, c.End)
	if err != nil {
		if adapter.KindOf(err) == adapter.KindProtocol {
			fc.Attempts++
			if fc.Attempts >= maxChunkAttempts {
				o.logger.Warn("skipping chunk after repeated protocol errors",
					"account_id", account.ID, "folder", fc.Name,
					"start", c.Start, "end", c.End, "error", err)
				o.recordEvent(ctx, account.ID, models.EventError, fc.Name, models.EventDetails{
					Offset: c.Start,
					Error:  fmt.Sprintf("chunk skipped: %v", err),
				})
				skipChunk(fc, c)
			}
			return o.persistProgress(ctx, account, 0)
		}
		return err
	}

	var highestUID uint32
	for _, msg := range messages {
		if err := o.sink.Store(ctx, account.ID, fc.Name, msg); err != nil {
			return fmt.Errorf("failed to sink message: %w", err)
		}
		if msg.UID > highestUID {
			highestUID = msg.UID
		}
	}

	completeChunk(fc, c, len(messages))

	if err := o.persistProgress(ctx, account, highestUID); err != nil {
		return err
	}

	o.recordEvent(ctx, account.ID, models.EventChunkCompleted, fc.Name, models.EventDetails{
		Offset:       c.Start,
		FetchedCount: len(messages),
		DurationMs:   time.Since(start).Milliseconds(),
	})
	o.logger.Info("chunk completed",
		"account_id", account.ID,
		"folder", fc.Name,
		"range", fmt.Sprintf("%d-%d", c.Start, c.End-1),
		"fetched", len(messages),
		"duration", time.Since(start).Round(time.Millisecond))

	if cursor.Exhausted() {
		return o.finishSeed(ctx, account)
	}
	return nil
}

// persistProgress stores the cursor and derived status. The account is
// seeding until the inbox is done, then syncing for the remaining folders.
func (o *Orchestrator) persistProgress(ctx context.Context, account *models.MailAccount, highestUID uint32) error {
	status := models.SyncStatusSeeding
	if inbox := account.SyncCursor.Folder(adapter.FolderInbox); inbox != nil && inbox.Done {
		status = models.SyncStatusSyncing
	}
	if err := o.db.AdvanceSyncProgress(ctx, account.ID, status, account.SyncCursor, highestUID); err != nil {
		return err
	}
	account.SyncStatus = status
	if highestUID > account.LastSyncedUID {
		account.LastSyncedUID = highestUID
	}
	return nil
}

// finishSeed transitions an exhausted backfill to completed
func (o *Orchestrator) finishSeed(ctx context.Context, account *models.MailAccount) error {
	account.SyncCursor.Phase = models.PhaseFull
	if err := o.db.MarkSyncCompleted(ctx, account.ID, account.SyncCursor); err != nil {
		return err
	}
	account.SyncStatus = models.SyncStatusCompleted

	_, overall := account.SyncCursor.Progress()
	var total int
	for _, fc := range account.SyncCursor.Folders {
		total += fc.Fetched
	}

	o.recordEvent(ctx, account.ID, models.EventSeedCompleted, "", models.EventDetails{FetchedCount: total})
	o.recordEvent(ctx, account.ID, models.EventSyncCompleted, "", models.EventDetails{FetchedCount: total})
	o.logger.Info("seed completed",
		"account_id", account.ID,
		"email", account.Email,
		"messages", total,
		"percent", overall)
	return nil
}

// fetchNewMail runs an incremental check on the priority folders of a
// completed account
func (o *Orchestrator) fetchNewMail(ctx context.Context, account *models.MailAccount) error {
	session, provider, err := o.connect(ctx, account)
	if err != nil {
		return err
	}
	defer session.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	start := time.Now()
	highestUID := account.LastSyncedUID
	var fetched int
	for _, folder := range adapter.PriorityFolders() {
		// UIDs are per folder; the account watermark tracks the inbox,
		// other folders resume from their highest stored UID
		afterUID := account.LastSyncedUID
		if folder != adapter.FolderInbox {
			afterUID, err = o.db.GetHighestStoredUID(ctx, account.ID, folder)
			if err != nil {
				return err
			}
		}

		messages, err := session.FetchSince(fetchCtx, provider.FolderName(folder), afterUID)
		if err != nil {
			// A folder the server does not have must not fail the run
			if folder != adapter.FolderInbox && adapter.KindOf(err) == adapter.KindProtocol {
				o.logger.Warn("folder unavailable during incremental sync",
					"account_id", account.ID, "folder", folder, "error", err)
				continue
			}
			return err
		}

		for _, msg := range messages {
			if err := o.sink.Store(ctx, account.ID, folder, msg); err != nil {
				return fmt.Errorf("failed to sink message: %w", err)
			}
			if folder == adapter.FolderInbox && msg.UID > highestUID {
				highestUID = msg.UID
			}
		}
		fetched += len(messages)

		if len(messages) > 0 {
			o.recordEvent(ctx, account.ID, models.EventIncrementalFetch, folder, models.EventDetails{
				FetchedCount: len(messages),
			})
		}
	}

	if err := o.db.TouchLastSync(ctx, account.ID, highestUID); err != nil {
		return err
	}
	account.LastSyncedUID = highestUID

	if fetched > 0 {
		o.logger.Info("incremental fetch",
			"account_id", account.ID, "email", account.Email, "fetched", fetched,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// VerifyAccount checks that the stored settings produce a working session.
// Missing hosts are autodiscovered from the email domain first.
func (o *Orchestrator) VerifyAccount(ctx context.Context, account *models.MailAccount) error {
	if account.IMAPHost == "" && !account.IsOAuth() {
		host, port, err := adapter.ResolveIMAPServer(account.Email)
		if err != nil {
			markErr := o.db.MarkUnverified(ctx, account.ID, err.Error())
			if markErr != nil {
				o.logger.Error("failed to mark account unverified", "error", markErr, "account_id", account.ID)
			}
			return err
		}
		account.IMAPHost = host
		account.IMAPPort = port
		if err := o.db.SetIMAPEndpoint(ctx, account.ID, host, port); err != nil {
			return err
		}
	}

	session, provider, err := o.connect(ctx, account)
	if err != nil {
		switch adapter.KindOf(err) {
		case adapter.KindAuth, adapter.KindConfig:
			if markErr := o.db.MarkUnverified(ctx, account.ID, err.Error()); markErr != nil {
				o.logger.Error("failed to mark account unverified", "error", markErr, "account_id", account.ID)
			}
		}
		return err
	}
	defer session.Close()

	if _, err := session.SelectFolder(ctx, provider.FolderName(adapter.FolderInbox)); err != nil {
		return err
	}

	if err := o.db.MarkVerified(ctx, account.ID); err != nil {
		return err
	}
	// A working session is proof of re-authentication; unpark the account
	if account.NeedsReauth {
		if err := o.db.ClearReauth(ctx, account.ID); err != nil {
			return err
		}
		account.NeedsReauth = false
		account.ConsecutiveFailures = 0
	}
	account.IsVerified = true
	o.logger.Info("account verified", "account_id", account.ID, "email", account.Email)
	return nil
}

// connect resolves credentials, refreshes OAuth tokens when close to expiry,
// and opens an IMAP session
func (o *Orchestrator) connect(ctx context.Context, account *models.MailAccount) (adapter.MailSession, adapter.Adapter, error) {
	provider := o.factory.ForAccount(account)

	creds, err := o.credentials(account)
	if err != nil {
		return nil, nil, adapter.NewError(adapter.KindConfig, "credentials", err)
	}

	update, err := provider.RefreshTokenIfNeeded(ctx, account, creds)
	if err != nil {
		return nil, nil, err
	}
	if update != nil {
		if err := o.persistTokens(ctx, account, update); err != nil {
			return nil, nil, err
		}
	}

	session, err := provider.Connect(ctx, account, creds)
	if err != nil {
		return nil, nil, err
	}
	return session, provider, nil
}

// credentials decrypts the account's stored secrets
func (o *Orchestrator) credentials(account *models.MailAccount) (*adapter.Credentials, error) {
	password, err := o.vault.Decrypt(account.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}
	accessToken, err := o.vault.Decrypt(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := o.vault.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &adapter.Credentials{
		Password:     password,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// persistTokens encrypts and stores refreshed OAuth credentials
func (o *Orchestrator) persistTokens(ctx context.Context, account *models.MailAccount, update *adapter.TokenUpdate) error {
	accessToken, err := o.vault.Encrypt(update.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := o.vault.Encrypt(update.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if err := o.db.UpdateTokens(ctx, account.ID, accessToken, refreshToken, update.ExpiresAt); err != nil {
		return err
	}

	account.AccessToken = accessToken
	account.RefreshToken = refreshToken
	account.TokenExpiresAt.Time = update.ExpiresAt
	account.TokenExpiresAt.Valid = true
	o.logger.Info("refreshed oauth tokens", "account_id", account.ID, "email", account.Email)
	return nil
}

// handleFailure classifies a sync error and updates account health.
// Auth failures park the account immediately and alert the operator once;
// configuration failures unverify it; connection and protocol failures
// count toward the consecutive-failure tally and are retried next tick.
func (o *Orchestrator) handleFailure(ctx context.Context, account *models.MailAccount, err error) {
	kind := adapter.KindOf(err)
	errText := err.Error()

	o.logger.Error("sync failed",
		"account_id", account.ID,
		"email", account.Email,
		"kind", kind.String(),
		"error", err)

	switch kind {
	case adapter.KindAuth:
		wasFlagged := account.NeedsReauth
		if dbErr := o.db.RecordSyncFailure(ctx, account.ID, errText, true); dbErr != nil {
			o.logger.Error("failed to record sync failure", "error", dbErr, "account_id", account.ID)
			return
		}
		account.NeedsReauth = true
		if !wasFlagged {
			o.notifier.ReauthRequired(ctx, account, errText)
		}
	case adapter.KindConfig:
		if dbErr := o.db.MarkUnverified(ctx, account.ID, errText); dbErr != nil {
			o.logger.Error("failed to mark account unverified", "error", dbErr, "account_id", account.ID)
			return
		}
		account.IsVerified = false
	default:
		if dbErr := o.db.RecordSyncFailure(ctx, account.ID, errText, false); dbErr != nil {
			o.logger.Error("failed to record sync failure", "error", dbErr, "account_id", account.ID)
			return
		}
	}
	account.ConsecutiveFailures++

	o.recordEvent(ctx, account.ID, models.EventError, "", models.EventDetails{
		Error: fmt.Sprintf("%s: %s", kind, errText),
	})
}

func (o *Orchestrator) recordEvent(ctx context.Context, accountID int64, kind models.EventKind, folder string, details models.EventDetails) {
	event := &models.SyncEvent{
		AccountID: accountID,
		Kind:      kind,
		Folder:    folder,
		Details:   details,
	}
	if err := o.db.CreateEvent(ctx, event); err != nil {
		o.logger.Error("failed to record sync event", "error", err, "account_id", accountID, "kind", kind)
	}
}
