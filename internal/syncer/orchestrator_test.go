package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nivora/mailsync/internal/adapter"
	"github.com/nivora/mailsync/internal/database"
	"github.com/nivora/mailsync/internal/notify"
	"github.com/nivora/mailsync/internal/sink"
	"github.com/nivora/mailsync/pkg/crypto"
	"github.com/nivora/mailsync/pkg/models"
)

// fakeSession serves canned messages keyed by IMAP folder name
type fakeSession struct {
	folders  map[string]*adapter.FolderStatus
	messages map[string][]*models.Message
	fetchErr error
	block    chan struct{} // when set, FetchUIDRange waits until closed

	mu      sync.Mutex
	fetches int
	closed  bool
}

func (s *fakeSession) SelectFolder(ctx context.Context, folder string) (*adapter.FolderStatus, error) {
	status, ok := s.folders[folder]
	if !ok {
		return nil, adapter.NewError(adapter.KindProtocol, "select", fmt.Errorf("no such folder %q", folder))
	}
	return status, nil
}

func (s *fakeSession) FetchUIDRange(ctx context.Context, folder string, start, end uint32) ([]*models.Message, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []*models.Message
	for _, msg := range s.messages[folder] {
		if msg.UID >= start && msg.UID < end {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeSession) FetchSince(ctx context.Context, folder string, afterUID uint32) ([]*models.Message, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []*models.Message
	for _, msg := range s.messages[folder] {
		if msg.UID > afterUID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type fakeAdapter struct {
	session    *fakeSession
	connectErr error
	update     *adapter.TokenUpdate

	mu       sync.Mutex
	connects int
}

func (a *fakeAdapter) RefreshTokenIfNeeded(ctx context.Context, account *models.MailAccount, creds *adapter.Credentials) (*adapter.TokenUpdate, error) {
	return a.update, nil
}

func (a *fakeAdapter) Connect(ctx context.Context, account *models.MailAccount, creds *adapter.Credentials) (adapter.MailSession, error) {
	a.mu.Lock()
	a.connects++
	a.mu.Unlock()
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.session, nil
}

func (a *fakeAdapter) FolderName(folder string) string {
	switch folder {
	case adapter.FolderInbox:
		return "INBOX"
	case adapter.FolderSent:
		return "Sent"
	case adapter.FolderArchive:
		return "Archive"
	}
	return folder
}

type fakeFactory struct {
	adapter *fakeAdapter
}

func (f *fakeFactory) ForAccount(account *models.MailAccount) adapter.Adapter {
	return f.adapter
}

type fakeNotifier struct {
	mu      sync.Mutex
	reauths []int64
	zombies []string
}

func (n *fakeNotifier) ReauthRequired(ctx context.Context, account *models.MailAccount, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reauths = append(n.reauths, account.ID)
}

func (n *fakeNotifier) ZombieKilled(ctx context.Context, name string, pid int, age time.Duration, outcome notify.ReapOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.zombies = append(n.zombies, name)
}

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()
	v, err := crypto.NewVault([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

func testOrchestrator(t *testing.T, db *database.DB, fa *fakeAdapter) (*Orchestrator, *fakeNotifier) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	notifier := &fakeNotifier{}
	o := NewOrchestrator(OrchestratorDeps{
		DB:           db,
		Factory:      &fakeFactory{adapter: fa},
		Sink:         sink.NewStoreSink(db, logger),
		Vault:        testVault(t),
		Notifier:     notifier,
		Logger:       logger,
		ChunkSize:    100,
		FetchTimeout: 30 * time.Second,
	})
	return o, notifier
}

func testAccount(t *testing.T, db *database.DB) *models.MailAccount {
	t.Helper()
	vault := testVault(t)
	password, err := vault.Encrypt("app-password")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	account := &models.MailAccount{
		UserID:     1,
		Name:       "Work",
		Email:      "worker@example.com",
		Provider:   "custom",
		AuthType:   models.AuthTypeBasic,
		IMAPHost:   "mail.example.com",
		IMAPPort:   993,
		Username:   "worker@example.com",
		Password:   password,
		IsActive:   true,
		IsVerified: true,
	}
	if err := db.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

// inboxMessages builds n messages with UIDs 1..n
func inboxMessages(n int) []*models.Message {
	out := make([]*models.Message, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &models.Message{
			UID:       uint32(i),
			MessageID: fmt.Sprintf("<%d@example.com>", i),
			From:      models.Address{Name: "Sender", Email: "sender@example.com"},
			Subject:   fmt.Sprintf("message %d", i),
			BodyText:  "hello",
			Date:      time.Now().Add(-time.Duration(n-i) * time.Hour),
		})
	}
	return out
}

func inboxOnlySession(n int) *fakeSession {
	return &fakeSession{
		folders: map[string]*adapter.FolderStatus{
			"INBOX": {Name: "INBOX", Messages: uint32(n), UIDNext: uint32(n) + 1},
		},
		messages: map[string][]*models.Message{
			"INBOX": inboxMessages(n),
		},
	}
}

// runUntilSettled re-dispatches the account until it leaves the backfill
// states, mirroring what the dispatcher does every tick
func runUntilSettled(t *testing.T, o *Orchestrator, db *database.DB, id int64) *models.MailAccount {
	t.Helper()
	ctx := context.Background()
	var lastUID uint32
	for i := 0; i < 20; i++ {
		account, err := db.GetAccountByID(ctx, id)
		if err != nil {
			t.Fatalf("GetAccountByID: %v", err)
		}
		if account.LastSyncedUID < lastUID {
			t.Fatalf("watermark went backward: %d -> %d", lastUID, account.LastSyncedUID)
		}
		lastUID = account.LastSyncedUID
		if account.SyncStatus == models.SyncStatusCompleted {
			return account
		}
		if err := o.SyncAccount(ctx, account); err != nil {
			t.Fatalf("SyncAccount: %v", err)
		}
	}
	t.Fatal("account never reached completed")
	return nil
}

func TestBackfillLifecycle(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(250)
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := testAccount(t, db)

	final := runUntilSettled(t, o, db, account.ID)
	ctx := context.Background()

	if final.LastSyncedUID != 250 {
		t.Fatalf("last_synced_uid = %d, want 250", final.LastSyncedUID)
	}
	if !final.InitialSyncCompletedAt.Valid {
		t.Fatal("initial_sync_completed_at not set")
	}

	count, err := db.CountMessages(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 250 {
		t.Fatalf("stored %d messages, want 250", count)
	}

	events, err := db.GetRecentEvents(ctx, account.ID, 50)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}

	// Chronological order; the transition to completed records the seed
	// summary and then the sync completion
	var kinds []models.EventKind
	for i := len(events) - 1; i >= 0; i-- {
		kinds = append(kinds, events[i].Kind)
	}
	want := []models.EventKind{
		models.EventSeedStarted,
		models.EventChunkCompleted,
		models.EventChunkCompleted,
		models.EventChunkCompleted,
		models.EventSeedCompleted,
		models.EventSyncCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full sequence %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestBackfillResumesAcrossRestart(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(250)
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := testAccount(t, db)
	ctx := context.Background()

	// First run: seed plus the first chunk
	if err := o.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	mid, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if mid.SyncStatus == models.SyncStatusCompleted {
		t.Fatal("backfill finished in one run, cannot test resume")
	}
	if !mid.SyncCursor.Initialized() {
		t.Fatal("cursor not persisted after first run")
	}

	// A fresh orchestrator picks up from the stored cursor
	o2, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	final := runUntilSettled(t, o2, db, account.ID)
	if final.LastSyncedUID != 250 {
		t.Fatalf("last_synced_uid = %d, want 250", final.LastSyncedUID)
	}

	// Overlapping fetches must not duplicate rows
	count, err := db.CountMessages(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 250 {
		t.Fatalf("stored %d messages, want 250", count)
	}
}

func TestIncrementalFetchAdvancesWatermark(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(250)
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := testAccount(t, db)
	runUntilSettled(t, o, db, account.ID)
	ctx := context.Background()

	// Ten new messages arrive
	session.messages["INBOX"] = inboxMessages(260)
	session.folders["INBOX"].UIDNext = 261

	account, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if err := o.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.LastSyncedUID != 260 {
		t.Fatalf("last_synced_uid = %d, want 260", after.LastSyncedUID)
	}
	if !after.LastSyncAt.Valid {
		t.Fatal("last_sync_at not set")
	}

	count, err := db.CountMessages(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 260 {
		t.Fatalf("stored %d messages, want 260", count)
	}

	// Incremental runs record incremental_fetch; sync_completed marks only
	// the backfill transition
	events, err := db.GetRecentEvents(ctx, account.ID, 50)
	if err != nil {
		t.Fatalf("GetRecentEvents: %v", err)
	}
	var incremental, syncCompleted int
	for _, e := range events {
		switch e.Kind {
		case models.EventIncrementalFetch:
			incremental++
		case models.EventSyncCompleted:
			syncCompleted++
		}
	}
	if incremental != 1 {
		t.Fatalf("incremental_fetch events = %d, want 1", incremental)
	}
	if syncCompleted != 1 {
		t.Fatalf("sync_completed events = %d, want 1 (backfill only)", syncCompleted)
	}
}

func TestAuthFailureParksAccountAndNotifiesOnce(t *testing.T) {
	db := testDB(t)
	fa := &fakeAdapter{
		connectErr: adapter.NewError(adapter.KindAuth, "login", errors.New("invalid credentials")),
	}
	o, notifier := testOrchestrator(t, db, fa)
	account := testAccount(t, db)
	ctx := context.Background()

	if err := o.SyncAccount(ctx, account); err == nil {
		t.Fatal("expected auth error")
	}

	parked, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if !parked.NeedsReauth {
		t.Fatal("needs_reauth not set after auth failure")
	}
	if parked.ConsecutiveFailures != 1 {
		t.Fatalf("consecutive_failures = %d, want 1", parked.ConsecutiveFailures)
	}
	if len(notifier.reauths) != 1 {
		t.Fatalf("reauth notifications = %d, want 1", len(notifier.reauths))
	}

	// A parked account is no longer dispatched and must not re-notify
	if err := o.SyncAccount(ctx, parked); err != nil {
		t.Fatalf("SyncAccount on parked account: %v", err)
	}
	if len(notifier.reauths) != 1 {
		t.Fatalf("reauth notifications = %d, want 1 after repeat", len(notifier.reauths))
	}

	accounts, err := db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("parked account still selected for sync: %d accounts", len(accounts))
	}
}

func TestConnectionFailureKeepsAccountDispatchable(t *testing.T) {
	db := testDB(t)
	fa := &fakeAdapter{
		connectErr: adapter.NewError(adapter.KindConnection, "dial", errors.New("connection refused")),
	}
	o, notifier := testOrchestrator(t, db, fa)
	account := testAccount(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		account, err := db.GetAccountByID(ctx, account.ID)
		if err != nil {
			t.Fatalf("GetAccountByID: %v", err)
		}
		if err := o.SyncAccount(ctx, account); err == nil {
			t.Fatal("expected connection error")
		}
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.NeedsReauth {
		t.Fatal("connection failures must not flag reauth")
	}
	if after.ConsecutiveFailures != 3 {
		t.Fatalf("consecutive_failures = %d, want 3", after.ConsecutiveFailures)
	}
	if len(notifier.reauths) != 0 {
		t.Fatalf("unexpected reauth notifications: %d", len(notifier.reauths))
	}

	accounts, err := db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("account no longer dispatchable after transient failures: %d accounts", len(accounts))
	}
}

func TestConfigFailureUnverifiesAccount(t *testing.T) {
	db := testDB(t)
	fa := &fakeAdapter{
		connectErr: adapter.NewError(adapter.KindConfig, "connect", errors.New("account has no IMAP host")),
	}
	o, _ := testOrchestrator(t, db, fa)
	account := testAccount(t, db)
	ctx := context.Background()

	if err := o.SyncAccount(ctx, account); err == nil {
		t.Fatal("expected configuration error")
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.IsVerified {
		t.Fatal("account still verified after configuration failure")
	}

	accounts, err := db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("unverified account still selected: %d accounts", len(accounts))
	}
}

func TestProtocolErrorRetriesThenSkipsChunk(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(250)
	session.fetchErr = adapter.NewError(adapter.KindProtocol, "fetch", errors.New("parse error"))
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := testAccount(t, db)
	ctx := context.Background()

	// First run records the attempt, second skips the chunk
	for i := 0; i < 2; i++ {
		account, err := db.GetAccountByID(ctx, account.ID)
		if err != nil {
			t.Fatalf("GetAccountByID: %v", err)
		}
		if err := o.SyncAccount(ctx, account); err != nil {
			t.Fatalf("SyncAccount: %v", err)
		}
	}

	events, err := db.GetErrorEvents(ctx, account.ID, 10)
	if err != nil {
		t.Fatalf("GetErrorEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("error events = %d, want 1 skip record", len(events))
	}

	// Server recovers; the rest of the backfill completes minus the
	// skipped range 151-250
	session.fetchErr = nil
	final := runUntilSettled(t, o, db, account.ID)
	if final.SyncStatus != models.SyncStatusCompleted {
		t.Fatalf("status = %s, want completed", final.SyncStatus)
	}

	count, err := db.CountMessages(ctx, account.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 150 {
		t.Fatalf("stored %d messages, want 150 after skipping one chunk", count)
	}
}

func TestSyncAccountSkipsWhenInFlight(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(50)
	session.block = make(chan struct{})
	fa := &fakeAdapter{session: session}
	o, _ := testOrchestrator(t, db, fa)
	account := testAccount(t, db)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- o.SyncAccount(ctx, account)
	}()

	// Wait for the first run to reach the blocking fetch
	deadline := time.After(2 * time.Second)
	for {
		fa.mu.Lock()
		connected := fa.connects > 0
		fa.mu.Unlock()
		if connected {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sync never connected")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Second dispatch of the same account is a no-op
	if err := o.SyncAccount(ctx, account); err != nil {
		t.Fatalf("overlapping SyncAccount: %v", err)
	}
	fa.mu.Lock()
	connects := fa.connects
	fa.mu.Unlock()
	if connects != 1 {
		t.Fatalf("connects = %d, want 1 while a run is in flight", connects)
	}

	close(session.block)
	if err := <-done; err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
}

// unverifiedAccount is testAccount before its first successful login
func unverifiedAccount(t *testing.T, db *database.DB) *models.MailAccount {
	t.Helper()
	vault := testVault(t)
	password, err := vault.Encrypt("app-password")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	account := &models.MailAccount{
		UserID:   1,
		Name:     "Work",
		Email:    "worker@example.com",
		Provider: "custom",
		AuthType: models.AuthTypeBasic,
		IMAPHost: "mail.example.com",
		IMAPPort: 993,
		Username: "worker@example.com",
		Password: password,
		IsActive: true,
	}
	if err := db.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

func TestDispatcherVerifiesNewAccounts(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(10)
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := unverifiedAccount(t, db)
	ctx := context.Background()

	// Fresh accounts are invisible to the sync selection until verified
	accounts, err := db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("unverified account already selected: %d accounts", len(accounts))
	}

	d := NewDispatcher(db, o, time.Minute, time.Minute, slog.New(slog.DiscardHandler))
	d.verifyPending(ctx)

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if !after.IsVerified {
		t.Fatal("account not verified by the dispatcher pass")
	}

	accounts, err = db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != account.ID {
		t.Fatalf("verified account not selected for sync: %d accounts", len(accounts))
	}
}

func TestVerifyAccountFailureKeepsAccountUnverified(t *testing.T) {
	db := testDB(t)
	fa := &fakeAdapter{
		connectErr: adapter.NewError(adapter.KindAuth, "login", errors.New("invalid credentials")),
	}
	o, _ := testOrchestrator(t, db, fa)
	account := unverifiedAccount(t, db)
	ctx := context.Background()

	if err := o.VerifyAccount(ctx, account); err == nil {
		t.Fatal("expected verification to fail")
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.IsVerified {
		t.Fatal("account verified despite login failure")
	}
	if !after.LastError.Valid {
		t.Fatal("verification failure not recorded")
	}
}

func TestVerifyAccountClearsReauth(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(10)
	o, _ := testOrchestrator(t, db, &fakeAdapter{session: session})
	account := testAccount(t, db)
	ctx := context.Background()

	if err := db.RecordSyncFailure(ctx, account.ID, "invalid credentials", true); err != nil {
		t.Fatalf("RecordSyncFailure: %v", err)
	}

	// Operator re-entered credentials; a successful verification unparks
	// the account
	parked, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if err := o.VerifyAccount(ctx, parked); err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.NeedsReauth {
		t.Fatal("needs_reauth still set after successful verification")
	}
	if after.ConsecutiveFailures != 0 {
		t.Fatalf("consecutive_failures = %d, want 0", after.ConsecutiveFailures)
	}

	accounts, err := db.GetAccountsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("GetAccountsNeedingSync: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("unparked account not selected for sync: %d accounts", len(accounts))
	}
}

func TestTokenRefreshIsPersistedEncrypted(t *testing.T) {
	db := testDB(t)
	session := inboxOnlySession(10)
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	fa := &fakeAdapter{
		session: session,
		update: &adapter.TokenUpdate{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    expiry,
		},
	}
	o, _ := testOrchestrator(t, db, fa)
	account := testAccount(t, db)
	ctx := context.Background()

	if err := o.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	after, err := db.GetAccountByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if after.AccessToken == "new-access" {
		t.Fatal("access token stored in plaintext")
	}

	vault := testVault(t)
	access, err := vault.Decrypt(after.AccessToken)
	if err != nil {
		t.Fatalf("Decrypt access token: %v", err)
	}
	if access != "new-access" {
		t.Fatalf("access token = %q, want new-access", access)
	}
	refresh, err := vault.Decrypt(after.RefreshToken)
	if err != nil {
		t.Fatalf("Decrypt refresh token: %v", err)
	}
	if refresh != "new-refresh" {
		t.Fatalf("refresh token = %q, want new-refresh", refresh)
	}
	if !after.TokenExpiresAt.Valid {
		t.Fatal("token_expires_at not set")
	}
}
