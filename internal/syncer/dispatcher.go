package syncer

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nivora/mailsync/internal/database"
)

// MarkerSyncWorker names the liveness marker the dispatcher maintains and
// the watchdog inspects
const MarkerSyncWorker = "sync_worker"

// Events older than this are pruned
const eventRetention = 30 * 24 * time.Hour

// Dispatcher periodically selects accounts and hands them to the
// orchestrator: backfill accounts on the dispatch interval, completed
// accounts on the incremental interval.
type Dispatcher struct {
	db           *database.DB
	orchestrator *Orchestrator
	logger       *slog.Logger

	dispatchInterval    time.Duration
	incrementalInterval time.Duration
}

// NewDispatcher creates a sync dispatcher
func NewDispatcher(db *database.DB, orchestrator *Orchestrator, dispatchInterval, incrementalInterval time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		db:                  db,
		orchestrator:        orchestrator,
		logger:              logger.With("component", "dispatcher"),
		dispatchInterval:    dispatchInterval,
		incrementalInterval: incrementalInterval,
	}
}

// Run drives the dispatch loop until the context is canceled. The liveness
// marker is claimed on entry, refreshed every pass, and cleared on the way
// out so the watchdog knows this work is no longer in flight.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.db.SetMarker(ctx, MarkerSyncWorker, os.Getpid()); err != nil {
		return err
	}
	defer func() {
		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.db.ClearMarker(clearCtx, MarkerSyncWorker); err != nil {
			d.logger.Error("failed to clear worker marker", "error", err)
		}
	}()

	d.logger.Info("dispatcher started",
		"dispatch_interval", d.dispatchInterval,
		"incremental_interval", d.incrementalInterval)

	// First pass immediately; tickers fire after one interval
	d.dispatchBackfill(ctx)
	d.dispatchIncremental(ctx)

	backfillTicker := time.NewTicker(d.dispatchInterval)
	defer backfillTicker.Stop()
	incrementalTicker := time.NewTicker(d.incrementalInterval)
	defer incrementalTicker.Stop()
	pruneTicker := time.NewTicker(24 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return nil
		case <-backfillTicker.C:
			d.dispatchBackfill(ctx)
		case <-incrementalTicker.C:
			d.dispatchIncremental(ctx)
		case <-pruneTicker.C:
			d.pruneEvents(ctx)
		}
	}
}

// verifyPending tries to verify accounts that have not yet proven their
// connection facts. Until a login succeeds an account is not dispatchable,
// so this pass is what moves newly registered accounts into the sync pool.
func (d *Dispatcher) verifyPending(ctx context.Context) {
	accounts, err := d.db.GetUnverifiedAccounts(ctx)
	if err != nil {
		d.logger.Error("failed to select unverified accounts", "error", err)
		return
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := d.orchestrator.VerifyAccount(ctx, account); err != nil {
			d.logger.Warn("account verification failed",
				"account_id", account.ID, "email", account.Email, "error", err)
		}
	}
}

// dispatchBackfill advances every account still working through its
// historical backfill
func (d *Dispatcher) dispatchBackfill(ctx context.Context) {
	if err := d.db.SetMarker(ctx, MarkerSyncWorker, os.Getpid()); err != nil {
		d.logger.Error("failed to refresh worker marker", "error", err)
	}

	// New accounts must pass verification before the selection below
	// will consider them
	d.verifyPending(ctx)

	accounts, err := d.db.GetAccountsNeedingSync(ctx)
	if err != nil {
		d.logger.Error("failed to select accounts for backfill", "error", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	d.logger.Debug("dispatching backfill", "accounts", len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		// Failures are already classified and recorded per account
		_ = d.orchestrator.SyncAccount(ctx, account)
	}
}

// dispatchIncremental checks completed accounts whose last look at the
// mailbox is older than the incremental interval
func (d *Dispatcher) dispatchIncremental(ctx context.Context) {
	accounts, err := d.db.GetAccountsForIncrementalSync(ctx, d.incrementalInterval)
	if err != nil {
		d.logger.Error("failed to select accounts for incremental sync", "error", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	d.logger.Debug("dispatching incremental sync", "accounts", len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		_ = d.orchestrator.SyncAccount(ctx, account)
	}
}

func (d *Dispatcher) pruneEvents(ctx context.Context) {
	pruned, err := d.db.PruneEventsBefore(ctx, time.Now().Add(-eventRetention))
	if err != nil {
		d.logger.Error("failed to prune sync events", "error", err)
		return
	}
	if pruned > 0 {
		d.logger.Info("pruned old sync events", "count", pruned)
	}
}
