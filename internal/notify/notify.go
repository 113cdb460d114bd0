package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/nivora/mailsync/pkg/models"
)

// ReapOutcome is what the watchdog achieved with a stuck worker
type ReapOutcome int

const (
	// ReapKilled means the process was terminated and the marker cleared
	ReapKilled ReapOutcome = iota
	// ReapAlreadyGone means the process had already exited; only the
	// marker was cleared
	ReapAlreadyGone
	// ReapKillFailed means the process survived the kill; an operator
	// has to intervene
	ReapKillFailed
)

func (o ReapOutcome) String() string {
	switch o {
	case ReapKilled:
		return "killed"
	case ReapAlreadyGone:
		return "already gone"
	case ReapKillFailed:
		return "kill failed"
	default:
		return "unknown"
	}
}

// Notifier delivers operator alerts about sync health
type Notifier interface {
	// ReauthRequired alerts that an account's credentials were rejected
	// and the account is parked until the owner re-authenticates.
	ReauthRequired(ctx context.Context, account *models.MailAccount, reason string)

	// ZombieKilled alerts that the watchdog reaped a stuck sync worker
	ZombieKilled(ctx context.Context, workerName string, pid int, age time.Duration, outcome ReapOutcome)
}

// LogNotifier writes alerts to the log. Used when no Telegram chat
// is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) ReauthRequired(ctx context.Context, account *models.MailAccount, reason string) {
	n.logger.Warn("account needs re-authentication",
		"account_id", account.ID,
		"email", account.Email,
		"reason", reason,
	)
}

func (n *LogNotifier) ZombieKilled(ctx context.Context, workerName string, pid int, age time.Duration, outcome ReapOutcome) {
	n.logger.Warn("stuck sync worker reaped",
		"worker", workerName,
		"pid", pid,
		"age", age,
		"outcome", outcome.String(),
	)
}

// TelegramNotifier sends operator alerts to a Telegram chat
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier creates a Telegram-backed notifier
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	tgBot, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{
		bot:    tgBot,
		chatID: chatID,
		logger: logger.With("component", "notifier"),
	}, nil
}

func (n *TelegramNotifier) ReauthRequired(ctx context.Context, account *models.MailAccount, reason string) {
	text := fmt.Sprintf(
		"⚠️ <b>Re-authentication required</b>\n\n"+
			"Account: %s\n"+
			"Provider: %s\n"+
			"Reason: %s\n\n"+
			"Syncing is paused until the account is re-connected.",
		account.Email, account.Provider, reason,
	)
	n.send(ctx, text)
}

func (n *TelegramNotifier) ZombieKilled(ctx context.Context, workerName string, pid int, age time.Duration, outcome ReapOutcome) {
	var status string
	switch outcome {
	case ReapKilled:
		status = "process killed, marker cleared"
	case ReapAlreadyGone:
		status = "process already gone, marker cleared"
	case ReapKillFailed:
		status = "kill failed, manual intervention required"
	}
	text := fmt.Sprintf(
		"🔪 <b>Stuck sync worker reaped</b>\n\n"+
			"Worker: %s\n"+
			"PID: %d\n"+
			"Running for: %s\n"+
			"Result: %s",
		workerName, pid, age.Round(time.Second), status,
	)
	n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		n.logger.Error("failed to send telegram alert", "error", err)
	}
}
