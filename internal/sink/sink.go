package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nivora/mailsync/internal/database"
	"github.com/nivora/mailsync/internal/parser"
	"github.com/nivora/mailsync/pkg/models"
)

const previewLength = 160

// Sink receives fetched messages. Implementations must be idempotent:
// storing the same (account, folder, uid) twice is not an error.
type Sink interface {
	Store(ctx context.Context, accountID int64, folder string, msg *models.Message) error
}

// StoreSink persists messages to the local database
type StoreSink struct {
	db     *database.DB
	parser *parser.HTMLParser
	logger *slog.Logger
}

// NewStoreSink creates a database-backed message sink
func NewStoreSink(db *database.DB, logger *slog.Logger) *StoreSink {
	return &StoreSink{
		db:     db,
		parser: parser.NewHTMLParser(),
		logger: logger,
	}
}

// Store writes a message to the database. Messages already stored for the
// same folder and UID are silently skipped.
func (s *StoreSink) Store(ctx context.Context, accountID int64, folder string, msg *models.Message) error {
	stored := &models.StoredMessage{
		AccountID:  accountID,
		Folder:     folder,
		UID:        msg.UID,
		MessageID:  msg.MessageID,
		FromAddr:   msg.From.Email,
		FromName:   msg.From.Name,
		Subject:    msg.Subject,
		Preview:    s.parser.Preview(msg.BodyText, msg.BodyHTML, previewLength),
		BodyText:   msg.BodyText,
		BodyHTML:   msg.BodyHTML,
		IsRead:     msg.IsRead,
		IsStarred:  msg.IsStarred,
		ReceivedAt: msg.Date,
	}

	err := s.db.CreateMessage(ctx, stored)
	if errors.Is(err, database.ErrAlreadyExists) {
		s.logger.Debug("message already stored",
			"account_id", accountID,
			"folder", folder,
			"uid", msg.UID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	return nil
}
