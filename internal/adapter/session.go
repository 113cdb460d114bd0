package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"

	"github.com/nivora/mailsync/pkg/models"
)

// FolderStatus is the server-reported state of a selected folder
type FolderStatus struct {
	Name        string
	Messages    uint32 // EXISTS count
	UIDNext     uint32 // next UID the server will assign
	UIDValidity uint32
}

// Session is one authenticated IMAP connection. It only talks to the
// network; account state transitions belong to the orchestrator.
type Session struct {
	client   *client.Client
	logger   *slog.Logger
	selected string
}

// dialConfig carries the transport facts needed to open a connection
type dialConfig struct {
	addr        string
	encryption  string // "ssl" or "starttls"
	dialTimeout time.Duration
	cmdTimeout  time.Duration
}

// dialIMAP opens a transport-layer connection to the server
func dialIMAP(cfg dialConfig) (*client.Client, error) {
	timeout := cfg.dialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	host := cfg.addr
	if h, _, err := net.SplitHostPort(cfg.addr); err == nil {
		host = h
	}

	var c *client.Client
	if cfg.encryption == "starttls" {
		conn, err := dialer.Dial("tcp", cfg.addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create IMAP client: %w", err)
		}
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	} else {
		conn, err := tls.DialWithDialer(dialer, "tcp", cfg.addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create IMAP client: %w", err)
		}
	}

	if cfg.cmdTimeout > 0 {
		c.Timeout = cfg.cmdTimeout
	}
	return c, nil
}

// loginSession authenticates with LOGIN and returns a session
func loginSession(cfg dialConfig, username, password string, logger *slog.Logger) (*Session, error) {
	c, err := dialIMAP(cfg)
	if err != nil {
		return nil, NewError(KindConnection, "connect", err)
	}

	if err := c.Login(username, password); err != nil {
		c.Logout()
		return nil, NewError(KindAuth, "login", err)
	}

	return &Session{client: c, logger: logger}, nil
}

// saslSession authenticates with a SASL mechanism and returns a session
func saslSession(cfg dialConfig, saslClient sasl.Client, logger *slog.Logger) (*Session, error) {
	c, err := dialIMAP(cfg)
	if err != nil {
		return nil, NewError(KindConnection, "connect", err)
	}

	if err := c.Authenticate(saslClient); err != nil {
		c.Logout()
		return nil, NewError(KindAuth, "authenticate", err)
	}

	return &Session{client: c, logger: logger}, nil
}

// SelectFolder selects a folder read-only and returns its status
func (s *Session) SelectFolder(ctx context.Context, folder string) (*FolderStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify("select", err)
	}

	mbox, err := s.client.Select(folder, true)
	if err != nil {
		return nil, Classify("select", fmt.Errorf("failed to select %s: %w", folder, err))
	}
	s.selected = folder

	return &FolderStatus{
		Name:        folder,
		Messages:    mbox.Messages,
		UIDNext:     mbox.UidNext,
		UIDValidity: mbox.UidValidity,
	}, nil
}

// FetchUIDRange fetches message summaries for the closed-open UID range
// [start, end). Empty ranges and misses inside the range (deleted UIDs)
// return the messages that do exist, never an error.
func (s *Session) FetchUIDRange(ctx context.Context, folder string, start, end uint32) ([]*models.Message, error) {
	if end <= start {
		return nil, nil
	}
	if err := s.ensureSelected(ctx, folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end-1)

	return s.fetch(ctx, seqSet)
}

// FetchSince fetches all messages with UID greater than afterUID
func (s *Session) FetchSince(ctx context.Context, folder string, afterUID uint32) ([]*models.Message, error) {
	if err := s.ensureSelected(ctx, folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(afterUID+1, 0) // 0 means * (all)

	return s.fetch(ctx, seqSet)
}

func (s *Session) ensureSelected(ctx context.Context, folder string) error {
	if s.selected == folder {
		return nil
	}
	_, err := s.SelectFolder(ctx, folder)
	return err
}

func (s *Session) fetch(ctx context.Context, seqSet *imap.SeqSet) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify("fetch", err)
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var out []*models.Message
	for msg := range messages {
		parsed, err := s.parseMessage(msg, section)
		if err != nil {
			s.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		out = append(out, parsed)
	}

	if err := <-done; err != nil {
		return out, Classify("fetch", fmt.Errorf("failed to fetch: %w", err))
	}

	return out, nil
}

// parseMessage parses an IMAP message into the model type
func (s *Session) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*models.Message, error) {
	out := &models.Message{
		UID: msg.Uid,
	}

	// Parse envelope
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		out.Date = msg.Envelope.Date
		out.MessageID = msg.Envelope.MessageId

		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			out.From = models.Address{
				Name:  from.PersonalName,
				Email: from.Address(),
			}
		}
		for _, addr := range msg.Envelope.To {
			out.To = append(out.To, models.Address{Name: addr.PersonalName, Email: addr.Address()})
		}
		for _, addr := range msg.Envelope.Cc {
			out.Cc = append(out.Cc, models.Address{Name: addr.PersonalName, Email: addr.Address()})
		}
	}

	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			out.IsRead = true
		case imap.FlaggedFlag:
			out.IsStarred = true
		}
	}

	// Parse body
	bodyReader := msg.GetBody(section)
	if bodyReader != nil {
		mr, err := mail.CreateReader(bodyReader)
		if err != nil {
			s.logger.Warn("failed to create mail reader", "error", err)
		} else {
			// Read parts
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					s.logger.Warn("failed to read part", "error", err)
					break
				}

				switch h := part.Header.(type) {
				case *mail.InlineHeader:
					ct, _, _ := h.ContentType()
					body, err := io.ReadAll(part.Body)
					if err != nil {
						continue
					}

					if strings.HasPrefix(ct, "text/html") {
						out.BodyHTML = string(body)
					} else if strings.HasPrefix(ct, "text/plain") {
						out.BodyText = string(body)
					}
				}
			}
		}
	}

	return out, nil
}

// Close logs out, forcing the connection closed if the server stalls
func (s *Session) Close() {
	c := s.client
	if c == nil {
		return
	}
	s.client = nil

	done := make(chan struct{})
	go func() {
		c.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		// Force close if logout takes too long
		c.Terminate()
	}
}
