package models

import "time"

// Address represents an email address with an optional display name
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is a fetched mail message handed to the message sink.
// UID is the server-assigned identifier the watermark is based on.
type Message struct {
	UID       uint32
	MessageID string
	From      Address
	To        []Address
	Cc        []Address
	Subject   string
	Preview   string
	BodyText  string
	BodyHTML  string
	IsRead    bool
	IsStarred bool
	Date      time.Time
}

// StoredMessage is the persisted form of an ingested message
type StoredMessage struct {
	ID         int64     `db:"id"`
	AccountID  int64     `db:"account_id"`
	Folder     string    `db:"folder"`
	UID        uint32    `db:"uid"`
	MessageID  string    `db:"message_id"`
	FromAddr   string    `db:"from_addr"`
	FromName   string    `db:"from_name"`
	Subject    string    `db:"subject"`
	Preview    string    `db:"preview"`
	BodyText   string    `db:"body_text"`
	BodyHTML   string    `db:"body_html"`
	IsRead     bool      `db:"is_read"`
	IsStarred  bool      `db:"is_starred"`
	ReceivedAt time.Time `db:"received_at"`
	CreatedAt  time.Time `db:"created_at"`
}
