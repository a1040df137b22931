package models

import "time"

// IncomingMessage is a persisted record of a fetched mail message.
// The (account_id, uid) pair is unique and backs cross-tick deduplication.
type IncomingMessage struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	AccountID  int64     `db:"account_id"`
	UID        uint32    `db:"uid"` // IMAP UID within the account's inbox
	FromName   string    `db:"from_name"`
	FromEmail  string    `db:"from_email"`
	Subject    string    `db:"subject"`
	Body       string    `db:"body"` // Plain text, size-capped
	ReceivedAt time.Time `db:"received_at"`
}
