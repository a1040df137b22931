package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/mailpool/pkg/models"
)

// SaveIncoming persists a fetched message. Returns ErrAlreadyExists when
// the (account_id, uid) pair was seen before; callers use this to suppress
// duplicate notifications across poll ticks.
func (db *DB) SaveIncoming(ctx context.Context, msg *models.IncomingMessage) error {
	query := `
		INSERT OR IGNORE INTO incoming_messages (user_id, account_id, uid, from_name, from_email, subject, body, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	result, err := db.ExecContext(ctx, query,
		msg.UserID,
		msg.AccountID,
		msg.UID,
		msg.FromName,
		msg.FromEmail,
		msg.Subject,
		msg.Body,
		msg.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// HasIncoming reports whether any message was ever recorded for an account.
// The first-pass backlog suppression checks this before firing.
func (db *DB) HasIncoming(ctx context.Context, accountID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM incoming_messages WHERE account_id = ?`
	if err := db.GetContext(ctx, &count, query, accountID); err != nil {
		return false, fmt.Errorf("failed to count messages: %w", err)
	}
	return count > 0, nil
}

// ListIncoming returns the most recent messages for an account
func (db *DB) ListIncoming(ctx context.Context, accountID int64, limit int) ([]*models.IncomingMessage, error) {
	var messages []*models.IncomingMessage
	query := `SELECT * FROM incoming_messages WHERE account_id = ? ORDER BY id DESC LIMIT ?`
	err := db.SelectContext(ctx, &messages, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
