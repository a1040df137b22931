package models

import "time"

// Account represents a mailbox account in the pool
type Account struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`      // Telegram user who owns the account
	DisplayName string    `db:"display_name"` // Name used in the From header
	Email       string    `db:"email"`
	Password    string    `db:"password"`
	Active      bool      `db:"active"` // Participates in polling/sending
	CreatedAt   time.Time `db:"created_at"`
}
