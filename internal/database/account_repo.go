package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/mailpool/pkg/models"
)

// CreateAccount creates a new mailbox account. Returns ErrAlreadyExists
// when the user already holds an account with this address.
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT OR IGNORE INTO accounts (user_id, display_name, email, password, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.UserID,
		account.DisplayName,
		account.Email,
		account.Password,
		account.Active,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
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

	account.ID = id
	account.CreatedAt = now
	return nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	query := `SELECT * FROM accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// ListAccounts returns all accounts of a user
func (db *DB) ListAccounts(ctx context.Context, userID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE user_id = ? ORDER BY id ASC`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListActiveAccounts returns the enabled accounts of a user
func (db *DB) ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE user_id = ? AND active = true ORDER BY id ASC`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}
	return accounts, nil
}

// SetAccountActive flips the enabled flag of an account
func (db *DB) SetAccountActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE accounts SET active = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return nil
}

// DeleteAccount deletes an account
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
