package database

import (
	"context"
	"fmt"
)

// ListSubjects returns the subject pool of a user
func (db *DB) ListSubjects(ctx context.Context, userID int64) ([]string, error) {
	var subjects []string
	query := `SELECT title FROM subjects WHERE user_id = ? ORDER BY id ASC`
	if err := db.SelectContext(ctx, &subjects, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return subjects, nil
}

// AddSubject appends a subject to the user's pool
func (db *DB) AddSubject(ctx context.Context, userID int64, title string) error {
	query := `INSERT INTO subjects (user_id, title) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, userID, title); err != nil {
		return fmt.Errorf("failed to add subject: %w", err)
	}
	return nil
}

// ListTemplates returns the body-template pool of a user
func (db *DB) ListTemplates(ctx context.Context, userID int64) ([]string, error) {
	var templates []string
	query := `SELECT body FROM templates WHERE user_id = ? ORDER BY id ASC`
	if err := db.SelectContext(ctx, &templates, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// AddTemplate appends a body template to the user's pool
func (db *DB) AddTemplate(ctx context.Context, userID int64, body string) error {
	query := `INSERT INTO templates (user_id, body) VALUES (?, ?)`
	if _, err := db.ExecContext(ctx, query, userID, body); err != nil {
		return fmt.Errorf("failed to add template: %w", err)
	}
	return nil
}
