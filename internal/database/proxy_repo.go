package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/mailpool/pkg/models"
)

// CreateProxy creates a new proxy record
func (db *DB) CreateProxy(ctx context.Context, proxy *models.Proxy) error {
	query := `
		INSERT INTO proxies (user_id, kind, host, port, login, password, healthy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		proxy.UserID,
		proxy.Kind,
		proxy.Host,
		proxy.Port,
		proxy.Login,
		proxy.Password,
		proxy.Healthy,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	proxy.ID = id
	proxy.CreatedAt = now
	return nil
}

// ListProxies returns all proxies of a kind for a user, in stable ID order.
// Round-robin rotation depends on the ordering being stable between calls.
func (db *DB) ListProxies(ctx context.Context, userID int64, kind models.ProxyKind) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	query := `SELECT * FROM proxies WHERE user_id = ? AND kind = ? ORDER BY id ASC`
	err := db.SelectContext(ctx, &proxies, query, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	return proxies, nil
}

// SetProxyHealthy records the result of a health probe
func (db *DB) SetProxyHealthy(ctx context.Context, id int64, healthy bool) error {
	query := `UPDATE proxies SET healthy = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, healthy, id)
	if err != nil {
		return fmt.Errorf("failed to set proxy healthy: %w", err)
	}
	return nil
}

// DeleteProxy deletes a proxy record
func (db *DB) DeleteProxy(ctx context.Context, id int64) error {
	query := `DELETE FROM proxies WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete proxy: %w", err)
	}
	return nil
}
