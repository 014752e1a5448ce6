package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jesmann/epgmerge/internal/domain/repository"
	"github.com/jesmann/epgmerge/internal/infrastructure/transaction"
)

// SettingsRepositoryImpl implements repository.SettingsRepository with SQLite
type SettingsRepositoryImpl struct {
	db *sql.DB
}

// NewSettingsRepository creates a new SQLite-based settings repository
func NewSettingsRepository(db *sql.DB) repository.SettingsRepository {
	return &SettingsRepositoryImpl{db: db}
}

// getDB returns the appropriate database executor from context
func (r *SettingsRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Get returns the value for key, or fallback when unset
func (r *SettingsRepositoryImpl) Get(ctx context.Context, key, fallback string) (string, error) {
	db := r.getDB(ctx)
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return "", fmt.Errorf("get setting %s failed: %w", key, err)
	}
	return value, nil
}

// Set stores a value for key
func (r *SettingsRepositoryImpl) Set(ctx context.Context, key, value string) error {
	db := r.getDB(ctx)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	); err != nil {
		return fmt.Errorf("set setting %s failed: %w", key, err)
	}
	return nil
}

// All returns every stored setting
func (r *SettingsRepositoryImpl) All(ctx context.Context) (map[string]string, error) {
	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting row failed: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
