package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/db"
)

// KeyValueRepository implements ports.KeyValueStore on the cache_entries table.
// It supports single-key reads and writes only.
type KeyValueRepository struct {
	db *db.Database
}

// NewKeyValueRepository creates a new key-value repository
func NewKeyValueRepository(database *db.Database) ports.KeyValueStore {
	return &KeyValueRepository{db: database}
}

// Get retrieves the value stored under key
func (r *KeyValueRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.DB.GetContext(ctx, &value, `SELECT value FROM cache_entries WHERE key = $1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, true, nil
}

// Put upserts the value for key, or removes the row when value is nil
func (r *KeyValueRepository) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		if _, err := r.db.DB.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := r.db.DB.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}
