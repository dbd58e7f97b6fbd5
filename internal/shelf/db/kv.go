package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PageMapKey is the kv key holding the page id map.
const PageMapKey = "pagemap"

// GetKV returns the value stored under key, or an error wrapping ErrNotFound.
func (db *DB) GetKV(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("kv %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read kv %s: %w", key, err)
	}
	return value, nil
}

// SetKV stores value under key, replacing any previous value.
func (db *DB) SetKV(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write kv %s: %w", key, err)
	}
	return nil
}

// KVBackend stores a single blob under a kv key. It satisfies
// pagemap.Backend.
type KVBackend struct {
	db  *DB
	key string
}

// PageMapBackend returns the kv backend for the page id map.
func (db *DB) PageMapBackend() *KVBackend {
	return &KVBackend{db: db, key: PageMapKey}
}

// Load returns the stored blob. A missing key is an empty blob.
func (b *KVBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.db.GetKV(ctx, b.key)
	if IsNotFound(err) {
		return nil, nil
	}
	return data, err
}

// Save replaces the stored blob.
func (b *KVBackend) Save(ctx context.Context, data []byte) error {
	return b.db.SetKV(ctx, b.key, data)
}
