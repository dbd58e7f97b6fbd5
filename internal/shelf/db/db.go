// Package db provides the embedded SQLite store for inkshelf records.
//
// Every entity kind lives in one records table. Queryable columns (kind,
// owner ids, dirty flag, timestamps) sit next to a JSON payload holding the
// full record, so adding a field to a record never needs a migration.
//
// Architecture:
//   - Database file: .inkshelf/shelf.db
//   - WAL mode: the daemon reads while the CLI writes
//   - Schema: records, kv tables
//   - Indexes: per-owner lookups and dirty scans used by push
//
// The kv table holds small blobs such as the page id map (see PageMapBackend).
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// ErrNotFound is returned when a record or kv key does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DB wraps the SQLite connection and exposes one collection per kind.
type DB struct {
	conn *sql.DB
	path string

	Works         *Collection[*schema.Work]
	Synopses      *Collection[*schema.Synopsis]
	Characters    *Collection[*schema.Character]
	Settings      *Collection[*schema.Setting]
	Chapters      *Collection[*schema.Chapter]
	Episodes      *Collection[*schema.Episode]
	TagCategories *Collection[*schema.TagCategory]
	Tags          *Collection[*schema.Tag]
}

// Open creates a database connection at path and initializes the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(".inkshelf/shelf.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.Works = newCollection[*schema.Work](db, schema.KindWork)
	db.Synopses = newCollection[*schema.Synopsis](db, schema.KindSynopsis)
	db.Characters = newCollection[*schema.Character](db, schema.KindCharacter)
	db.Settings = newCollection[*schema.Setting](db, schema.KindSetting)
	db.Chapters = newCollection[*schema.Chapter](db, schema.KindChapter)
	db.Episodes = newCollection[*schema.Episode](db, schema.KindEpisode)
	db.TagCategories = newCollection[*schema.TagCategory](db, schema.KindTagCategory)
	db.Tags = newCollection[*schema.Tag](db, schema.KindTag)

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables and indexes. Safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		work_id TEXT,
		chapter_id TEXT,
		category_id TEXT,
		is_dirty INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced_at TEXT,
		payload TEXT NOT NULL,  -- full record as JSON
		PRIMARY KEY (kind, id)
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_work ON records(kind, work_id);
	CREATE INDEX IF NOT EXISTS idx_records_chapter ON records(kind, chapter_id);
	CREATE INDEX IF NOT EXISTS idx_records_category ON records(kind, category_id);
	CREATE INDEX IF NOT EXISTS idx_records_dirty
	    ON records(kind, is_dirty) WHERE is_dirty = 1;
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// KindStats summarizes one kind for status output.
type KindStats struct {
	Kind  schema.Kind
	Total int
	Dirty int
}

// Stats returns record and dirty counts per kind, in schema.Kinds order.
// Kinds without records are included with zero counts.
func (db *DB) Stats(ctx context.Context) ([]KindStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(is_dirty), 0) FROM records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[schema.Kind]KindStats)
	for rows.Next() {
		var s KindStats
		if err := rows.Scan(&s.Kind, &s.Total, &s.Dirty); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		counts[s.Kind] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	out := make([]KindStats, 0, len(schema.Kinds))
	for _, kind := range schema.Kinds {
		s := counts[kind]
		s.Kind = kind
		out = append(out, s)
	}
	return out, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
