package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// Index names a column ListBy can filter on.
type Index string

const (
	IndexWork     Index = "work_id"
	IndexChapter  Index = "chapter_id"
	IndexCategory Index = "category_id"
	IndexDirty    Index = "is_dirty"
)

func (i Index) valid() bool {
	switch i {
	case IndexWork, IndexChapter, IndexCategory, IndexDirty:
		return true
	}
	return false
}

// Collection is the typed view of one kind's rows.
type Collection[T schema.Record] struct {
	db   *DB
	kind schema.Kind
}

func newCollection[T schema.Record](db *DB, kind schema.Kind) *Collection[T] {
	return &Collection[T]{db: db, kind: kind}
}

// Kind returns the kind stored in this collection.
func (c *Collection[T]) Kind() schema.Kind {
	return c.kind
}

// GetAll returns every record ordered by id.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT payload FROM records WHERE kind = ? ORDER BY id`, string(c.kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", c.kind, err)
	}
	defer rows.Close()
	return c.scan(rows)
}

// GetByID returns one record, or an error wrapping ErrNotFound.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	var payload string
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE kind = ? AND id = ?`, string(c.kind), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get %s %s: %w", c.kind, id, err)
	}
	return c.decode(payload)
}

// ListBy returns records whose index column equals value, ordered by id.
// IndexDirty takes a bool.
func (c *Collection[T]) ListBy(ctx context.Context, index Index, value any) ([]T, error) {
	if !index.valid() {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	if b, ok := value.(bool); ok {
		value = boolToInt(b)
	}

	query := `SELECT payload FROM records WHERE kind = ? AND ` + string(index) + ` = ? ORDER BY id`
	rows, err := c.db.conn.QueryContext(ctx, query, string(c.kind), value)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s by %s: %w", c.kind, index, err)
	}
	defer rows.Close()
	return c.scan(rows)
}

// Put validates and inserts or replaces a record.
func (c *Collection[T]) Put(ctx context.Context, rec T) error {
	return c.db.put(ctx, rec)
}

// Delete removes a record. Returns nil if it doesn't exist (idempotent).
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	_, err := c.db.conn.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, string(c.kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", c.kind, id, err)
	}
	return nil
}

func (c *Collection[T]) scan(rows *sql.Rows) ([]T, error) {
	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.kind, err)
		}
		rec, err := c.decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", c.kind, err)
	}
	return out, nil
}

func (c *Collection[T]) decode(payload string) (T, error) {
	var zero T
	rec, err := decodeRecord(c.kind, payload)
	if err != nil {
		return zero, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%s payload decoded to %T", c.kind, rec)
	}
	return typed, nil
}

// List returns every record of kind. Together with Put it lets the sync
// engine treat the database as its store.
func (db *DB) List(ctx context.Context, kind schema.Kind) ([]schema.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT payload FROM records WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	defer rows.Close()

	var out []schema.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		rec, err := decodeRecord(kind, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", kind, err)
	}
	return out, nil
}

// Put validates and inserts or replaces a record of any kind.
func (db *DB) Put(ctx context.Context, rec schema.Record) error {
	return db.put(ctx, rec)
}

func (db *DB) put(ctx context.Context, rec schema.Record) error {
	meta := rec.Metadata()
	meta.SetDefaults()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s %s: %w", rec.Kind(), meta.ID, err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", rec.Kind(), meta.ID, err)
	}

	workID, chapterID, categoryID := owners(rec)

	query := `
	INSERT INTO records (
		kind, id, work_id, chapter_id, category_id,
		is_dirty, created_at, updated_at, synced_at, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET
		work_id = excluded.work_id,
		chapter_id = excluded.chapter_id,
		category_id = excluded.category_id,
		is_dirty = excluded.is_dirty,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at,
		payload = excluded.payload
	`

	_, err = db.conn.ExecContext(ctx, query,
		string(rec.Kind()),
		meta.ID,
		nullIfEmpty(workID),
		nullIfEmpty(chapterID),
		nullIfEmpty(categoryID),
		boolToInt(meta.IsDirty),
		meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		meta.UpdatedAt.UTC().Format(time.RFC3339Nano),
		timeToNullString(meta.SyncedAt),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", rec.Kind(), meta.ID, err)
	}
	return nil
}

func decodeRecord(kind schema.Kind, payload string) (schema.Record, error) {
	rec, err := schema.New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return rec, nil
}

// owners returns the foreign-key columns indexed for rec.
func owners(rec schema.Record) (workID, chapterID, categoryID string) {
	switch r := rec.(type) {
	case *schema.Synopsis:
		workID = r.WorkID
	case *schema.Character:
		workID = r.WorkID
	case *schema.Setting:
		workID = r.WorkID
	case *schema.Chapter:
		workID = r.WorkID
	case *schema.Episode:
		workID, chapterID = r.WorkID, r.ChapterID
	case *schema.Tag:
		categoryID = r.CategoryID
	}
	return workID, chapterID, categoryID
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
