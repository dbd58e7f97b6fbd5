package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var stamp = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func meta(id string, dirty bool) schema.Meta {
	return schema.Meta{ID: id, CreatedAt: stamp, UpdatedAt: stamp, IsDirty: dirty}
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"records", "kv"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestCollectionCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	work := &schema.Work{Meta: meta("w-1", true), Title: "Salt Roads", TagIDs: []string{"t-1"}}
	if err := db.Works.Put(ctx, work); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := db.Works.GetByID(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if diff := cmp.Diff(work, got); diff != "" {
		t.Errorf("GetByID() mismatch (-want +got):\n%s", diff)
	}

	work.Title = "Salt Roads, revised"
	if err := db.Works.Put(ctx, work); err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}
	all, err := db.Works.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 || all[0].Title != "Salt Roads, revised" {
		t.Errorf("GetAll() = %+v, want one updated work", all)
	}

	if err := db.Works.Delete(ctx, "w-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := db.Works.Delete(ctx, "w-1"); err != nil {
		t.Errorf("repeat Delete() failed: %v", err)
	}
	if _, err := db.Works.GetByID(ctx, "w-1"); !IsNotFound(err) {
		t.Errorf("GetByID() after delete error = %v, want not found", err)
	}
}

func TestPutRejectsInvalidRecord(t *testing.T) {
	db := openTestDB(t)

	err := db.Chapters.Put(context.Background(), &schema.Chapter{Meta: meta("ch-1", false), Title: "No work"})
	if err == nil {
		t.Fatal("Put() should reject a chapter without work_id")
	}
}

func TestCollectionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.TagCategories.Put(ctx, &schema.TagCategory{Meta: meta("x", false), Name: "Genre"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := db.Tags.Put(ctx, &schema.Tag{Meta: meta("x", false), CategoryID: "x", Name: "fantasy"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	cat, err := db.TagCategories.GetByID(ctx, "x")
	if err != nil || cat.Name != "Genre" {
		t.Errorf("TagCategories.GetByID() = %+v, %v", cat, err)
	}
	tag, err := db.Tags.GetByID(ctx, "x")
	if err != nil || tag.Name != "fantasy" {
		t.Errorf("Tags.GetByID() = %+v, %v", tag, err)
	}
}

func TestListBy(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	episodes := []*schema.Episode{
		{Meta: meta("e-1", true), WorkID: "w-1", ChapterID: "ch-1", Number: 1},
		{Meta: meta("e-2", false), WorkID: "w-1", ChapterID: "ch-1", Number: 2},
		{Meta: meta("e-3", true), WorkID: "w-1", Number: 3},
		{Meta: meta("e-4", false), WorkID: "w-2", Number: 1},
	}
	for _, ep := range episodes {
		if err := db.Episodes.Put(ctx, ep); err != nil {
			t.Fatalf("Put(%s) failed: %v", ep.ID, err)
		}
	}

	tests := []struct {
		name  string
		index Index
		value any
		want  []string
	}{
		{"by work", IndexWork, "w-1", []string{"e-1", "e-2", "e-3"}},
		{"by chapter", IndexChapter, "ch-1", []string{"e-1", "e-2"}},
		{"dirty", IndexDirty, true, []string{"e-1", "e-3"}},
		{"clean", IndexDirty, false, []string{"e-2", "e-4"}},
		{"no match", IndexWork, "w-9", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Episodes.ListBy(ctx, tt.index, tt.value)
			if err != nil {
				t.Fatalf("ListBy() failed: %v", err)
			}
			var ids []string
			for _, ep := range got {
				ids = append(ids, ep.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ListBy() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := db.Episodes.ListBy(ctx, Index("payload; DROP TABLE records"), "x"); err == nil {
		t.Error("ListBy() accepted an unknown index")
	}
}

func TestStoreInterface(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	synced := stamp.Add(time.Hour)
	ch := &schema.Character{Meta: meta("c-1", false), WorkID: "w-1", Name: "Ren", Order: 1}
	ch.SyncedAt = &synced
	if err := db.Put(ctx, ch); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	recs, err := db.List(ctx, schema.KindCharacter)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(recs))
	}
	if diff := cmp.Diff(schema.Record(ch), recs[0]); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	if _, err := db.List(ctx, schema.Kind("draft")); err == nil {
		t.Error("List() accepted an unknown kind")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Works.Put(ctx, &schema.Work{Meta: meta("w-1", true), Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Works.Put(ctx, &schema.Work{Meta: meta("w-2", false), Title: "B"}); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if len(stats) != len(schema.Kinds) {
		t.Fatalf("Stats() returned %d kinds, want %d", len(stats), len(schema.Kinds))
	}
	if got := stats[0]; got != (KindStats{Kind: schema.KindWork, Total: 2, Dirty: 1}) {
		t.Errorf("work stats = %+v", got)
	}
	if got := stats[1]; got.Total != 0 {
		t.Errorf("synopsis stats = %+v, want empty", got)
	}
}

func TestPageMapBackendPersists(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	pages, err := pagemap.Open(ctx, db.PageMapBackend())
	if err != nil {
		t.Fatalf("pagemap.Open() failed: %v", err)
	}
	if pages.Len() != 0 {
		t.Errorf("fresh map has %d entries", pages.Len())
	}
	pages.Set(pagemap.Of(schema.KindWork), "w-1", "page-1")
	pages.SetRoot(pagemap.RootTags, "page-tags")
	if err := pages.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	db = openAt(t, path)
	reopened, err := pagemap.Open(ctx, db.PageMapBackend())
	if err != nil {
		t.Fatalf("pagemap.Open() after reopen failed: %v", err)
	}
	if id, ok := reopened.Get(pagemap.Of(schema.KindWork), "w-1"); !ok || id != "page-1" {
		t.Errorf("Get() = %q, %v; want page-1", id, ok)
	}
	if id, ok := reopened.GetRoot(pagemap.RootTags); !ok || id != "page-tags" {
		t.Errorf("GetRoot() = %q, %v; want page-tags", id, ok)
	}
}

func openAt(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
