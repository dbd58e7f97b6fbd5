package sync

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/fakeremote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store that hands out copies, like a database.
type memStore struct {
	mu   sync.Mutex
	recs map[schema.Kind]map[string]schema.Record
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[schema.Kind]map[string]schema.Record)}
}

func (m *memStore) List(ctx context.Context, kind schema.Kind) ([]schema.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []schema.Record
	for _, rec := range m.recs[kind] {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata().ID < out[j].Metadata().ID })
	return out, nil
}

func (m *memStore) Put(ctx context.Context, rec schema.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.recs[rec.Kind()]
	if !ok {
		byID = make(map[string]schema.Record)
		m.recs[rec.Kind()] = byID
	}
	byID[rec.Metadata().ID] = cloneRecord(rec)
	return nil
}

func (m *memStore) get(kind schema.Kind, id string) schema.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[kind][id]; ok {
		return cloneRecord(rec)
	}
	return nil
}

func (m *memStore) all(t *testing.T, kind schema.Kind) []schema.Record {
	t.Helper()
	recs, err := m.List(context.Background(), kind)
	if err != nil {
		t.Fatalf("List(%s) failed: %v", kind, err)
	}
	return recs
}

func cloneRecord(rec schema.Record) schema.Record {
	data, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	out, err := schema.New(rec.Kind())
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

// noSleep removes batch delays for the duration of a test.
func noSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { sleep = orig })
}

type fixture struct {
	remote *fakeremote.Remote
	root   string
	store  *memStore
	pages  *pagemap.Map
	syncer Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	noSleep(t)

	rem := fakeremote.New()
	f := &fixture{
		remote: rem,
		root:   rem.AddRoot("Writing"),
		store:  newMemStore(),
	}
	f.pages = openPages(t)
	f.syncer = f.newSyncer(t, f.store, f.pages)
	return f
}

func openPages(t *testing.T) *pagemap.Map {
	t.Helper()
	pages, err := pagemap.Open(context.Background(), &pagemap.MemoryBackend{})
	if err != nil {
		t.Fatalf("pagemap.Open() failed: %v", err)
	}
	return pages
}

func (f *fixture) newSyncer(t *testing.T, store Store, pages *pagemap.Map) Syncer {
	t.Helper()
	return New(Config{
		Client:     f.remote,
		Store:      store,
		PageMap:    pages,
		RootPageID: f.root,
		BatchWidth: 2,
		Logger:     log.New(io.Discard, "", 0),
		Now:        func() time.Time { return testNow },
	})
}

func (f *fixture) put(t *testing.T, recs ...schema.Record) {
	t.Helper()
	for _, rec := range recs {
		rec.Metadata().Touch(testNow.Add(-time.Hour))
		if err := f.store.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}
}

func (f *fixture) push(t *testing.T, opts Options) *Report {
	t.Helper()
	report, err := f.syncer.Push(context.Background(), opts)
	if err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	return report
}

func (f *fixture) pageID(t *testing.T, kind pagemap.Kind, id string) string {
	t.Helper()
	pageID, ok := f.pages.Get(kind, id)
	if !ok {
		t.Fatalf("no page mapped for %s %s", kind, id)
	}
	return pageID
}

// seedGraph stores one complete work with every entity kind, all dirty.
func seedGraph(t *testing.T, f *fixture) {
	t.Helper()
	f.put(t,
		&schema.Work{Meta: schema.Meta{ID: "w-1"}, Title: "Salt Roads", Category: "fantasy", TagIDs: []string{"t-1"}},
		&schema.Synopsis{Meta: schema.Meta{ID: "s-1"}, WorkID: "w-1",
			Ki: []schema.PlotPoint{{ID: "p-1", Title: "Departure"}}},
		&schema.Character{Meta: schema.Meta{ID: "c-1"}, WorkID: "w-1", Name: "Ren", Order: 1},
		&schema.Character{Meta: schema.Meta{ID: "c-2"}, WorkID: "w-1", Name: "Ada", Order: 2},
		&schema.Setting{Meta: schema.Meta{ID: "st-1"}, WorkID: "w-1", Name: "Dune Sea"},
		&schema.Chapter{Meta: schema.Meta{ID: "ch-1"}, WorkID: "w-1", Title: "Sand", Order: 1, Phase: schema.PhaseKi},
		&schema.Episode{Meta: schema.Meta{ID: "e-1"}, WorkID: "w-1", ChapterID: "ch-1", Number: 1, Body: "<p>hot wind</p>"},
		&schema.Episode{Meta: schema.Meta{ID: "e-2"}, WorkID: "w-1", ChapterID: "ch-1", Number: 2, Title: "Mirage",
			Stats: &schema.EpisodeStats{Views: 40, Likes: 3}},
		&schema.Episode{Meta: schema.Meta{ID: "e-3"}, WorkID: "w-1", Number: 3, Body: "epilogue"},
		&schema.TagCategory{Meta: schema.Meta{ID: "tc-1"}, Name: "Genre"},
		&schema.Tag{Meta: schema.Meta{ID: "t-1"}, CategoryID: "tc-1", Name: "fantasy"},
	)
}
