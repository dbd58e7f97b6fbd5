package sync_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/fakeremote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

// listStore is a minimal shelfsync.Store keeping records in insertion order.
type listStore struct {
	recs map[schema.Kind][]schema.Record
}

func (s *listStore) List(ctx context.Context, kind schema.Kind) ([]schema.Record, error) {
	return append([]schema.Record(nil), s.recs[kind]...), nil
}

func (s *listStore) Put(ctx context.Context, rec schema.Record) error {
	if s.recs == nil {
		s.recs = make(map[schema.Kind][]schema.Record)
	}
	kind := rec.Kind()
	for i, r := range s.recs[kind] {
		if r.Metadata().ID == rec.Metadata().ID {
			s.recs[kind][i] = rec
			return nil
		}
	}
	s.recs[kind] = append(s.recs[kind], rec)
	return nil
}

func seedExample(ctx context.Context, store *listStore) {
	now := time.Now()
	for _, rec := range []schema.Record{
		&schema.Work{Meta: schema.Meta{ID: "w-1"}, Title: "Salt Roads"},
		&schema.Character{Meta: schema.Meta{ID: "c-1"}, WorkID: "w-1", Name: "Ren", Order: 1},
		&schema.Character{Meta: schema.Meta{ID: "c-2"}, WorkID: "w-1", Name: "Ada", Order: 2},
	} {
		rec.Metadata().Touch(now)
		store.Put(ctx, rec)
	}
}

func newExampleSyncer(ctx context.Context, rem *fakeremote.Remote, root string, store *listStore) shelfsync.Syncer {
	pages, err := pagemap.Open(ctx, &pagemap.MemoryBackend{})
	if err != nil {
		log.Fatal(err)
	}
	return shelfsync.New(shelfsync.Config{
		Client:     rem,
		Store:      store,
		PageMap:    pages,
		RootPageID: root,
		BatchDelay: time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})
}

func ExampleNew() {
	ctx := context.Background()
	rem := fakeremote.New()
	root := rem.AddRoot("Writing")

	store := &listStore{}
	seedExample(ctx, store)

	syncer := newExampleSyncer(ctx, rem, root, store)
	report, err := syncer.Push(ctx, shelfsync.Options{})
	if err != nil {
		log.Fatal(err)
	}

	total := report.Total()
	fmt.Printf("pushed %d, failed %d\n", total.Succeeded, total.Failed)
	fmt.Println(rem.ChildTitles(root))
	// Output:
	// pushed 3, failed 0
	// [Salt Roads]
}

func ExampleSyncer_Push() {
	ctx := context.Background()
	rem := fakeremote.New()
	root := rem.AddRoot("Writing")

	store := &listStore{}
	seedExample(ctx, store)
	syncer := newExampleSyncer(ctx, rem, root, store)
	if _, err := syncer.Push(ctx, shelfsync.Options{}); err != nil {
		log.Fatal(err)
	}

	// Edit one character; only that record is written again.
	recs, _ := store.List(ctx, schema.KindCharacter)
	ren := recs[0].(*schema.Character)
	ren.Role = "lead"
	ren.Touch(time.Now())
	store.Put(ctx, ren)

	report, err := syncer.Push(ctx, shelfsync.Options{})
	if err != nil {
		log.Fatal(err)
	}
	c := report.Counts(schema.KindCharacter)
	fmt.Printf("characters: %d pushed, %d skipped\n", c.Succeeded, c.Skipped)
	w := report.Counts(schema.KindWork)
	fmt.Printf("works: %d pushed, %d skipped\n", w.Succeeded, w.Skipped)
	// Output:
	// characters: 1 pushed, 1 skipped
	// works: 0 pushed, 1 skipped
}
