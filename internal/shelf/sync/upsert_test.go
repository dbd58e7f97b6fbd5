package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/fakeremote"
)

func newUpsertFixture(t *testing.T) (*fakeremote.Remote, string, *Upserter) {
	t.Helper()
	rem := fakeremote.New()
	return rem, rem.AddRoot("Root"), NewUpserter(rem)
}

func TestUpsertSecondCallIsNoop(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	target := Target{ParentID: root, Title: "Ren", Blocks: []remote.Block{remote.Code("json", `{"a":1}`)}}
	id, created, err := u.Upsert(ctx, target)
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if !created {
		t.Fatal("first Upsert() should create")
	}

	rem.ResetCalls()
	target.ExistingID = id
	again, created, err := u.Upsert(ctx, target)
	if err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}
	if again != id || created {
		t.Errorf("second Upsert() = %s, %v; want %s, false", again, created, id)
	}
	if n := rem.BlockMutations(); n != 0 {
		t.Errorf("block mutations = %d, want 0", n)
	}
	if n := rem.Calls(fakeremote.OpUpdate); n != 0 {
		t.Errorf("updates = %d, want 0", n)
	}
}

func TestUpsertReplacesContentAndKeepsChildPages(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	id, _, err := u.Upsert(ctx, Target{ParentID: root, Title: "Sand", Blocks: []remote.Block{remote.Paragraph("old")}})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if _, err := rem.CreatePage(ctx, id, "Episode 1", nil); err != nil {
		t.Fatalf("CreatePage() failed: %v", err)
	}

	want := []remote.Block{remote.Paragraph("new"), remote.Paragraph("second")}
	if _, _, err := u.Upsert(ctx, Target{ParentID: root, ExistingID: id, Title: "Sand", Blocks: want}); err != nil {
		t.Fatalf("Upsert() with new content failed: %v", err)
	}

	if got := rem.Content(id); !remote.SameContent(got, want) {
		t.Errorf("Content() = %+v, want %+v", got, want)
	}
	if titles := rem.ChildTitles(id); len(titles) != 1 || titles[0] != "Episode 1" {
		t.Errorf("ChildTitles() = %v, want the child page kept", titles)
	}
}

func TestUpsertRenameOnly(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	blocks := []remote.Block{remote.Paragraph("body")}
	id, _, err := u.Upsert(ctx, Target{ParentID: root, Title: "Before", Blocks: blocks})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	rem.ResetCalls()
	if _, _, err := u.Upsert(ctx, Target{ParentID: root, ExistingID: id, Title: "After", Blocks: blocks}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if n := rem.Calls(fakeremote.OpUpdate); n != 1 {
		t.Errorf("updates = %d, want 1", n)
	}
	if n := rem.BlockMutations(); n != 0 {
		t.Errorf("block mutations = %d, want 0", n)
	}
	if page, _ := rem.Page(id); page.Title != "After" {
		t.Errorf("title = %q, want After", page.Title)
	}
}

func TestUpsertContainerIgnoresContent(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	id, _, err := u.Upsert(ctx, Target{ParentID: root, Title: "Serial", Container: true})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	rem.SetContent(id, []remote.Block{remote.Heading(StatisticsMarker)})

	rem.ResetCalls()
	if _, _, err := u.Upsert(ctx, Target{ParentID: root, ExistingID: id, Title: "Serial", Container: true}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if n := rem.BlockMutations() + rem.Calls(fakeremote.OpList); n != 0 {
		t.Errorf("container upsert touched content (%d calls)", n)
	}
	if len(rem.Content(id)) != 1 {
		t.Error("container content was replaced")
	}
}

func TestUpsertRecovery(t *testing.T) {
	tests := []struct {
		name        string
		damage      func(rem *fakeremote.Remote, root, parent, page string)
		wantCreated bool
	}{
		{
			name:        "archived page is restored",
			damage:      func(rem *fakeremote.Remote, root, parent, page string) { rem.Archive(page) },
			wantCreated: false,
		},
		{
			name:        "page under archived parent is recreated",
			damage:      func(rem *fakeremote.Remote, root, parent, page string) { rem.Archive(parent) },
			wantCreated: true,
		},
		{
			name:        "deleted page is recreated",
			damage:      func(rem *fakeremote.Remote, root, parent, page string) { rem.Purge(page) },
			wantCreated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rem, root, u := newUpsertFixture(t)

			parent, err := rem.CreatePage(ctx, root, "Old parent", nil)
			if err != nil {
				t.Fatalf("CreatePage() failed: %v", err)
			}
			blocks := []remote.Block{remote.Paragraph("ren")}
			page, err := rem.CreatePage(ctx, parent, "Ren", blocks)
			if err != nil {
				t.Fatalf("CreatePage() failed: %v", err)
			}

			tt.damage(rem, root, parent, page)

			id, created, err := u.Upsert(ctx, Target{ParentID: root, ExistingID: page, Title: "Ren", Blocks: blocks})
			if err != nil {
				t.Fatalf("Upsert() failed: %v", err)
			}
			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}
			if !tt.wantCreated && id != page {
				t.Errorf("id = %s, want restored %s", id, page)
			}
			got, ok := rem.Page(id)
			if !ok || got.Archived {
				t.Errorf("page %s missing or archived after recovery", id)
			}
			if !remote.SameContent(rem.Content(id), blocks) {
				t.Error("recovered page lost its content")
			}
		})
	}
}

func TestUpsertTransientFailure(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	id, _, err := u.Upsert(ctx, Target{ParentID: root, Title: "Ren"})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	boom := errors.New("connection reset")
	rem.SetFailFunc(func(op fakeremote.Op, target string) error {
		if op == fakeremote.OpRetrieve {
			return boom
		}
		return nil
	})
	rem.ResetCalls()

	_, _, err = u.Upsert(ctx, Target{ParentID: root, ExistingID: id, Title: "Ren"})
	if err == nil {
		t.Fatal("Upsert() should fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
	if ClassOf(err) != ClassTransient {
		t.Errorf("class = %s, want transient", ClassOf(err))
	}
	if n := rem.Calls(fakeremote.OpCreate); n != 0 {
		t.Errorf("creates = %d, want 0 on transient failure", n)
	}
}

func TestReplaceSection(t *testing.T) {
	ctx := context.Background()
	rem, root, u := newUpsertFixture(t)

	page, err := rem.CreatePage(ctx, root, "Serial", []remote.Block{remote.Paragraph("intro")})
	if err != nil {
		t.Fatalf("CreatePage() failed: %v", err)
	}
	if _, err := rem.CreatePage(ctx, page, "Chapter 1", nil); err != nil {
		t.Fatalf("CreatePage() failed: %v", err)
	}

	section := func(text string) []remote.Block {
		return []remote.Block{remote.Heading(StatisticsMarker), remote.Paragraph(text)}
	}

	changed, err := u.ReplaceSection(ctx, page, StatisticsMarker, section("Episodes: 1"))
	if err != nil || !changed {
		t.Fatalf("ReplaceSection() = %v, %v; want changed", changed, err)
	}

	rem.ResetCalls()
	changed, err = u.ReplaceSection(ctx, page, StatisticsMarker, section("Episodes: 1"))
	if err != nil || changed {
		t.Fatalf("repeat ReplaceSection() = %v, %v; want unchanged", changed, err)
	}
	if n := rem.BlockMutations(); n != 0 {
		t.Errorf("block mutations = %d, want 0", n)
	}

	if _, err := u.ReplaceSection(ctx, page, StatisticsMarker, section("Episodes: 2")); err != nil {
		t.Fatalf("ReplaceSection() failed: %v", err)
	}
	want := append([]remote.Block{remote.Paragraph("intro")}, section("Episodes: 2")...)
	if got := rem.Content(page); !remote.SameContent(got, want) {
		t.Errorf("Content() = %+v, want %+v", got, want)
	}
	if titles := rem.ChildTitles(page); len(titles) != 1 {
		t.Errorf("ChildTitles() = %v, want the chapter kept", titles)
	}
}
