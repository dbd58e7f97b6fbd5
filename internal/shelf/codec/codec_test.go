package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

func testMeta(id string) schema.Meta {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return schema.Meta{ID: id, CreatedAt: created, UpdatedAt: created.Add(time.Hour)}
}

func sampleRecords() []schema.Record {
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return []schema.Record{
		&schema.Work{Meta: testMeta("w-1"), Title: "Salt Roads", Description: "A caravan story", Category: "fantasy", TagIDs: []string{"t-1", "t-2"}},
		&schema.Synopsis{
			Meta:   testMeta("s-1"),
			WorkID: "w-1",
			Ki:     []schema.PlotPoint{{ID: "p-1", Title: "Departure", Content: "<p>They leave.</p>"}},
			Ketsu:  []schema.PlotPoint{{ID: "p-2", Title: "Arrival"}},
		},
		&schema.Character{Meta: testMeta("c-1"), WorkID: "w-1", Name: "Ren", Role: "lead", Order: 2, Notes: "<p>scar</p>"},
		&schema.Setting{Meta: testMeta("st-1"), WorkID: "w-1", Name: "Dune Sea", Category: "place", Order: 1},
		&schema.Chapter{Meta: testMeta("ch-1"), WorkID: "w-1", Title: "Sand", Order: 1, Phase: schema.PhaseSho},
		&schema.Episode{
			Meta: testMeta("e-1"), WorkID: "w-1", ChapterID: "ch-1", Number: 3, Title: "Mirage",
			Body: "<p>heat</p>", CharCount: 4, CharCountNoSpaces: 4,
			Stats: &schema.EpisodeStats{Views: 10, Likes: 2, Comments: 1, PublishedAt: &published},
		},
		&schema.TagCategory{Meta: testMeta("tc-1"), Name: "Genre", Order: 1, Color: "blue"},
		&schema.Tag{Meta: testMeta("t-1"), CategoryID: "tc-1", Name: "fantasy", Order: 0, Color: "green"},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, rec := range sampleRecords() {
		t.Run(string(rec.Kind()), func(t *testing.T) {
			blocks, err := Encode(rec)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if len(blocks) != 1 || blocks[0].Type != remote.BlockCode || blocks[0].Language != Language {
				t.Fatalf("Encode() = %+v, want one json code block", blocks)
			}

			got, ok := Decode(rec.Kind(), blocks)
			if !ok {
				t.Fatal("Decode() did not recognise its own envelope")
			}
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeOmitsSyncState(t *testing.T) {
	synced := time.Now()
	ch := &schema.Character{Meta: testMeta("c-1"), WorkID: "w-1", Name: "Ren"}
	ch.IsDirty = true
	ch.SyncedAt = &synced

	blocks, err := Encode(ch)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	text := blocks[0].Text
	if strings.Contains(text, "is_dirty") || strings.Contains(text, "synced_at") {
		t.Errorf("envelope carries sync state: %s", text)
	}
	if !ch.IsDirty || ch.SyncedAt == nil {
		t.Error("Encode() must not modify the record")
	}

	// Same content regardless of sync state keeps repeated pushes stable.
	ch.IsDirty = false
	again, _ := Encode(ch)
	if !remote.SameContent(blocks, again) {
		t.Error("encoding changed with sync state")
	}
}

func TestRoundTripDropsSyncState(t *testing.T) {
	synced := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, rec := range sampleRecords() {
		t.Run(string(rec.Kind()), func(t *testing.T) {
			meta := rec.Metadata()
			meta.IsDirty = true
			meta.SyncedAt = &synced

			blocks, err := Encode(rec)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			got, ok := Decode(rec.Kind(), blocks)
			if !ok {
				t.Fatal("Decode() did not recognise its own envelope")
			}

			if m := got.Metadata(); m.IsDirty || m.SyncedAt != nil {
				t.Errorf("decoded sync state = dirty %v, synced %v; want clean and nil", m.IsDirty, m.SyncedAt)
			}
			ignore := cmpopts.IgnoreFields(schema.Meta{}, "IsDirty", "SyncedAt")
			if diff := cmp.Diff(rec, got, ignore); diff != "" {
				t.Errorf("round trip mismatch beyond sync state (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeIgnoresOtherKinds(t *testing.T) {
	blocks, err := Encode(&schema.Chapter{Meta: testMeta("ch-1"), WorkID: "w-1", Title: "One"})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if _, ok := Decode(schema.KindEpisode, blocks); ok {
		t.Error("Decode(episode) accepted a chapter envelope")
	}
	kind, ok := DetectKind(blocks)
	if !ok || kind != schema.KindChapter {
		t.Errorf("DetectKind() = %q, %v; want chapter", kind, ok)
	}
}

func TestDecodeUnrecognised(t *testing.T) {
	tests := []struct {
		name   string
		blocks []remote.Block
	}{
		{"empty", nil},
		{"plain prose", []remote.Block{remote.Paragraph("Just some notes about the world.")}},
		{"foreign json", []remote.Block{remote.Code("json", `{"hello":"world"}`)}},
		{"broken json", []remote.Block{remote.Code("json", `{"format":"inkshelf/v1",`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec, ok := Decode(schema.KindCharacter, tt.blocks); ok {
				t.Errorf("Decode() = %+v, want not recognised", rec)
			}
			if _, ok := DetectKind(tt.blocks); ok {
				t.Error("DetectKind() recognised a non-envelope")
			}
		})
	}
}

func TestDecodeLegacy(t *testing.T) {
	tests := []struct {
		name   string
		kind   schema.Kind
		blocks []remote.Block
		want   schema.Record
	}{
		{
			name: "work",
			kind: schema.KindWork,
			blocks: []remote.Block{
				remote.Paragraph("Title: Salt Roads"),
				remote.Paragraph("Description: A caravan story\nacross the dunes"),
				remote.Paragraph("Category: fantasy"),
			},
			want: &schema.Work{Title: "Salt Roads", Description: "A caravan story\nacross the dunes", Category: "fantasy"},
		},
		{
			name: "character",
			kind: schema.KindCharacter,
			blocks: []remote.Block{
				remote.Paragraph("Name: Ren\nOrder: 4"),
				remote.Heading("ignored"),
				remote.Paragraph("Notes: quiet"),
			},
			want: &schema.Character{Name: "Ren", Order: 4, Notes: "quiet"},
		},
		{
			name:   "chapter",
			kind:   schema.KindChapter,
			blocks: []remote.Block{remote.Paragraph("Title: Sand\nOrder: 2\nPhase: TEN")},
			want:   &schema.Chapter{Title: "Sand", Order: 2, Phase: schema.PhaseTen},
		},
		{
			name:   "episode",
			kind:   schema.KindEpisode,
			blocks: []remote.Block{remote.Paragraph("Episode: 7\nTitle: Mirage\nBody: hot wind")},
			want:   &schema.Episode{Number: 7, Title: "Mirage", Body: "hot wind", CharCount: 8, CharCountNoSpaces: 7},
		},
		{
			name:   "tag",
			kind:   schema.KindTag,
			blocks: []remote.Block{remote.Paragraph("Name: noir\nColor: gray")},
			want:   &schema.Tag{Name: "noir", Color: "gray"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.kind, tt.blocks)
			if !ok {
				t.Fatal("Decode() did not recognise legacy paragraphs")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("legacy decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeLegacySynopsis(t *testing.T) {
	blocks := []remote.Block{remote.Paragraph("Ki: - Departure\n- The oasis\nTen: Betrayal")}
	got, ok := Decode(schema.KindSynopsis, blocks)
	if !ok {
		t.Fatal("Decode() did not recognise legacy synopsis")
	}
	syn := got.(*schema.Synopsis)

	want := &schema.Synopsis{
		Ki:  []schema.PlotPoint{{Title: "Departure"}, {Title: "The oasis"}},
		Ten: []schema.PlotPoint{{Title: "Betrayal"}},
	}
	if diff := cmp.Diff(want, syn, cmpopts.IgnoreFields(schema.PlotPoint{}, "ID")); diff != "" {
		t.Errorf("legacy synopsis mismatch (-want +got):\n%s", diff)
	}
	for _, p := range append(syn.Ki, syn.Ten...) {
		if p.ID == "" {
			t.Errorf("plot point %q has no id", p.Title)
		}
	}
}

func TestDecodePrefersEnvelope(t *testing.T) {
	enc, err := Encode(&schema.Character{Meta: testMeta("c-9"), WorkID: "w-1", Name: "From envelope"})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	blocks := append([]remote.Block{remote.Paragraph("Name: From paragraph")}, enc...)

	got, ok := Decode(schema.KindCharacter, blocks)
	if !ok {
		t.Fatal("Decode() failed")
	}
	if name := got.(*schema.Character).Name; name != "From envelope" {
		t.Errorf("Name = %q, want envelope value", name)
	}
}
