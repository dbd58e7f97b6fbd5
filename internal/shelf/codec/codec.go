// Package codec converts records to and from remote content blocks.
//
// Every record is written as a single code block holding a JSON envelope:
//
//	{"format":"inkshelf/v1","kind":"character","data":{...}}
//
// The envelope carries the full field set, so decoding never depends on page
// titles or on the remote's own typed properties. Sync bookkeeping (synced_at,
// is_dirty) is local state and is not written, so a decoded record always
// comes back clean with a nil SyncedAt. Callers that pull stamp both
// themselves.
//
// Pages written before the envelope existed hold one "Label: value" paragraph
// per field. Decode falls back to reading those when no envelope is present.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// Format identifies the envelope version written by Encode.
const Format = "inkshelf/v1"

// formatPrefix matches every envelope version this package can read.
const formatPrefix = "inkshelf/"

// Language is the code-block language tag used for envelopes.
const Language = "json"

type envelope struct {
	Format string          `json:"format"`
	Kind   schema.Kind     `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

// Encode serializes rec into the blocks of its remote page.
func Encode(rec schema.Record) ([]remote.Block, error) {
	data, err := marshalData(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", rec.Kind(), rec.Metadata().ID, err)
	}
	env, err := json.Marshal(envelope{Format: Format, Kind: rec.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", rec.Kind(), err)
	}
	return []remote.Block{remote.Code(Language, string(env))}, nil
}

// marshalData marshals rec with the local-only sync fields cleared.
func marshalData(rec schema.Record) ([]byte, error) {
	meta := rec.Metadata()
	syncedAt, dirty := meta.SyncedAt, meta.IsDirty
	meta.SyncedAt, meta.IsDirty = nil, false
	defer func() { meta.SyncedAt, meta.IsDirty = syncedAt, dirty }()

	return json.Marshal(rec)
}

// Decode reconstructs a record of the given kind from page blocks.
//
// The structured envelope is preferred. Without one, the legacy label/value
// paragraphs are tried. The second return value is false when neither form is
// present, in which case the caller should fall back to title-derived
// defaults. The record's IsDirty and SyncedAt are never set.
func Decode(kind schema.Kind, blocks []remote.Block) (schema.Record, bool) {
	for _, b := range blocks {
		env, ok := parseEnvelope(b)
		if !ok || env.Kind != kind {
			continue
		}
		rec, err := schema.New(kind)
		if err != nil {
			return nil, false
		}
		if err := json.Unmarshal(env.Data, rec); err != nil {
			continue
		}
		return rec, true
	}
	return decodeLegacy(kind, blocks)
}

// DetectKind reports the kind of the first envelope found in blocks.
func DetectKind(blocks []remote.Block) (schema.Kind, bool) {
	for _, b := range blocks {
		if env, ok := parseEnvelope(b); ok && env.Kind.Valid() {
			return env.Kind, true
		}
	}
	return "", false
}

func parseEnvelope(b remote.Block) (envelope, bool) {
	if b.Type != remote.BlockCode {
		return envelope{}, false
	}
	text := strings.TrimSpace(b.Text)
	if !strings.HasPrefix(text, "{") {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return envelope{}, false
	}
	if !strings.HasPrefix(env.Format, formatPrefix) || len(env.Data) == 0 {
		return envelope{}, false
	}
	return env, true
}
