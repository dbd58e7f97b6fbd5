// Package pagemap keeps the durable mapping from local record ids to remote
// page ids.
//
// Entries are grouped by Kind: every entity kind, plus one kind per container
// page a work owns (its Characters, Settings and Serial pages, keyed by the
// work id). A small set of root slots holds pages that belong to no record,
// such as the shared Tags page.
//
// The whole map is one JSON blob that is read once on Open and written back
// whole on Flush through a Backend.
package pagemap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// Kind groups map entries.
type Kind string

// Container kinds, keyed by the owning work's id.
const (
	ContainerCharacters Kind = "container:characters"
	ContainerSettings   Kind = "container:settings"
	ContainerSerial     Kind = "container:serial"
)

// Of returns the map kind for an entity kind.
func Of(k schema.Kind) Kind {
	return Kind(k)
}

// Root slots.
const (
	RootTags = "tags"
)

// blobVersion is written into every saved blob.
const blobVersion = 1

type blob struct {
	Version int                        `json:"version"`
	Roots   map[string]string          `json:"roots,omitempty"`
	Pages   map[Kind]map[string]string `json:"pages"`
}

// Backend stores the serialized map.
type Backend interface {
	// Load returns the stored blob, or nil when nothing has been saved yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error
}

// Map is the in-memory page id map. It is safe for concurrent use.
type Map struct {
	backend Backend

	mu    sync.Mutex
	roots map[string]string
	pages map[Kind]map[string]string
	dirty bool
}

// Open loads the map from backend.
func Open(ctx context.Context, backend Backend) (*Map, error) {
	m := &Map{
		backend: backend,
		roots:   make(map[string]string),
		pages:   make(map[Kind]map[string]string),
	}

	data, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load page map: %w", err)
	}
	if len(data) == 0 {
		return m, nil
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse page map: %w", err)
	}
	for slot, id := range b.Roots {
		m.roots[slot] = id
	}
	for kind, entries := range b.Pages {
		m.pages[kind] = make(map[string]string, len(entries))
		for local, page := range entries {
			m.pages[kind][local] = page
		}
	}
	return m, nil
}

// Get returns the page id recorded for a local id.
func (m *Map) Get(kind Kind, localID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.pages[kind][localID]
	return id, ok
}

// Set records the page id for a local id. It does not persist; call Flush.
func (m *Map) Set(kind Kind, localID, pageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.pages[kind]
	if !ok {
		entries = make(map[string]string)
		m.pages[kind] = entries
	}
	if entries[localID] == pageID {
		return
	}
	entries[localID] = pageID
	m.dirty = true
}

// Delete removes the entry for a local id.
func (m *Map) Delete(kind Kind, localID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[kind][localID]; !ok {
		return
	}
	delete(m.pages[kind], localID)
	m.dirty = true
}

// GetRoot returns the page id stored in a root slot.
func (m *Map) GetRoot(slot string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.roots[slot]
	return id, ok
}

// SetRoot stores a page id in a root slot.
func (m *Map) SetRoot(slot, pageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roots[slot] == pageID {
		return
	}
	m.roots[slot] = pageID
	m.dirty = true
}

// Entries returns a copy of every entry of a kind, local id to page id.
func (m *Map) Entries(kind Kind) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.pages[kind]))
	for local, page := range m.pages[kind] {
		out[local] = page
	}
	return out
}

// LocalID is the reverse lookup: the local id mapped to pageID.
func (m *Map) LocalID(kind Kind, pageID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for local, page := range m.pages[kind] {
		if page == pageID {
			return local, true
		}
	}
	return "", false
}

// Len returns the number of entries across all kinds.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, entries := range m.pages {
		n += len(entries)
	}
	return n
}

// Flush writes the map through the backend if it changed since the last
// flush.
func (m *Map) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	data, err := json.MarshalIndent(blob{Version: blobVersion, Roots: m.roots, Pages: m.pages}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode page map: %w", err)
	}
	if err := m.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save page map: %w", err)
	}
	m.dirty = false
	return nil
}
