// Package schema provides the entity records stored by inkshelf.
package schema

import (
	"fmt"
	"time"
)

// Kind identifies an entity collection.
type Kind string

const (
	KindWork        Kind = "work"
	KindSynopsis    Kind = "synopsis"
	KindCharacter   Kind = "character"
	KindSetting     Kind = "setting"
	KindChapter     Kind = "chapter"
	KindEpisode     Kind = "episode"
	KindTagCategory Kind = "tag_category"
	KindTag         Kind = "tag"
)

// Kinds lists every entity kind in dependency order: owners before the
// records that reference them.
var Kinds = []Kind{
	KindWork,
	KindSynopsis,
	KindCharacter,
	KindSetting,
	KindChapter,
	KindEpisode,
	KindTagCategory,
	KindTag,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Meta holds the fields every record carries.
type Meta struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`

	// IsDirty marks a local change that has not been pushed yet.
	IsDirty bool `json:"is_dirty,omitempty"`
}

// Metadata returns the shared record fields.
func (m *Meta) Metadata() *Meta {
	return m
}

// Touch records a local modification.
func (m *Meta) Touch(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.IsDirty = true
}

// MarkSynced clears the dirty flag after a successful push or pull.
func (m *Meta) MarkSynced(now time.Time) {
	t := now
	m.SyncedAt = &t
	m.IsDirty = false
}

// SetDefaults fills missing timestamps.
func (m *Meta) SetDefaults() {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
}

func (m *Meta) validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

// Record is implemented by every entity type.
type Record interface {
	Kind() Kind
	Metadata() *Meta
	Validate() error

	// PageTitle is the title of the record's remote page.
	PageTitle() string
}

// New returns an empty record of the given kind.
func New(kind Kind) (Record, error) {
	switch kind {
	case KindWork:
		return &Work{}, nil
	case KindSynopsis:
		return &Synopsis{}, nil
	case KindCharacter:
		return &Character{}, nil
	case KindSetting:
		return &Setting{}, nil
	case KindChapter:
		return &Chapter{}, nil
	case KindEpisode:
		return &Episode{}, nil
	case KindTagCategory:
		return &TagCategory{}, nil
	case KindTag:
		return &Tag{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// Phase is one of the four narrative-structure phases.
type Phase string

const (
	PhaseKi    Phase = "ki"
	PhaseSho   Phase = "sho"
	PhaseTen   Phase = "ten"
	PhaseKetsu Phase = "ketsu"
)

// Phases lists the structural phases in narrative order.
var Phases = []Phase{PhaseKi, PhaseSho, PhaseTen, PhaseKetsu}

// Valid reports whether p is empty or a known phase.
func (p Phase) Valid() bool {
	if p == "" {
		return true
	}
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}
