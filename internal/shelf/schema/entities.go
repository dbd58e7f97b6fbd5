package schema

import (
	"fmt"
	"time"
)

// maxTitleLen bounds titles and names so they fit a remote page title.
const maxTitleLen = 500

// Work is the top-level record that owns every per-project entity.
type Work struct {
	Meta
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	TagIDs      []string `json:"tag_ids,omitempty"`
}

func (w *Work) Kind() Kind { return KindWork }

func (w *Work) PageTitle() string {
	if w.Title == "" {
		return "Untitled"
	}
	return w.Title
}

// Validate checks if the Work has valid field values.
func (w *Work) Validate() error {
	if err := w.validate(); err != nil {
		return err
	}
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > maxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", maxTitleLen, len(w.Title))
	}
	return nil
}

// PlotPoint is one entry in a synopsis bucket.
type PlotPoint struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Synopsis holds the four-part structure of a work, one ordered bucket per
// phase.
type Synopsis struct {
	Meta
	WorkID string      `json:"work_id"`
	Ki     []PlotPoint `json:"ki,omitempty"`
	Sho    []PlotPoint `json:"sho,omitempty"`
	Ten    []PlotPoint `json:"ten,omitempty"`
	Ketsu  []PlotPoint `json:"ketsu,omitempty"`
}

func (s *Synopsis) Kind() Kind        { return KindSynopsis }
func (s *Synopsis) PageTitle() string { return "Synopsis" }

// Bucket returns the plot points for a phase.
func (s *Synopsis) Bucket(p Phase) []PlotPoint {
	switch p {
	case PhaseKi:
		return s.Ki
	case PhaseSho:
		return s.Sho
	case PhaseTen:
		return s.Ten
	case PhaseKetsu:
		return s.Ketsu
	}
	return nil
}

// Validate checks if the Synopsis has valid field values.
func (s *Synopsis) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.WorkID == "" {
		return fmt.Errorf("work_id is required")
	}
	return nil
}

// Character belongs to exactly one work.
type Character struct {
	Meta
	WorkID string `json:"work_id"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Order  int    `json:"order"`
	Notes  string `json:"notes,omitempty"`
}

func (c *Character) Kind() Kind { return KindCharacter }

func (c *Character) PageTitle() string {
	if c.Name == "" {
		return "Unnamed character"
	}
	return c.Name
}

// Validate checks if the Character has valid field values.
func (c *Character) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.WorkID == "" {
		return fmt.Errorf("work_id is required")
	}
	if len(c.Name) > maxTitleLen {
		return fmt.Errorf("name must be %d characters or less (got %d)", maxTitleLen, len(c.Name))
	}
	return nil
}

// Setting belongs to exactly one work.
type Setting struct {
	Meta
	WorkID   string `json:"work_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Order    int    `json:"order"`
	Notes    string `json:"notes,omitempty"`
}

func (s *Setting) Kind() Kind { return KindSetting }

func (s *Setting) PageTitle() string {
	if s.Name == "" {
		return "Unnamed setting"
	}
	return s.Name
}

// Validate checks if the Setting has valid field values.
func (s *Setting) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.WorkID == "" {
		return fmt.Errorf("work_id is required")
	}
	if len(s.Name) > maxTitleLen {
		return fmt.Errorf("name must be %d characters or less (got %d)", maxTitleLen, len(s.Name))
	}
	return nil
}

// Chapter groups episodes of a work.
type Chapter struct {
	Meta
	WorkID string `json:"work_id"`
	Title  string `json:"title"`
	Order  int    `json:"order"`
	Phase  Phase  `json:"phase,omitempty"`
}

func (c *Chapter) Kind() Kind { return KindChapter }

func (c *Chapter) PageTitle() string {
	if c.Title == "" {
		return fmt.Sprintf("Chapter %d", c.Order)
	}
	return c.Title
}

// Validate checks if the Chapter has valid field values.
func (c *Chapter) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.WorkID == "" {
		return fmt.Errorf("work_id is required")
	}
	if !c.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", c.Phase)
	}
	return nil
}

// EpisodeStats holds publication statistics copied in by the user.
type EpisodeStats struct {
	Views       int        `json:"views"`
	Likes       int        `json:"likes"`
	Comments    int        `json:"comments"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Episode is one installment of a work, optionally inside a chapter.
type Episode struct {
	Meta
	WorkID            string        `json:"work_id"`
	ChapterID         string        `json:"chapter_id,omitempty"`
	Number            int           `json:"number"`
	Title             string        `json:"title,omitempty"`
	Body              string        `json:"body,omitempty"`
	CharCount         int           `json:"char_count"`
	CharCountNoSpaces int           `json:"char_count_no_spaces"`
	Stats             *EpisodeStats `json:"stats,omitempty"`
}

func (e *Episode) Kind() Kind { return KindEpisode }

// PageTitle is "Episode N" with the episode title appended when present.
func (e *Episode) PageTitle() string {
	if e.Title == "" {
		return fmt.Sprintf("Episode %d", e.Number)
	}
	return fmt.Sprintf("Episode %d: %s", e.Number, e.Title)
}

// Recount recomputes the character counts from Body.
func (e *Episode) Recount() {
	e.CharCount, e.CharCountNoSpaces = CountChars(e.Body)
}

// Validate checks if the Episode has valid field values.
func (e *Episode) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.WorkID == "" {
		return fmt.Errorf("work_id is required")
	}
	if e.Number < 0 {
		return fmt.Errorf("number must be non-negative (got %d)", e.Number)
	}
	return nil
}

// TagCategory groups tags. Categories are global, not per work.
type TagCategory struct {
	Meta
	Name  string `json:"name"`
	Order int    `json:"order"`
	Color string `json:"color,omitempty"`
}

func (c *TagCategory) Kind() Kind { return KindTagCategory }

func (c *TagCategory) PageTitle() string {
	if c.Name == "" {
		return "Unnamed category"
	}
	return c.Name
}

// Validate checks if the TagCategory has valid field values.
func (c *TagCategory) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Tag belongs to exactly one category.
type Tag struct {
	Meta
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	Color      string `json:"color,omitempty"`
}

func (t *Tag) Kind() Kind { return KindTag }

func (t *Tag) PageTitle() string {
	if t.Name == "" {
		return "Unnamed tag"
	}
	return t.Name
}

// Validate checks if the Tag has valid field values.
func (t *Tag) Validate() error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.CategoryID == "" {
		return fmt.Errorf("category_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
