package sync

import (
	"context"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// Store is the local record store the engine reads from and writes to.
//
// The SQLite store in internal/shelf/db implements it.
type Store interface {
	// List returns every record of a kind.
	List(ctx context.Context, kind schema.Kind) ([]schema.Record, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec schema.Record) error
}

// snapshot is every local record, grouped the way the push tree needs them.
type snapshot struct {
	works      []*schema.Work
	synopses   map[string]*schema.Synopsis // by work id
	characters map[string][]*schema.Character
	settings   map[string][]*schema.Setting
	chapters   map[string][]*schema.Chapter
	episodes   map[string][]*schema.Episode // by chapter id, "" for chapterless, per work
	categories []*schema.TagCategory
	tags       map[string][]*schema.Tag // by category id
}

// episodeKey groups episodes by work and chapter.
func episodeKey(workID, chapterID string) string {
	return workID + "\x00" + chapterID
}

func loadSnapshot(ctx context.Context, store Store) (*snapshot, error) {
	s := &snapshot{
		synopses:   make(map[string]*schema.Synopsis),
		characters: make(map[string][]*schema.Character),
		settings:   make(map[string][]*schema.Setting),
		chapters:   make(map[string][]*schema.Chapter),
		episodes:   make(map[string][]*schema.Episode),
		tags:       make(map[string][]*schema.Tag),
	}

	chapterWork := make(map[string]string) // chapter id -> work id
	for _, kind := range schema.Kinds {
		recs, err := store.List(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			switch r := rec.(type) {
			case *schema.Work:
				s.works = append(s.works, r)
			case *schema.Synopsis:
				s.synopses[r.WorkID] = r
			case *schema.Character:
				s.characters[r.WorkID] = append(s.characters[r.WorkID], r)
			case *schema.Setting:
				s.settings[r.WorkID] = append(s.settings[r.WorkID], r)
			case *schema.Chapter:
				s.chapters[r.WorkID] = append(s.chapters[r.WorkID], r)
				chapterWork[r.ID] = r.WorkID
			case *schema.Episode:
				// Episodes of a deleted chapter, or of a chapter in another
				// work, are pushed as chapterless.
				chapterID := r.ChapterID
				if owner, ok := chapterWork[chapterID]; !ok || owner != r.WorkID {
					chapterID = ""
				}
				key := episodeKey(r.WorkID, chapterID)
				s.episodes[key] = append(s.episodes[key], r)
			case *schema.TagCategory:
				s.categories = append(s.categories, r)
			case *schema.Tag:
				s.tags[r.CategoryID] = append(s.tags[r.CategoryID], r)
			}
		}
	}
	return s, nil
}

// serialEpisodes returns every episode of a work, chaptered and chapterless.
func (s *snapshot) serialEpisodes(workID string) []*schema.Episode {
	eps := append([]*schema.Episode(nil), s.episodes[episodeKey(workID, "")]...)
	for _, ch := range s.chapters[workID] {
		eps = append(eps, s.episodes[episodeKey(workID, ch.ID)]...)
	}
	return eps
}
