package sync

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mschirtzinger/inkshelf/internal/shelf/codec"
	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// episodeTitle matches the page title of an episode: "Episode 3" or
// "Episode 3: The Bridge".
var episodeTitle = regexp.MustCompile(`(?i)^episode\s+(\d+)(?:\s*:\s*(.*))?$`)

// pullPass carries the state of one Pull call.
type pullPass struct {
	*syncer
	report *Report
}

// pagePointer is a child page seen while walking the tree.
type pagePointer struct {
	id      string
	title   string
	localID string
}

// Pull implements Syncer.Pull.
func (s *syncer) Pull(ctx context.Context) (*Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if err := s.checkPrerequisites(ctx); err != nil {
		return nil, err
	}

	report := newReport(DirectionPull, s.now())
	s.observer.PassStarted(DirectionPull)
	s.logger.Printf("Starting pull from %s", s.rootID)

	p := &pullPass{syncer: s, report: report}

	works, err := p.workPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list work pages: %w", err)
	}
	for _, wp := range works {
		if err := ctx.Err(); err != nil {
			s.logger.Printf("Pull cancelled: %v", err)
			break
		}
		p.pullWork(ctx, wp)
	}

	if ctx.Err() == nil {
		p.pullTags(ctx)
	}

	s.flush(ctx)
	return s.finish(report), nil
}

// workPages lists the work pages to walk: the mapped ones when the page map
// knows any works, otherwise every active page directly under the root.
func (p *pullPass) workPages(ctx context.Context) ([]pagePointer, error) {
	var works []pagePointer

	if mapped := p.pages.Entries(pagemap.Of(schema.KindWork)); len(mapped) > 0 {
		for localID, pageID := range mapped {
			page, err := p.client.RetrievePage(ctx, pageID)
			if err != nil {
				p.logger.Printf("WARNING: Failed to retrieve work page %s: %v", pageID, err)
				p.report.fail(schema.KindWork, wrap(schema.KindWork, localID, err))
				continue
			}
			if page.Archived {
				p.logger.Printf("Skipping archived work page %s (%s)", pageID, page.Title)
				p.report.skip(schema.KindWork, 1)
				continue
			}
			works = append(works, pagePointer{id: pageID, title: page.Title, localID: localID})
		}
	} else {
		pages, err := p.client.SearchPages(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			if !sameID(page.ParentID, p.rootID) || page.Archived || page.Title == titleTags {
				continue
			}
			works = append(works, pagePointer{id: page.ID, title: page.Title})
		}
	}

	sort.Slice(works, func(i, j int) bool { return works[i].id < works[j].id })
	return works, nil
}

func (p *pullPass) pullWork(ctx context.Context, wp pagePointer) {
	blocks, err := p.client.ListChildren(ctx, wp.id)
	if err != nil {
		p.failPage(schema.KindWork, wp.id, err)
		return
	}

	rec, err := p.save(ctx, schema.KindWork, pagePointer{id: wp.id, title: wp.title, localID: wp.localID}, blocks, nil)
	if err != nil {
		return
	}
	workID := rec.Metadata().ID

	stampWork := func(r schema.Record) {
		switch r := r.(type) {
		case *schema.Synopsis:
			r.WorkID = workID
		case *schema.Character:
			r.WorkID = workID
		case *schema.Setting:
			r.WorkID = workID
		}
	}

	for _, child := range childPages(blocks) {
		switch child.title {
		case titleSynopsis:
			p.pullLeaf(ctx, schema.KindSynopsis, child, stampWork)
		case titleCharacters:
			p.pages.Set(pagemap.ContainerCharacters, workID, child.id)
			p.pullContainer(ctx, schema.KindCharacter, child, stampWork)
		case titleSettings:
			p.pages.Set(pagemap.ContainerSettings, workID, child.id)
			p.pullContainer(ctx, schema.KindSetting, child, stampWork)
		case titleSerial:
			p.pages.Set(pagemap.ContainerSerial, workID, child.id)
			p.pullSerial(ctx, workID, child)
		}
	}
}

// pullContainer pulls every child page of a container as a record of kind.
func (p *pullPass) pullContainer(ctx context.Context, kind schema.Kind, container pagePointer, stamp func(schema.Record)) {
	blocks, err := p.client.ListChildren(ctx, container.id)
	if err != nil {
		p.logger.Printf("WARNING: Failed to list %s page %s: %v", container.title, container.id, err)
		return
	}
	p.pullLeaves(ctx, kind, childPages(blocks), stamp)
}

// pullLeaves pulls sibling pages through the batch scheduler.
func (p *pullPass) pullLeaves(ctx context.Context, kind schema.Kind, pages []pagePointer, stamp func(schema.Record)) {
	res := RunBatches(ctx, pages, p.width, p.delay, func(ctx context.Context, page pagePointer) error {
		p.pullLeaf(ctx, kind, page, stamp)
		return nil
	})
	for _, f := range res.Failed {
		p.failPage(kind, pages[f.Index].id, f.Err)
	}
}

func (p *pullPass) pullLeaf(ctx context.Context, kind schema.Kind, page pagePointer, stamp func(schema.Record)) {
	blocks, err := p.client.ListChildren(ctx, page.id)
	if err != nil {
		p.failPage(kind, page.id, err)
		return
	}
	p.save(ctx, kind, page, blocks, stamp)
}

// pullSerial walks a Serial page. Child pages holding a chapter are
// chapters with their episodes beneath them; pages holding an episode, or
// titled like one, are chapterless episodes.
func (p *pullPass) pullSerial(ctx context.Context, workID string, serial pagePointer) {
	blocks, err := p.client.ListChildren(ctx, serial.id)
	if err != nil {
		p.logger.Printf("WARNING: Failed to list Serial page %s: %v", serial.id, err)
		return
	}

	for _, child := range childPages(blocks) {
		if ctx.Err() != nil {
			return
		}
		content, err := p.client.ListChildren(ctx, child.id)
		if err != nil {
			p.logger.Printf("WARNING: Failed to list serial page %s: %v", child.id, err)
			continue
		}

		switch serialKind(child.title, content) {
		case schema.KindChapter:
			rec, err := p.save(ctx, schema.KindChapter, child, content, func(r schema.Record) {
				r.(*schema.Chapter).WorkID = workID
			})
			if err != nil {
				continue
			}
			chapterID := rec.Metadata().ID
			p.pullLeaves(ctx, schema.KindEpisode, childPages(content), func(r schema.Record) {
				ep := r.(*schema.Episode)
				ep.WorkID = workID
				ep.ChapterID = chapterID
			})

		case schema.KindEpisode:
			p.save(ctx, schema.KindEpisode, child, content, func(r schema.Record) {
				ep := r.(*schema.Episode)
				ep.WorkID = workID
				ep.ChapterID = ""
			})

		default:
			p.logger.Printf("Skipping unrecognised serial page %s (%s)", child.id, child.title)
		}
	}
}

// serialKind classifies a page under Serial.
func serialKind(title string, blocks []remote.Block) schema.Kind {
	content := remote.ContentBlocks(blocks)
	if kind, ok := codec.DetectKind(content); ok {
		return kind
	}
	if episodeTitle.MatchString(strings.TrimSpace(title)) {
		return schema.KindEpisode
	}
	if _, ok := codec.Decode(schema.KindChapter, content); ok || len(remote.ChildPages(blocks)) > 0 {
		return schema.KindChapter
	}
	return ""
}

// pullTags walks the Tags page: category pages, and tag pages beneath them.
func (p *pullPass) pullTags(ctx context.Context) {
	rootID, ok := p.pages.GetRoot(pagemap.RootTags)
	if !ok {
		pages, err := p.client.SearchPages(ctx, titleTags)
		if err != nil {
			p.logger.Printf("WARNING: Failed to search for Tags page: %v", err)
			return
		}
		for _, page := range pages {
			if page.Title == titleTags && sameID(page.ParentID, p.rootID) && !page.Archived {
				rootID, ok = page.ID, true
				break
			}
		}
		if !ok {
			return
		}
	}

	blocks, err := p.client.ListChildren(ctx, rootID)
	if err != nil {
		p.logger.Printf("WARNING: Failed to list Tags page %s: %v", rootID, err)
		return
	}
	p.pages.SetRoot(pagemap.RootTags, rootID)

	for _, child := range childPages(blocks) {
		if ctx.Err() != nil {
			return
		}
		content, err := p.client.ListChildren(ctx, child.id)
		if err != nil {
			p.failPage(schema.KindTagCategory, child.id, err)
			continue
		}
		rec, err := p.save(ctx, schema.KindTagCategory, child, content, nil)
		if err != nil {
			continue
		}
		categoryID := rec.Metadata().ID
		p.pullLeaves(ctx, schema.KindTag, childPages(content), func(r schema.Record) {
			r.(*schema.Tag).CategoryID = categoryID
		})
	}
}

// save decodes a page into a record, stamps its foreign keys, and writes it
// to the local store clean.
func (p *pullPass) save(ctx context.Context, kind schema.Kind, page pagePointer, blocks []remote.Block, stamp func(schema.Record)) (schema.Record, error) {
	rec, ok := codec.Decode(kind, remote.ContentBlocks(blocks))
	if !ok {
		rec = defaultRecord(kind, page.title)
	}
	fillTitle(rec, page.title)

	meta := rec.Metadata()
	meta.ID = p.resolveID(kind, page)
	meta.SetDefaults()
	meta.MarkSynced(p.now())
	if stamp != nil {
		stamp(rec)
	}

	if err := rec.Validate(); err != nil {
		p.failPage(kind, page.id, fmt.Errorf("invalid record: %w", err))
		return nil, err
	}
	if err := p.store.Put(ctx, rec); err != nil {
		p.failPage(kind, page.id, fmt.Errorf("failed to store record: %w", err))
		return nil, err
	}

	p.pages.Set(pagemap.Of(kind), meta.ID, page.id)
	p.report.succeed(kind)
	p.observer.EntitySynced(kind, meta.ID, page.id, nil)
	return rec, nil
}

// resolveID picks the local id for a pulled page: the known one, the page
// map's reverse entry, or a new id.
func (p *pullPass) resolveID(kind schema.Kind, page pagePointer) string {
	if page.localID != "" {
		return page.localID
	}
	if id, ok := p.pages.LocalID(pagemap.Of(kind), page.id); ok {
		return id
	}
	return uuid.NewString()
}

func (p *pullPass) failPage(kind schema.Kind, pageID string, err error) {
	serr := wrap(kind, "", err)
	p.logger.Printf("WARNING: Failed to pull %s page %s: %v", kind, pageID, err)
	p.report.fail(kind, serr)
	p.observer.EntitySynced(kind, "", pageID, serr)
}

// defaultRecord builds the minimal record for a page without decodable
// content, from its title.
func defaultRecord(kind schema.Kind, title string) schema.Record {
	switch kind {
	case schema.KindWork:
		return &schema.Work{Title: title}
	case schema.KindCharacter:
		return &schema.Character{Name: title}
	case schema.KindSetting:
		return &schema.Setting{Name: title}
	case schema.KindChapter:
		return &schema.Chapter{Title: title}
	case schema.KindEpisode:
		ep := &schema.Episode{Title: title}
		if m := episodeTitle.FindStringSubmatch(strings.TrimSpace(title)); m != nil {
			ep.Number, _ = strconv.Atoi(m[1])
			ep.Title = strings.TrimSpace(m[2])
		}
		return ep
	case schema.KindTagCategory:
		return &schema.TagCategory{Name: title}
	case schema.KindTag:
		return &schema.Tag{Name: title}
	default:
		return &schema.Synopsis{}
	}
}

// fillTitle sets a missing required title or name from the page title.
func fillTitle(rec schema.Record, title string) {
	switch r := rec.(type) {
	case *schema.Work:
		if r.Title == "" {
			r.Title = title
		}
	case *schema.TagCategory:
		if r.Name == "" {
			r.Name = title
		}
	case *schema.Tag:
		if r.Name == "" {
			r.Name = title
		}
	}
}

func childPages(blocks []remote.Block) []pagePointer {
	var pages []pagePointer
	for _, b := range remote.ChildPages(blocks) {
		pages = append(pages, pagePointer{id: b.ID, title: b.Text})
	}
	return pages
}

// sameID compares page ids with or without dashes.
func sameID(a, b string) bool {
	return strings.ReplaceAll(a, "-", "") == strings.ReplaceAll(b, "-", "")
}
