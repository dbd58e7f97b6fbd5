package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mschirtzinger/inkshelf/internal/shelf/codec"
	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// errCategoryUnknown fails tags whose category page is not known in this
// pass.
var errCategoryUnknown = errors.New("tag category page unknown")

// pushPass carries the state of one Push call.
type pushPass struct {
	*syncer
	opts   Options
	report *Report
	snap   *snapshot

	// categoryPages indexes category id to its page for this pass.
	mu            sync.Mutex
	categoryPages map[string]categoryPage
}

type categoryPage struct {
	id      string
	created bool
}

// Push implements Syncer.Push.
func (s *syncer) Push(ctx context.Context, opts Options) (*Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if err := s.checkPrerequisites(ctx); err != nil {
		return nil, err
	}

	snap, err := loadSnapshot(ctx, s.store)
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}

	report := newReport(DirectionPush, s.now())
	report.DryRun = opts.DryRun
	s.observer.PassStarted(DirectionPush)
	s.logger.Printf("Starting push to %s (all=%v)", s.rootID, opts.All)

	p := &pushPass{
		syncer:        s,
		opts:          opts,
		report:        report,
		snap:          snap,
		categoryPages: make(map[string]categoryPage),
	}
	sel := selector{opts: opts}

	for _, w := range snap.works {
		if err := ctx.Err(); err != nil {
			s.logger.Printf("Push cancelled: %v", err)
			break
		}
		p.visit(ctx, buildWork(sel, snap, w), s.rootID, false)
	}

	if ctx.Err() == nil {
		p.visit(ctx, buildTags(sel, snap), s.rootID, false)
	}

	s.flush(ctx)
	return s.finish(report), nil
}

// visit pushes n when it is pending or its parent page was just created,
// and counts its records as skipped otherwise.
func (p *pushPass) visit(ctx context.Context, n *node, parentID string, fresh bool) {
	if !fresh && !n.pending {
		p.skipSubtree(n)
		return
	}
	n.forced = fresh
	p.pushNode(ctx, n, parentID)
}

// pushNode writes one node and recurses into its children.
func (p *pushPass) pushNode(ctx context.Context, n *node, parentID string) {
	switch n.kind {
	case nodeWork:
		pageID, created, ok := p.pushRecord(ctx, n, parentID)
		if !ok {
			p.failChildren(ctx, n, errParentUnavailable)
			return
		}
		for _, child := range n.children {
			p.visit(ctx, child, pageID, created)
		}

	case nodeSynopsis, nodeCharacter, nodeSetting, nodeEpisode:
		p.pushRecord(ctx, n, parentID)

	case nodeCharacterContainer, nodeSettingContainer:
		pageID, created, ok := p.pushContainer(ctx, n, parentID)
		if !ok {
			return
		}
		p.pushBatch(ctx, n.children, pageID, created)

	case nodeSerial:
		pageID, created, ok := p.pushContainer(ctx, n, parentID)
		if !ok {
			return
		}
		var loose []*node
		for _, child := range n.children {
			if child.kind == nodeChapter {
				p.visit(ctx, child, pageID, created)
				continue
			}
			loose = append(loose, child)
		}
		p.pushBatch(ctx, loose, pageID, created)
		p.pushStatistics(ctx, n.workID, pageID)

	case nodeChapter:
		pageID, created, ok := p.pushRecord(ctx, n, parentID)
		if !ok {
			p.failChildren(ctx, n, errParentUnavailable)
			return
		}
		p.pushBatch(ctx, n.children, pageID, created)

	case nodeTagRoot:
		pageID, created, ok := p.pushTagRoot(ctx, n)
		if !ok {
			return
		}
		// Categories first, so every tag finds its parent in categoryPages.
		for _, c := range n.children {
			c.forced = created
		}
		res := RunBatches(ctx, n.children, p.width, p.delay, func(ctx context.Context, c *node) error {
			p.pushNode(ctx, c, pageID)
			return nil
		})
		for _, f := range res.Failed {
			if c := n.children[f.Index]; c.rec != nil {
				p.failRecord(ctx, c, f.Err)
			}
		}

		for _, category := range n.children {
			var fresh bool
			if category.rec != nil {
				p.mu.Lock()
				fresh = p.categoryPages[category.rec.Metadata().ID].created
				p.mu.Unlock()
			}
			p.pushBatch(ctx, category.children, "", fresh)
		}

	case nodeTagCategory:
		if n.rec == nil {
			return
		}
		pageID, created, ok := p.pushRecord(ctx, n, parentID)
		if ok {
			p.mu.Lock()
			p.categoryPages[n.rec.Metadata().ID] = categoryPage{id: pageID, created: created}
			p.mu.Unlock()
		}

	case nodeTag:
		tag := n.rec.(*schema.Tag)
		p.mu.Lock()
		category, ok := p.categoryPages[tag.CategoryID]
		p.mu.Unlock()
		if !ok {
			p.failRecord(ctx, n, errCategoryUnknown)
			return
		}
		p.pushRecord(ctx, n, category.id)
	}
}

// pushBatch pushes sibling nodes through the batch scheduler. Nodes that
// are not pending are skipped unless fresh says their parent page is new.
// Failures are already logged and counted by pushRecord.
func (p *pushPass) pushBatch(ctx context.Context, nodes []*node, parentID string, fresh bool) {
	var due []*node
	for _, n := range nodes {
		if !fresh && !n.pending {
			p.skipSubtree(n)
			continue
		}
		n.forced = fresh
		due = append(due, n)
	}
	if len(due) == 0 {
		return
	}
	res := RunBatches(ctx, due, p.width, p.delay, func(ctx context.Context, n *node) error {
		p.pushNode(ctx, n, parentID)
		return nil
	})
	for _, f := range res.Failed {
		p.failSubtree(ctx, due[f.Index], f.Err)
	}
}

// pushRecord upserts the page of a record node and reports whether a new
// page was created. On failure the record is counted as failed and ok is
// false; children are left to the caller.
func (p *pushPass) pushRecord(ctx context.Context, n *node, parentID string) (pageID string, created, ok bool) {
	rec := n.rec
	kind := rec.Kind()
	meta := rec.Metadata()

	if ep, isEpisode := rec.(*schema.Episode); isEpisode {
		ep.Recount()
	}

	blocks, err := codec.Encode(rec)
	if err != nil {
		p.failRecord(ctx, n, err)
		return "", false, false
	}

	mapKind := pagemap.Of(kind)
	existing, _ := p.pages.Get(mapKind, meta.ID)
	if n.forced {
		// A mapped page hangs under the parent page that was replaced.
		existing = ""
	}
	pageID, created, err = p.upserter.Upsert(ctx, Target{
		ParentID:   parentID,
		ExistingID: existing,
		Title:      rec.PageTitle(),
		Blocks:     blocks,
	})
	if err != nil {
		p.failRecord(ctx, n, err)
		return "", false, false
	}

	p.pages.Set(mapKind, meta.ID, pageID)
	if created {
		p.flush(ctx)
	}

	if n.selected || n.forced {
		p.markClean(ctx, rec)
		p.report.succeed(kind)
	} else {
		p.report.skip(kind, 1)
	}
	p.observer.EntitySynced(kind, meta.ID, pageID, nil)
	return pageID, created, true
}

// pushContainer ensures a work's container page.
func (p *pushPass) pushContainer(ctx context.Context, n *node, parentID string) (pageID string, created, ok bool) {
	mapKind, title := containerKind(n.kind)
	existing, _ := p.pages.Get(mapKind, n.workID)
	if n.forced {
		existing = ""
	}

	pageID, created, err := p.upserter.Upsert(ctx, Target{
		ParentID:   parentID,
		ExistingID: existing,
		Title:      title,
		Container:  true,
	})
	if err != nil {
		p.logger.Printf("WARNING: Failed to ensure %s page for work %s: %v", title, n.workID, err)
		if n.forced {
			p.pages.Delete(mapKind, n.workID)
		}
		p.failChildren(ctx, n, err)
		return "", false, false
	}

	p.pages.Set(mapKind, n.workID, pageID)
	if created {
		p.flush(ctx)
	}
	return pageID, created, true
}

// pushTagRoot ensures the shared Tags page under the remote root.
func (p *pushPass) pushTagRoot(ctx context.Context, n *node) (pageID string, created, ok bool) {
	existing, _ := p.pages.GetRoot(pagemap.RootTags)
	pageID, created, err := p.upserter.Upsert(ctx, Target{
		ParentID:   p.rootID,
		ExistingID: existing,
		Title:      titleTags,
		Container:  true,
	})
	if err != nil {
		p.logger.Printf("WARNING: Failed to ensure Tags page: %v", err)
		p.failChildren(ctx, n, err)
		return "", false, false
	}

	p.pages.SetRoot(pagemap.RootTags, pageID)
	if created {
		p.flush(ctx)
	}
	return pageID, created, true
}

// pushStatistics rewrites the statistics section of a Serial page.
func (p *pushPass) pushStatistics(ctx context.Context, workID, pageID string) {
	blocks := statisticsBlocks(p.snap, workID)
	changed, err := p.upserter.ReplaceSection(ctx, pageID, StatisticsMarker, blocks)
	if err != nil {
		p.logger.Printf("WARNING: Failed to update serial statistics for work %s: %v", workID, err)
		return
	}
	if changed {
		p.logger.Printf("Updated serial statistics for work %s", workID)
	}
}

func (p *pushPass) markClean(ctx context.Context, rec schema.Record) {
	if p.opts.DryRun {
		return
	}
	rec.Metadata().MarkSynced(p.now())
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Printf("WARNING: Failed to mark %s %s clean: %v", rec.Kind(), rec.Metadata().ID, err)
	}
}

// failRecord counts and logs a failed record node. A forced record loses
// its page mapping and is marked dirty so the next push recreates it under
// the new parent.
func (p *pushPass) failRecord(ctx context.Context, n *node, err error) {
	kind, id := n.rec.Kind(), n.rec.Metadata().ID
	serr := wrap(kind, id, err)
	p.logger.Printf("WARNING: Failed to sync %s %s: %v", kind, id, serr.Err)
	p.report.fail(kind, serr)
	p.observer.EntitySynced(kind, id, "", serr)

	if n.forced {
		p.pages.Delete(pagemap.Of(kind), id)
		if !n.selected {
			p.requeue(ctx, n.rec)
		}
	}
}

// requeue marks a clean record dirty again.
func (p *pushPass) requeue(ctx context.Context, rec schema.Record) {
	if p.opts.DryRun {
		return
	}
	rec.Metadata().IsDirty = true
	if err := p.store.Put(ctx, rec); err != nil {
		p.logger.Printf("WARNING: Failed to requeue %s %s: %v", rec.Kind(), rec.Metadata().ID, err)
	}
}

// failSubtree fails a node and, since they have no parent page, every node
// beneath it that the pass would have written.
func (p *pushPass) failSubtree(ctx context.Context, n *node, err error) {
	if n.rec != nil {
		p.failRecord(ctx, n, err)
	}
	p.failChildren(ctx, n, err)
}

// failChildren fails the children of a node whose page could not be
// written. Children a forced parent would have forced fail the same way.
func (p *pushPass) failChildren(ctx context.Context, n *node, err error) {
	if !errors.Is(err, errParentUnavailable) {
		err = fmt.Errorf("%w: %v", errParentUnavailable, err)
	}
	for _, child := range n.children {
		if !n.forced && !child.pending {
			p.skipSubtree(child)
			continue
		}
		child.forced = n.forced
		p.failSubtree(ctx, child, err)
	}
}

// skipSubtree counts every record at and beneath n as skipped.
func (p *pushPass) skipSubtree(n *node) {
	if n.rec != nil {
		p.report.skip(n.rec.Kind(), 1)
	}
	for _, child := range n.children {
		p.skipSubtree(child)
	}
}
