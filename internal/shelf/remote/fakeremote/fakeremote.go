// Package fakeremote provides an in-memory remote.Client.
//
// It models pages, child-page blocks and archival the way the real workspace
// does, counts every call, and lets tests inject failures. The CLI also uses
// it for --dry-run passes.
package fakeremote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
)

// Op names a Client method for counting and failure injection.
type Op string

const (
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpRetrieve Op = "retrieve"
	OpList     Op = "list"
	OpAppend   Op = "append"
	OpDelete   Op = "delete"
	OpSearch   Op = "search"
)

// FailFunc decides whether a call should fail. id is the page or block id
// the call targets (the parent id for creates, the title for searches).
type FailFunc func(op Op, id string) error

type page struct {
	id       string
	parentID string
	title    string
	archived bool
	children []remote.Block
}

// Remote is an in-memory workspace. The zero value is not usable; call New.
type Remote struct {
	mu     sync.Mutex
	pages  map[string]*page
	blocks map[string]string // content block id -> owning page id
	seq    int
	calls  map[Op]int
	fail   FailFunc
}

var _ remote.Client = (*Remote)(nil)

// New returns an empty workspace.
func New() *Remote {
	return &Remote{
		pages:  make(map[string]*page),
		blocks: make(map[string]string),
		calls:  make(map[Op]int),
	}
}

// AddRoot creates a top-level page with no parent and returns its id.
func (r *Remote) AddRoot(title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID("page")
	r.pages[id] = &page{id: id, title: title}
	return id
}

// SetFailFunc installs a failure injector. Pass nil to clear it.
func (r *Remote) SetFailFunc(fn FailFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

// Calls returns how many times op was invoked.
func (r *Remote) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// BlockMutations returns the number of append and delete calls.
func (r *Remote) BlockMutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[OpAppend] + r.calls[OpDelete]
}

// ResetCalls zeroes every call counter.
func (r *Remote) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[Op]int)
}

// Archive soft-deletes a page as a user would from the workspace UI.
func (r *Remote) Archive(pageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pages[pageID]; ok {
		p.archived = true
	}
}

// Purge permanently deletes a page and all of its descendants.
func (r *Remote) Purge(pageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purge(pageID)
}

func (r *Remote) purge(pageID string) {
	p, ok := r.pages[pageID]
	if !ok {
		return
	}
	// Purging a child page removes it from p.children, so walk a copy.
	kids := append([]remote.Block(nil), p.children...)
	for _, b := range kids {
		if b.IsChildPage() {
			r.purge(b.ID)
		} else {
			delete(r.blocks, b.ID)
		}
	}
	if parent, ok := r.pages[p.parentID]; ok {
		parent.children = removeBlock(parent.children, pageID)
	}
	delete(r.pages, pageID)
}

// Page returns a copy of a page's metadata, or false if it does not exist.
func (r *Remote) Page(pageID string) (remote.Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[pageID]
	if !ok {
		return remote.Page{}, false
	}
	return p.meta(), true
}

// Content returns a copy of a page's content blocks (child pages excluded).
func (r *Remote) Content(pageID string) []remote.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[pageID]
	if !ok {
		return nil
	}
	return remote.ContentBlocks(p.children)
}

// SetContent overwrites a page's content blocks directly, bypassing call
// counting. Used to seed legacy or corrupted remote data.
func (r *Remote) SetContent(pageID string, blocks []remote.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[pageID]
	if !ok {
		return
	}
	kept := remote.ChildPages(p.children)
	p.children = append(r.assignIDs(pageID, blocks), kept...)
}

// PageCount returns the number of pages, archived ones included.
func (r *Remote) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// ChildTitles returns the titles of a page's child pages in order.
func (r *Remote) ChildTitles(pageID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[pageID]
	if !ok {
		return nil
	}
	var titles []string
	for _, b := range p.children {
		if b.IsChildPage() {
			titles = append(titles, b.Text)
		}
	}
	return titles
}

// CreatePage implements remote.Client.
func (r *Remote) CreatePage(ctx context.Context, parentID, title string, blocks []remote.Block) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpCreate, parentID); err != nil {
		return "", err
	}
	parent, ok := r.pages[parentID]
	if !ok {
		return "", fmt.Errorf("create under %s: %w", parentID, remote.ErrNotFound)
	}
	if r.archivedChain(parent) {
		return "", fmt.Errorf("create under %s: %w", parentID, remote.ErrArchived)
	}

	id := r.nextID("page")
	p := &page{id: id, parentID: parentID, title: title}
	p.children = r.assignIDs(id, blocks)
	r.pages[id] = p
	parent.children = append(parent.children, remote.Block{ID: id, Type: remote.BlockChildPage, Text: title})
	return id, nil
}

// UpdatePage implements remote.Client.
func (r *Remote) UpdatePage(ctx context.Context, pageID string, update remote.PageUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpUpdate, pageID); err != nil {
		return err
	}
	p, ok := r.pages[pageID]
	if !ok {
		return fmt.Errorf("update %s: %w", pageID, remote.ErrNotFound)
	}

	if update.Archived != nil {
		if !*update.Archived {
			if parent, ok := r.pages[p.parentID]; ok && r.archivedChain(parent) {
				return fmt.Errorf("restore %s: parent chain: %w", pageID, remote.ErrArchived)
			}
		}
		p.archived = *update.Archived
	} else if p.archived {
		return fmt.Errorf("update %s: %w", pageID, remote.ErrArchived)
	}

	if update.Title != nil {
		p.title = *update.Title
		if parent, ok := r.pages[p.parentID]; ok {
			for i := range parent.children {
				if parent.children[i].ID == pageID {
					parent.children[i].Text = p.title
				}
			}
		}
	}
	return nil
}

// RetrievePage implements remote.Client.
func (r *Remote) RetrievePage(ctx context.Context, pageID string) (*remote.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpRetrieve, pageID); err != nil {
		return nil, err
	}
	p, ok := r.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("retrieve %s: %w", pageID, remote.ErrNotFound)
	}
	meta := p.meta()
	meta.Archived = r.archivedChain(p)
	return &meta, nil
}

// ListChildren implements remote.Client.
func (r *Remote) ListChildren(ctx context.Context, pageID string) ([]remote.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpList, pageID); err != nil {
		return nil, err
	}
	p, ok := r.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", pageID, remote.ErrNotFound)
	}
	var out []remote.Block
	for _, b := range p.children {
		if b.IsChildPage() {
			if child, ok := r.pages[b.ID]; ok && child.archived {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// AppendChildren implements remote.Client.
func (r *Remote) AppendChildren(ctx context.Context, pageID string, blocks []remote.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpAppend, pageID); err != nil {
		return err
	}
	p, ok := r.pages[pageID]
	if !ok {
		return fmt.Errorf("append to %s: %w", pageID, remote.ErrNotFound)
	}
	if r.archivedChain(p) {
		return fmt.Errorf("append to %s: %w", pageID, remote.ErrArchived)
	}
	p.children = append(p.children, r.assignIDs(pageID, blocks)...)
	return nil
}

// DeleteBlock implements remote.Client.
func (r *Remote) DeleteBlock(ctx context.Context, blockID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpDelete, blockID); err != nil {
		return err
	}
	if _, ok := r.pages[blockID]; ok {
		r.pages[blockID].archived = true
		return nil
	}
	owner, ok := r.blocks[blockID]
	if !ok {
		return fmt.Errorf("delete %s: %w", blockID, remote.ErrNotFound)
	}
	if p, ok := r.pages[owner]; ok {
		p.children = removeBlock(p.children, blockID)
	}
	delete(r.blocks, blockID)
	return nil
}

// SearchPages implements remote.Client.
func (r *Remote) SearchPages(ctx context.Context, query string) ([]remote.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.begin(ctx, OpSearch, query); err != nil {
		return nil, err
	}
	var out []remote.Page
	for _, p := range r.pages {
		if query == "" || strings.Contains(strings.ToLower(p.title), strings.ToLower(query)) {
			meta := p.meta()
			meta.Archived = r.archivedChain(p)
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Remote) begin(ctx context.Context, op Op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.calls[op]++
	if r.fail != nil {
		if err := r.fail(op, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%04d", prefix, r.seq)
}

func (r *Remote) assignIDs(pageID string, blocks []remote.Block) []remote.Block {
	out := make([]remote.Block, 0, len(blocks))
	for _, b := range blocks {
		b.ID = r.nextID("block")
		r.blocks[b.ID] = pageID
		out = append(out, b)
	}
	return out
}

// archivedChain reports whether p or any ancestor is archived.
func (r *Remote) archivedChain(p *page) bool {
	for p != nil {
		if p.archived {
			return true
		}
		p = r.pages[p.parentID]
	}
	return false
}

func (p *page) meta() remote.Page {
	return remote.Page{ID: p.id, ParentID: p.parentID, Title: p.title, Archived: p.archived}
}

func removeBlock(blocks []remote.Block, id string) []remote.Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}
