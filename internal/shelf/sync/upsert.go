package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
)

// Target describes the page an entity should have on the remote.
type Target struct {
	// ParentID is the page new pages are created under.
	ParentID string

	// ExistingID is the mapped page id, empty when the entity has never been
	// pushed.
	ExistingID string

	Title  string
	Blocks []remote.Block

	// Container pages hold only child pages (and sections managed
	// separately), so their content is never compared or replaced.
	Container bool
}

// Upserter makes a remote page match a Target with as few writes as
// possible.
type Upserter struct {
	client remote.Client
}

// NewUpserter returns an Upserter over client.
func NewUpserter(client remote.Client) *Upserter {
	return &Upserter{client: client}
}

// Upsert ensures the target page exists and holds the target title and
// content. It returns the page id and whether a new page was created.
//
// A mapped page that is missing, or archived and cannot be restored, is
// replaced by a new page under ParentID. Calling Upsert twice with the same
// target performs no block mutation and no title update the second time.
func (u *Upserter) Upsert(ctx context.Context, t Target) (string, bool, error) {
	if t.ExistingID != "" {
		err := u.update(ctx, t)
		if err == nil {
			return t.ExistingID, false, nil
		}
		if !remote.IsRecoverable(err) {
			return "", false, &Error{Class: classify(err), Err: err}
		}
	}

	id, err := u.client.CreatePage(ctx, t.ParentID, t.Title, t.Blocks)
	if err != nil {
		return "", false, &Error{Class: classify(err), Err: fmt.Errorf("failed to create page %q: %w", t.Title, err)}
	}
	return id, true, nil
}

func (u *Upserter) update(ctx context.Context, t Target) error {
	page, err := u.client.RetrievePage(ctx, t.ExistingID)
	if err != nil {
		return fmt.Errorf("failed to retrieve page %s: %w", t.ExistingID, err)
	}

	if page.Archived {
		restore := false
		if err := u.client.UpdatePage(ctx, t.ExistingID, remote.PageUpdate{Archived: &restore}); err != nil {
			return fmt.Errorf("failed to restore page %s: %w", t.ExistingID, errors.Join(remote.ErrArchived, err))
		}
	}

	if page.Title != t.Title {
		title := t.Title
		if err := u.client.UpdatePage(ctx, t.ExistingID, remote.PageUpdate{Title: &title}); err != nil {
			return fmt.Errorf("failed to rename page %s: %w", t.ExistingID, err)
		}
	}

	if t.Container {
		return nil
	}

	children, err := u.client.ListChildren(ctx, t.ExistingID)
	if err != nil {
		return fmt.Errorf("failed to list page %s: %w", t.ExistingID, err)
	}
	content := remote.ContentBlocks(children)
	if remote.SameContent(content, t.Blocks) {
		return nil
	}
	return u.replace(ctx, t.ExistingID, content, t.Blocks)
}

// replace deletes the given content blocks and appends blocks in one call.
// Child pages are never passed in, so nested pages survive.
func (u *Upserter) replace(ctx context.Context, pageID string, old, blocks []remote.Block) error {
	for _, b := range old {
		if err := u.client.DeleteBlock(ctx, b.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("failed to delete block %s: %w", b.ID, err)
		}
	}
	if len(blocks) == 0 {
		return nil
	}
	if err := u.client.AppendChildren(ctx, pageID, blocks); err != nil {
		return fmt.Errorf("failed to append content to page %s: %w", pageID, err)
	}
	return nil
}

// ReplaceSection rewrites the trailing section of a page that starts at a
// heading with the given marker text. Blocks before the marker and every
// child page are kept. Nothing is written when the section already matches.
// It reports whether the page was changed.
func (u *Upserter) ReplaceSection(ctx context.Context, pageID, marker string, blocks []remote.Block) (bool, error) {
	children, err := u.client.ListChildren(ctx, pageID)
	if err != nil {
		return false, &Error{Class: classify(err), Err: fmt.Errorf("failed to list page %s: %w", pageID, err)}
	}

	var section []remote.Block
	for i, b := range children {
		if b.Type == remote.BlockHeading && b.Text == marker {
			section = remote.ContentBlocks(children[i:])
			break
		}
	}

	if remote.SameContent(section, blocks) {
		return false, nil
	}
	if err := u.replace(ctx, pageID, section, blocks); err != nil {
		return false, &Error{Class: classify(err), Err: err}
	}
	return true, nil
}
