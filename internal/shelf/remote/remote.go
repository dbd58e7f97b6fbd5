// Package remote defines the hierarchical page/block workspace that inkshelf
// mirrors its local object graph onto.
//
// The workspace has exactly two primitives:
//
//   - pages, which hold a title and an ordered list of child blocks, some of
//     which are themselves child pages
//   - blocks, the ordered content of a page (paragraphs, headings, code)
//
// Client is implemented by the Notion adapter in remote/notion and by the
// in-memory fake in remote/fakeremote.
package remote

import (
	"context"
	"strings"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	// BlockParagraph is a plain paragraph of text.
	BlockParagraph BlockType = "paragraph"
	// BlockHeading is a section heading.
	BlockHeading BlockType = "heading_2"
	// BlockCode is a preformatted code block with a language tag.
	BlockCode BlockType = "code"
	// BlockChildPage marks a nested page inside a page's children.
	BlockChildPage BlockType = "child_page"
	// BlockUnsupported is any block type inkshelf does not interpret.
	BlockUnsupported BlockType = "unsupported"
)

// Block is one entry in a page's children.
//
// ID is assigned by the remote and is empty for blocks that have not been
// written yet. For child-page blocks, ID is the child page's id and Text is
// its title.
type Block struct {
	ID       string
	Type     BlockType
	Text     string
	Language string
}

// IsChildPage reports whether the block is a nested page rather than content.
func (b Block) IsChildPage() bool {
	return b.Type == BlockChildPage
}

// Normalize returns the structural form of a block used for equality checks.
// Remote-assigned ids are ignored, and line endings and trailing whitespace
// are folded so a round trip through the remote compares equal.
func (b Block) Normalize() string {
	text := strings.ReplaceAll(b.Text, "\r\n", "\n")
	text = strings.TrimRight(text, " \n\t")
	return string(b.Type) + "\x00" + b.Language + "\x00" + text
}

// Paragraph builds a paragraph block.
func Paragraph(text string) Block {
	return Block{Type: BlockParagraph, Text: text}
}

// Heading builds a heading block.
func Heading(text string) Block {
	return Block{Type: BlockHeading, Text: text}
}

// Code builds a code block with the given language tag.
func Code(language, text string) Block {
	return Block{Type: BlockCode, Language: language, Text: text}
}

// ContentBlocks filters out child-page blocks, leaving the page's own content.
func ContentBlocks(blocks []Block) []Block {
	content := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if !b.IsChildPage() {
			content = append(content, b)
		}
	}
	return content
}

// ChildPages returns only the child-page blocks.
func ChildPages(blocks []Block) []Block {
	var pages []Block
	for _, b := range blocks {
		if b.IsChildPage() {
			pages = append(pages, b)
		}
	}
	return pages
}

// SameContent reports whether two block lists are structurally identical.
func SameContent(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Normalize() != b[i].Normalize() {
			return false
		}
	}
	return true
}

// Page is the metadata of a remote page.
type Page struct {
	ID       string
	ParentID string
	Title    string
	Archived bool
}

// PageUpdate carries the optional fields of an update call. Nil fields are
// left unchanged.
type PageUpdate struct {
	Title    *string
	Archived *bool
}

// Client is the subset of the remote workspace API used by the sync engine.
//
// Implementations must return errors that satisfy errors.Is(err, ErrNotFound)
// when a page or block id no longer resolves, and errors.Is(err, ErrArchived)
// when an operation is refused because the target (or one of its ancestors)
// is archived.
type Client interface {
	// CreatePage creates a page under parentID with the given title and
	// initial content and returns the new page id.
	CreatePage(ctx context.Context, parentID, title string, blocks []Block) (string, error)

	// UpdatePage changes the title and/or archived flag of a page.
	UpdatePage(ctx context.Context, pageID string, update PageUpdate) error

	// RetrievePage fetches page metadata.
	RetrievePage(ctx context.Context, pageID string) (*Page, error)

	// ListChildren returns every child block of a page, in order, following
	// pagination internally.
	ListChildren(ctx context.Context, pageID string) ([]Block, error)

	// AppendChildren appends blocks to the end of a page in a single call.
	AppendChildren(ctx context.Context, pageID string, blocks []Block) error

	// DeleteBlock removes a single block.
	DeleteBlock(ctx context.Context, blockID string) error

	// SearchPages lists pages visible to the integration whose title
	// contains query (empty query lists everything).
	SearchPages(ctx context.Context, query string) ([]Page, error)
}
