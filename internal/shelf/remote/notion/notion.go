// Package notion implements remote.Client on top of the Notion public API
// using github.com/jomei/notionapi.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
)

// maxRichTextLen is the per-segment content limit Notion enforces on rich
// text. Long code blocks are split into consecutive segments.
const maxRichTextLen = 2000

// pageSize is the page size used for paginated listing calls.
const pageSize = 100

// Client adapts a notionapi.Client to remote.Client.
type Client struct {
	api *notionapi.Client
}

var _ remote.Client = (*Client)(nil)

// Config holds adapter options.
type Config struct {
	// Token is the integration secret.
	Token string

	// Timeout bounds each HTTP request (default: 30s).
	Timeout time.Duration
}

// New creates a Notion-backed client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("notion token is required: %w", remote.ErrUnauthorized)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	api := notionapi.NewClient(
		notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	return &Client{api: api}, nil
}

// CreatePage implements remote.Client.
func (c *Client) CreatePage(ctx context.Context, parentID, title string, blocks []remote.Block) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentID),
		},
		Properties: titleProperties(title),
		Children:   toNotionBlocks(blocks),
	}
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return "", classify("create page", parentID, err)
	}
	return string(page.ID), nil
}

// UpdatePage implements remote.Client.
//
// The Notion update request always carries both the title property and the
// archived flag. A title update is sent with archived=false, so it must only
// be issued against an active page; the sync engine restores archived pages
// before retitling them. An archive toggle without a title re-reads the page
// to resend its current title.
func (c *Client) UpdatePage(ctx context.Context, pageID string, update remote.PageUpdate) error {
	req := &notionapi.PageUpdateRequest{}
	if update.Archived != nil {
		req.Archived = *update.Archived
	}

	if update.Title != nil {
		req.Properties = titleProperties(*update.Title)
	} else {
		current, err := c.api.Page.Get(ctx, notionapi.PageID(pageID))
		if err != nil {
			return classify("update page", pageID, err)
		}
		req.Properties = titleProperties(pageTitle(current))
		if update.Archived == nil {
			req.Archived = current.Archived
		}
	}

	if _, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req); err != nil {
		return classify("update page", pageID, err)
	}
	return nil
}

// RetrievePage implements remote.Client.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (*remote.Page, error) {
	page, err := c.api.Page.Get(ctx, notionapi.PageID(pageID))
	if err != nil {
		return nil, classify("retrieve page", pageID, err)
	}
	p := toRemotePage(page)
	return &p, nil
}

// ListChildren implements remote.Client.
func (c *Client) ListChildren(ctx context.Context, pageID string) ([]remote.Block, error) {
	var (
		out    []remote.Block
		cursor string
	)
	for {
		resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
			StartCursor: notionapi.Cursor(cursor),
			PageSize:    pageSize,
		})
		if err != nil {
			return nil, classify("list children", pageID, err)
		}
		for _, b := range resp.Results {
			out = append(out, fromNotionBlock(b))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = string(resp.NextCursor)
	}
	return out, nil
}

// AppendChildren implements remote.Client.
func (c *Client) AppendChildren(ctx context.Context, pageID string, blocks []remote.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	_, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(pageID), &notionapi.AppendBlockChildrenRequest{
		Children: toNotionBlocks(blocks),
	})
	if err != nil {
		return classify("append children", pageID, err)
	}
	return nil
}

// DeleteBlock implements remote.Client.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	if _, err := c.api.Block.Delete(ctx, notionapi.BlockID(blockID)); err != nil {
		return classify("delete block", blockID, err)
	}
	return nil
}

// SearchPages implements remote.Client.
func (c *Client) SearchPages(ctx context.Context, query string) ([]remote.Page, error) {
	var (
		out    []remote.Page
		cursor notionapi.Cursor
	)
	for {
		resp, err := c.api.Search.Do(ctx, &notionapi.SearchRequest{
			Query:       query,
			StartCursor: cursor,
			PageSize:    pageSize,
		})
		if err != nil {
			return nil, classify("search", query, err)
		}
		for _, obj := range resp.Results {
			if page, ok := obj.(*notionapi.Page); ok {
				out = append(out, toRemotePage(page))
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
	return out, nil
}

// classify maps Notion API failures onto the remote error taxonomy.
func classify(op, id string, err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		code := string(apiErr.Code)
		msg := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Status == http.StatusNotFound || code == "object_not_found":
			return fmt.Errorf("%s %s: %s: %w", op, id, apiErr.Message, remote.ErrNotFound)
		case strings.Contains(msg, "archived"):
			return fmt.Errorf("%s %s: %s: %w", op, id, apiErr.Message, remote.ErrArchived)
		case apiErr.Status == http.StatusTooManyRequests || code == "rate_limited":
			return fmt.Errorf("%s %s: %w", op, id, remote.ErrRateLimited)
		case apiErr.Status == http.StatusUnauthorized || code == "unauthorized":
			return fmt.Errorf("%s %s: %w", op, id, remote.ErrUnauthorized)
		}
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func titleProperties(title string) notionapi.Properties {
	return notionapi.Properties{
		"title": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(title),
		},
	}
}

// pageTitle extracts the plain-text title from a page's title property.
func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		switch p := prop.(type) {
		case *notionapi.TitleProperty:
			return plainText(p.Title)
		case notionapi.TitleProperty:
			return plainText(p.Title)
		}
	}
	return ""
}

func toRemotePage(page *notionapi.Page) remote.Page {
	p := remote.Page{
		ID:       string(page.ID),
		Title:    pageTitle(page),
		Archived: page.Archived,
	}
	if page.Parent.Type == notionapi.ParentTypePageID {
		p.ParentID = string(page.Parent.PageID)
	}
	return p
}
