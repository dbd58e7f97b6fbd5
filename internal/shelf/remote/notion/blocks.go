package notion

import (
	"strings"

	"github.com/jomei/notionapi"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
)

// toNotionBlocks converts content blocks into Notion request blocks.
// Child-page blocks are never sent; pages are created through the page API.
func toNotionBlocks(blocks []remote.Block) []notionapi.Block {
	out := make([]notionapi.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case remote.BlockHeading:
			out = append(out, &notionapi.Heading2Block{
				BasicBlock: basic(notionapi.BlockTypeHeading2),
				Heading2:   notionapi.Heading{RichText: richText(b.Text)},
			})
		case remote.BlockCode:
			lang := b.Language
			if lang == "" {
				lang = "plain text"
			}
			out = append(out, &notionapi.CodeBlock{
				BasicBlock: basic(notionapi.BlockTypeCode),
				Code: notionapi.Code{
					RichText: richText(b.Text),
					Language: lang,
				},
			})
		case remote.BlockParagraph:
			out = append(out, &notionapi.ParagraphBlock{
				BasicBlock: basic(notionapi.BlockTypeParagraph),
				Paragraph:  notionapi.Paragraph{RichText: richText(b.Text)},
			})
		}
	}
	return out
}

// fromNotionBlock converts a listed Notion block into the remote model.
func fromNotionBlock(b notionapi.Block) remote.Block {
	id := string(b.GetID())
	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		return remote.Block{ID: id, Type: remote.BlockParagraph, Text: plainText(v.Paragraph.RichText)}
	case *notionapi.Heading2Block:
		return remote.Block{ID: id, Type: remote.BlockHeading, Text: plainText(v.Heading2.RichText)}
	case *notionapi.CodeBlock:
		return remote.Block{ID: id, Type: remote.BlockCode, Language: v.Code.Language, Text: plainText(v.Code.RichText)}
	case *notionapi.ChildPageBlock:
		return remote.Block{ID: id, Type: remote.BlockChildPage, Text: v.ChildPage.Title}
	}
	return remote.Block{ID: id, Type: remote.BlockUnsupported}
}

func basic(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

// richText splits text into segments that fit the per-segment limit.
// Splitting happens on rune boundaries.
func richText(text string) []notionapi.RichText {
	runes := []rune(text)
	if len(runes) == 0 {
		return []notionapi.RichText{}
	}
	var out []notionapi.RichText
	for start := 0; start < len(runes); start += maxRichTextLen {
		end := start + maxRichTextLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[start:end])},
		})
	}
	return out
}

// plainText joins rich-text segments back into a single string.
func plainText(segments []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range segments {
		if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
			continue
		}
		sb.WriteString(rt.PlainText)
	}
	return sb.String()
}
