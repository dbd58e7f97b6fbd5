package schema

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CountChars returns the number of characters in a rich-text body with markup
// removed, with and without whitespace.
func CountChars(body string) (total, noSpaces int) {
	text := StripMarkup(body)
	total = utf8.RuneCountInString(text)
	for _, r := range text {
		if !unicode.IsSpace(r) {
			noSpaces++
		}
	}
	return total, noSpaces
}

// StripMarkup removes HTML tags and decodes entities. Block-level closing
// tags become newlines so paragraphs stay separated.
func StripMarkup(body string) string {
	var sb strings.Builder
	inTag := false
	var tag strings.Builder
	for _, r := range body {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			name := strings.ToLower(strings.TrimSpace(tag.String()))
			if name == "/p" || name == "br" || name == "br/" || name == "br /" {
				sb.WriteByte('\n')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(html.UnescapeString(sb.String()), "\n")
}
