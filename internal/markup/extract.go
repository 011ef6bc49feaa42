package markup

import "strings"

// TagOccurrence is a single parenthesised tag found in marked-up text.
type TagOccurrence struct {
	// Name is the tag name with surrounding whitespace trimmed, without
	// parentheses.
	Name string

	// Offset is the byte offset of the opening parenthesis in the scanned
	// text.
	Offset int
}

// ExtractTags scans text for `(name)` spans and returns them in document
// order. The scan is non-greedy: each `(` closes at the first following
// `)`. Tag names are trimmed but otherwise untouched; nesting and escapes
// are not part of the tag syntax. An unmatched trailing `(` is ignored
// here — parenthesis balance is a separate validator check.
func ExtractTags(text string) []TagOccurrence {
	var tags []TagOccurrence
	i := 0
	for i < len(text) {
		open := strings.IndexByte(text[i:], '(')
		if open < 0 {
			break
		}
		open += i
		close := strings.IndexByte(text[open:], ')')
		if close < 0 {
			break
		}
		close += open
		name := strings.TrimSpace(text[open+1 : close])
		tags = append(tags, TagOccurrence{Name: name, Offset: open})
		i = close + 1
	}
	return tags
}

// StripTags removes every `(...)` span from text, leaving the plain
// narration. Used by the placement check to decide whether real content
// precedes an emotion tag.
func StripTags(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		open := strings.IndexByte(text[i:], '(')
		if open < 0 {
			b.WriteString(text[i:])
			break
		}
		open += i
		close := strings.IndexByte(text[open:], ')')
		if close < 0 {
			b.WriteString(text[i:])
			break
		}
		close += open
		b.WriteString(text[i:open])
		i = close + 1
	}
	return b.String()
}
