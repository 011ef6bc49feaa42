package markup

import (
	"fmt"
	"strings"
)

// maxTagsPerSentence is the soft limit on tags within one sentence.
// Exceeding it produces a warning, never a validation failure.
const maxTagsPerSentence = 3

// Result is the outcome of validating marked-up text. Valid is true iff
// Errors is empty; Warnings never affect validity.
type Result struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// sentence is a text segment delimited by '.', '!' or '?', together with
// its byte offset in the enclosing document.
type sentence struct {
	text  string
	start int
}

// Validate checks text against the tag grammar and placement rules.
//
// Checks performed, in order:
//  1. Every tag name must exist in the grammar.
//  2. Emotion tags must open their sentence: no non-tag, non-whitespace
//     content may precede them within the same sentence.
//  3. At most maxTagsPerSentence tags per sentence (warning only).
//  4. Opening and closing parentheses must balance.
//
// All findings are aggregated into one Result so a caller can correct
// everything in a single pass. Text without any complete tag is plain
// narration and trivially valid.
func Validate(text string) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	tags := ExtractTags(text)
	if len(tags) == 0 {
		res.Valid = true
		return res
	}

	for _, tag := range tags {
		if CategoryOf(tag.Name) != CategoryUnknown {
			continue
		}
		msg := fmt.Sprintf("invalid tag %q: not a recognised emotion control tag; check spelling against the tag reference", tag.Name)
		if nearest, ok := Nearest(tag.Name); ok {
			msg += fmt.Sprintf(" (did you mean %q?)", nearest)
		}
		res.Errors = append(res.Errors, msg)
	}

	sentences := splitSentences(text)
	for _, s := range sentences {
		end := s.start + len(s.text)
		count := 0
		for _, tag := range tags {
			if tag.Offset < s.start || tag.Offset >= end {
				continue
			}
			count++
			if CategoryOf(tag.Name) != CategoryEmotion {
				continue
			}
			// Sentence-local content before the tag, with all tag spans
			// removed. Any remaining non-whitespace makes the placement
			// invalid.
			before := StripTags(s.text[:tag.Offset-s.start])
			if strings.TrimSpace(before) != "" {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"emotion tag (%s) must be at sentence start, not mid-sentence; found text before tag: %q",
					tag.Name, preview(strings.TrimSpace(before), 20)))
			}
		}
		if count > maxTagsPerSentence {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"sentence has %d tags (max recommended: %d); too many tags may reduce clarity: %q",
				count, maxTagsPerSentence, preview(strings.TrimSpace(s.text), 50)))
		}
	}

	if open, closed := strings.Count(text, "("), strings.Count(text, ")"); open != closed {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"mismatched parentheses: %d opening, %d closing; every tag must be written as (tag name)",
			open, closed))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// splitSentences segments text on '.', '!', '?' terminators followed by
// optional whitespace. The terminator stays with its sentence; inter-sentence
// whitespace belongs to neither. Offsets index into the original text.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			i++
			out = append(out, sentence{text: text[start:i], start: start})
			for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(text) {
		out = append(out, sentence{text: text[start:], start: start})
	}
	return out
}

// preview truncates s to at most n bytes for use in error messages,
// appending an ellipsis when content was cut.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
