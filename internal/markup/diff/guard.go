package diff

import (
	"fmt"
	"strings"
)

// StaleSourceError reports that the original text from a parsed patch no
// longer occurs verbatim in the live story — usually because the story was
// edited after the model last read it. The remedy is re-copying exact text
// from the story, not fixing tags, so this error is kept distinct from
// validation failures.
type StaleSourceError struct {
	// Original is the text that could not be located.
	Original string
}

func (e *StaleSourceError) Error() string {
	snippet := e.Original
	if len(snippet) > 50 {
		snippet = snippet[:50] + "..."
	}
	return fmt.Sprintf("diff: original text not found in the current story (may have been edited since): %q", snippet)
}

// Matches reports whether original occurs byte-exact and case-sensitive in
// liveStory. No whitespace, quote, or punctuation normalisation is applied:
// the edit that follows is an exact substring replacement, and any
// normalisation here would apply it to the wrong occurrence or miss it.
func Matches(original, liveStory string) bool {
	return strings.Contains(liveStory, original)
}

// VerifySource is the exact-match guard run before an edit is accepted.
// It returns a *StaleSourceError when original is not a verbatim substring
// of liveStory, and nil otherwise.
func VerifySource(original, liveStory string) error {
	if !Matches(original, liveStory) {
		return &StaleSourceError{Original: original}
	}
	return nil
}
