package markup

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// nearestThreshold is the minimum Jaro-Winkler similarity required before
// an unknown tag name is considered a likely misspelling of a valid tag.
const nearestThreshold = 0.84

// Nearest returns the valid tag most similar to name, for "did you mean"
// hints on unknown-tag errors. Similarity is Jaro-Winkler on the lowercased
// strings; when no tag clears the threshold ok is false.
func Nearest(name string) (tag string, ok bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}

	best := ""
	bestScore := 0.0
	for candidate := range categories {
		score := matchr.JaroWinkler(needle, candidate, true)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < nearestThreshold {
		return "", false
	}
	return best, true
}

// SuggestFix returns a best-effort corrected version of text: every tag the
// grammar does not recognise is removed. Valid tags, placement, and the
// narration itself are left untouched — callers should re-run Validate on
// the result, since placement errors are not repaired here.
func SuggestFix(text string) string {
	res := Validate(text)
	if res.Valid {
		return text
	}

	fixed := text
	for _, tag := range ExtractTags(text) {
		if CategoryOf(tag.Name) == CategoryUnknown {
			fixed = strings.ReplaceAll(fixed, "("+tag.Name+")", "")
		}
	}
	return strings.TrimSpace(fixed)
}
