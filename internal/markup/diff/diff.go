// Package diff implements the emotion-markup diff engine: parsing proposed
// edits from a constrained unified-diff patch format, guarding that the edit
// targets live story text, and generating the displayable diff artifact that
// describes an accepted change.
//
// The package is pure: no I/O, no shared state. Every function may be called
// concurrently.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/storyva/storyva/internal/markup"
)

// contextLines is the number of unchanged lines shown around each hunk in
// the generated unified diff.
const contextLines = 3

// EmotionDiff is the immutable artifact describing one proposed markup edit.
// It is constructed once by [Generate] and never mutated afterwards.
type EmotionDiff struct {
	// ID is a short content hash over original and proposed text, used by
	// display surfaces to dedupe and reference a specific suggestion.
	ID string `json:"id"`

	// OriginalText is the exact story text the edit replaces.
	OriginalText string `json:"original_text"`

	// ProposedText is the replacement text with markup applied.
	ProposedText string `json:"proposed_text"`

	// UnifiedDiff is a line-oriented git-style diff for display only; it is
	// never re-parsed.
	UnifiedDiff string `json:"unified_diff"`

	// Summary is a human-readable description of the change.
	Summary string `json:"summary"`

	// Explanation is the optional rationale supplied by the caller.
	Explanation string `json:"explanation,omitempty"`

	// AddedTags lists the tag names newly introduced by the edit, in
	// proposed-text order. Removed tags are intentionally not reported —
	// the summary keeps the original added-only semantics.
	AddedTags []string `json:"added_tags"`
}

// ToJSON serialises the diff for transmission to a display surface.
func (d EmotionDiff) ToJSON() (string, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("diff: encode: %w", err)
	}
	return string(b), nil
}

// Generate builds the [EmotionDiff] artifact for a proposed edit.
// explanation may be empty; when present it is appended to the summary as a
// rationale line. Generate performs no validation — callers run
// [markup.Validate] and [VerifySource] first.
func Generate(original, proposed, explanation string) EmotionDiff {
	added := AddedTags(original, proposed)

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(proposed),
		FromFile: "original",
		ToFile:   "proposed",
		Context:  contextLines,
	})
	if err != nil {
		// SplitLines never produces input the differ rejects; keep the
		// artifact usable regardless.
		unified = ""
	}

	return EmotionDiff{
		ID:           contentID(original, proposed),
		OriginalText: original,
		ProposedText: proposed,
		UnifiedDiff:  strings.TrimRight(unified, "\n"),
		Summary:      buildSummary(added, explanation),
		Explanation:  explanation,
		AddedTags:    added,
	}
}

// AddedTags returns the tags present more often in proposed than in
// original, in proposed-text order. The comparison is a multiset
// difference: duplicate tags are tracked by count, so re-adding a tag that
// already occurs once registers as one addition, and removing a tag never
// produces an entry.
func AddedTags(original, proposed string) []string {
	remaining := map[string]int{}
	for _, tag := range markup.ExtractTags(original) {
		remaining[tag.Name]++
	}

	added := []string{}
	for _, tag := range markup.ExtractTags(proposed) {
		if remaining[tag.Name] > 0 {
			remaining[tag.Name]--
			continue
		}
		added = append(added, tag.Name)
	}
	return added
}

// buildSummary renders the human-readable change summary from the added-tag
// list, appending the optional rationale.
func buildSummary(added []string, explanation string) string {
	if len(added) == 0 {
		return "No changes made"
	}

	quoted := make([]string, len(added))
	for i, tag := range added {
		quoted[i] = "(" + tag + ")"
	}

	var summary string
	if len(added) == 1 {
		summary = "Added emotion tag: " + quoted[0]
	} else {
		summary = fmt.Sprintf("Added %d emotion tags: %s", len(added), strings.Join(quoted, ", "))
	}
	if explanation != "" {
		summary += "\n\nRationale: " + explanation
	}
	return summary
}

// contentID derives the short stable identifier for a diff from its before
// and after text.
func contentID(original, proposed string) string {
	sum := sha256.Sum256([]byte(original + "\x00" + proposed))
	return hex.EncodeToString(sum[:4])
}
