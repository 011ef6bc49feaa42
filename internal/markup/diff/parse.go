package diff

import (
	"fmt"
	"strings"
)

// FormatError reports a patch that does not follow the constrained
// unified-diff format. The caller should reject the edit and request a
// correctly formatted patch; retrying the same input cannot succeed.
type FormatError struct {
	// Reason is the human-readable cause, safe to relay to the user.
	Reason string
}

func (e *FormatError) Error() string {
	return "diff: invalid patch format: " + e.Reason
}

// ParsePatch extracts the original and proposed text blocks from a
// constrained unified-diff patch:
//
//	@@ -1 +1 @@
//	-(nervous) (resigned) Miku: "Hello"
//	+(resigned) Miku: "Hello"
//
// Lines starting with `---`, `+++`, or `@@` are headers and are discarded.
// Lines starting with `-` contribute to original, lines starting with `+`
// to proposed, each with the marker stripped; anything else is a context
// line and is ignored. Consecutive marker lines form multi-line blocks
// joined with newlines.
//
// When a patch contains multiple `@@` hunks, all removal and addition lines
// are concatenated into the same two blocks irrespective of hunk
// boundaries. This parser reconstructs the before/after pair only; it is
// not a positional patch application.
//
// Returns a *FormatError when the patch has no removal lines, no addition
// lines, or neither.
func ParsePatch(patch string) (original, proposed string, err error) {
	var originalLines, proposedLines []string

	for _, line := range strings.Split(strings.TrimSpace(patch), "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			// header
		case strings.HasPrefix(line, "-"):
			originalLines = append(originalLines, line[1:])
		case strings.HasPrefix(line, "+"):
			proposedLines = append(proposedLines, line[1:])
		}
	}

	switch {
	case len(originalLines) == 0 && len(proposedLines) == 0:
		return "", "", &FormatError{Reason: "no original (-) or proposed (+) lines found; expected unified diff lines starting with - and +"}
	case len(originalLines) == 0:
		return "", "", &FormatError{Reason: "no original (-) lines found; the patch must include the exact story text to replace"}
	case len(proposedLines) == 0:
		return "", "", &FormatError{Reason: "no proposed (+) lines found; the patch must include the replacement text"}
	}

	return strings.Join(originalLines, "\n"), strings.Join(proposedLines, "\n"), nil
}

// FormatPatch renders an (original, proposed) pair as a patch that
// [ParsePatch] round-trips. Used when prompting the language model with a
// format example and by tests.
func FormatPatch(original, proposed string) string {
	originalLines := strings.Split(original, "\n")
	proposedLines := strings.Split(proposed, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(originalLines), len(proposedLines))
	for _, line := range originalLines {
		b.WriteString("-")
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range proposedLines {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
