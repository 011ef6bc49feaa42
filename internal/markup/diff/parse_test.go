package diff_test

import (
	"errors"
	"testing"

	"github.com/storyva/storyva/internal/markup/diff"
)

func TestParsePatch_SingleLine(t *testing.T) {
	t.Parallel()

	patch := "@@ -1 +1 @@\n-(nervous) Miku: \"Hello\"\n+(calm) Miku: \"Hello\"\n"
	original, proposed, err := diff.ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if original != `(nervous) Miku: "Hello"` {
		t.Errorf("original = %q", original)
	}
	if proposed != `(calm) Miku: "Hello"` {
		t.Errorf("proposed = %q", proposed)
	}
}

func TestParsePatch_MultiLine(t *testing.T) {
	t.Parallel()

	patch := "@@ -1,2 +1,2 @@\n-Line 1 old\n-Line 2 old\n+Line 1 new\n+Line 2 new\n"
	original, proposed, err := diff.ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if original != "Line 1 old\nLine 2 old" {
		t.Errorf("original = %q", original)
	}
	if proposed != "Line 1 new\nLine 2 new" {
		t.Errorf("proposed = %q", proposed)
	}
}

func TestParsePatch_FileHeadersAndContextIgnored(t *testing.T) {
	t.Parallel()

	patch := "--- original\n+++ proposed\n@@ -1 +1 @@\n context stays out\n-old\n+new\n"
	original, proposed, err := diff.ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if original != "old" || proposed != "new" {
		t.Errorf("got (%q, %q), want (old, new)", original, proposed)
	}
}

func TestParsePatch_MultipleHunksConcatenate(t *testing.T) {
	t.Parallel()

	// Documented simplification: hunk boundaries are not preserved; all
	// marker lines land in the same two blocks.
	patch := "@@ -1 +1 @@\n-a\n+A\n@@ -3 +3 @@\n-b\n+B\n"
	original, proposed, err := diff.ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if original != "a\nb" || proposed != "A\nB" {
		t.Errorf("got (%q, %q), want (a\\nb, A\\nB)", original, proposed)
	}
}

func TestParsePatch_FormatErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		patch string
	}{
		{"only context lines", "@@ -1 +1 @@\n context line\n another\n"},
		{"empty patch", ""},
		{"no removals", "@@ -1 +1 @@\n+new text\n"},
		{"no additions", "@@ -1 +1 @@\n-old text\n"},
		{"headers only", "--- original\n+++ proposed\n@@ -1 +1 @@\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := diff.ParsePatch(tt.patch)
			var fe *diff.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("ParsePatch(%q): err = %v, want *FormatError", tt.patch, err)
			}
			if fe.Reason == "" {
				t.Error("FormatError.Reason is empty")
			}
		})
	}
}

func TestParsePatch_RoundTrip(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{`(nervous) Miku: "Hello"`, `(resigned) Miku: "Hello"`},
		{"line one\nline two", "line one tagged\nline two tagged"},
		{`"I hate you," she said.`, `(sad) "I hate you," she said.`},
	}
	for _, pair := range pairs {
		patch := diff.FormatPatch(pair[0], pair[1])
		original, proposed, err := diff.ParsePatch(patch)
		if err != nil {
			t.Fatalf("ParsePatch(FormatPatch(%q, %q)): %v", pair[0], pair[1], err)
		}
		if original != pair[0] || proposed != pair[1] {
			t.Errorf("round trip: got (%q, %q), want (%q, %q)", original, proposed, pair[0], pair[1])
		}
	}
}
