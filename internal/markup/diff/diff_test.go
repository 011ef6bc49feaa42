package diff_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/storyva/storyva/internal/markup"
	"github.com/storyva/storyva/internal/markup/diff"
)

func TestGenerate_SingleAddedTag(t *testing.T) {
	t.Parallel()

	original := `"I hate you," she said.`
	proposed := `(sad) "I hate you," she said.`

	d := diff.Generate(original, proposed, "")

	if !reflect.DeepEqual(d.AddedTags, []string{"sad"}) {
		t.Errorf("AddedTags = %v, want [sad]", d.AddedTags)
	}
	if !strings.Contains(d.Summary, "Added emotion tag: (sad)") {
		t.Errorf("Summary = %q, want mention of added (sad)", d.Summary)
	}
	if !strings.Contains(d.UnifiedDiff, "-"+original) || !strings.Contains(d.UnifiedDiff, "+"+proposed) {
		t.Errorf("UnifiedDiff missing change lines:\n%s", d.UnifiedDiff)
	}
	if d.ID == "" {
		t.Error("ID is empty")
	}
}

func TestGenerate_NoChange(t *testing.T) {
	t.Parallel()

	text := `(sad) "I hate you," she said.`
	d := diff.Generate(text, text, "kept as-is")

	if d.Summary != "No changes made" {
		t.Errorf("Summary = %q, want %q", d.Summary, "No changes made")
	}
	if len(d.AddedTags) != 0 {
		t.Errorf("AddedTags = %v, want empty", d.AddedTags)
	}
}

func TestGenerate_MultipleTagsAndRationale(t *testing.T) {
	t.Parallel()

	original := `"I hate you," she said.`
	proposed := `(sad)(soft tone) "I hate you," (sighing) she said.`

	d := diff.Generate(original, proposed, "Layer restraint over the anger.")

	want := []string{"sad", "soft tone", "sighing"}
	if !reflect.DeepEqual(d.AddedTags, want) {
		t.Errorf("AddedTags = %v, want %v", d.AddedTags, want)
	}
	if !strings.Contains(d.Summary, "Added 3 emotion tags: (sad), (soft tone), (sighing)") {
		t.Errorf("Summary = %q", d.Summary)
	}
	if !strings.Contains(d.Summary, "Rationale: Layer restraint over the anger.") {
		t.Errorf("Summary = %q, want trailing rationale", d.Summary)
	}
}

func TestGenerate_TagRemovalAddsNothing(t *testing.T) {
	t.Parallel()

	// Removing (nervous) while (resigned) stays: no "added" entries.
	patch := "@@ -1 +1 @@\n-(nervous) (resigned) Miku: \"Hello\"\n+(resigned) Miku: \"Hello\"\n"
	original, proposed, err := diff.ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}

	if res := markup.Validate(proposed); !res.Valid {
		t.Fatalf("proposed fails validation: %v", res.Errors)
	}

	d := diff.Generate(original, proposed, "")
	if len(d.AddedTags) != 0 {
		t.Errorf("AddedTags = %v, want empty for a pure removal", d.AddedTags)
	}
	if d.Summary != "No changes made" {
		t.Errorf("Summary = %q, want added-only semantics", d.Summary)
	}
}

func TestAddedTags_MultisetCounting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		original string
		proposed string
		want     []string
	}{
		{"new tag", "Hello", "(happy) Hello", []string{"happy"}},
		{"duplicate added once", "(sad) Hi. Bye.", "(sad) Hi. (sad) Bye.", []string{"sad"}},
		{"removed then restored plus one", "(sad) Hi.", "(sad)(sad) Hi.", []string{"sad"}},
		{"swap counts as add", "(nervous) Hi.", "(calm) Hi.", []string{"calm"}},
		{"no tags anywhere", "Hello", "Hello there", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := diff.AddedTags(tt.original, tt.proposed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AddedTags(%q, %q) = %v, want %v", tt.original, tt.proposed, got, tt.want)
			}
		})
	}
}

func TestGenerate_RevalidationIsIdempotent(t *testing.T) {
	t.Parallel()

	proposed := `(sad) "I hate you," she said.`
	d := diff.Generate(`"I hate you," she said.`, proposed, "")

	direct := markup.Validate(proposed)
	fromDiff := markup.Validate(d.ProposedText)
	if !reflect.DeepEqual(direct, fromDiff) {
		t.Errorf("validating ProposedText differs from validating directly: %#v vs %#v", fromDiff, direct)
	}
}

func TestEmotionDiff_ToJSON(t *testing.T) {
	t.Parallel()

	d := diff.Generate("Hello", "(happy) Hello", "brighten the greeting")
	s, err := d.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	for _, field := range []string{"id", "original_text", "proposed_text", "unified_diff", "summary", "explanation", "added_tags"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("JSON missing field %q", field)
		}
	}
}

func TestGenerate_StableID(t *testing.T) {
	t.Parallel()

	a := diff.Generate("Hello", "(happy) Hello", "x")
	b := diff.Generate("Hello", "(happy) Hello", "different rationale")
	if a.ID != b.ID {
		t.Errorf("ID depends on explanation: %q vs %q", a.ID, b.ID)
	}
	c := diff.Generate("Hello", "(sad) Hello", "")
	if a.ID == c.ID {
		t.Error("distinct edits share an ID")
	}
}

func TestVerifySource(t *testing.T) {
	t.Parallel()

	story := `Miku looked away. (nervous) Miku: "Harry, we need to talk."`

	if err := diff.VerifySource(`(nervous) Miku: "Harry, we need to talk."`, story); err != nil {
		t.Errorf("VerifySource on verbatim substring: %v", err)
	}

	err := diff.VerifySource(`(nervous) Miku: "Harry, we need to talk!"`, story)
	if err == nil {
		t.Fatal("VerifySource accepted text not present in the story")
	}
	var stale *diff.StaleSourceError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %T, want *StaleSourceError", err)
	}
	if !strings.Contains(stale.Error(), "current story") {
		t.Errorf("error %q does not explain the stale source", stale.Error())
	}
}

func TestMatches_NoNormalisation(t *testing.T) {
	t.Parallel()

	story := `She said "hello".`
	tests := []struct {
		original string
		want     bool
	}{
		{`She said "hello".`, true},
		{`she said "hello".`, false},   // case differs
		{`She said  "hello".`, false},  // whitespace differs
		{`She said “hello”.`, false},   // curly quotes differ
	}
	for _, tt := range tests {
		if got := diff.Matches(tt.original, story); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.original, got, tt.want)
		}
	}
}
