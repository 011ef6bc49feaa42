package story_test

import (
	"errors"
	"testing"

	"github.com/storyva/storyva/internal/markup/diff"
	"github.com/storyva/storyva/internal/story"
)

func TestState_ApplyReplacesFirstOccurrence(t *testing.T) {
	t.Parallel()

	st := story.NewState("s1", `She left. "I hate you," she said. She left.`)
	d := diff.Generate(`"I hate you," she said.`, `(sad) "I hate you," she said.`, "")

	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := `She left. (sad) "I hate you," she said. She left.`
	if got := st.CurrentText(); got != want {
		t.Errorf("CurrentText = %q, want %q", got, want)
	}
	if len(st.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(st.History()))
	}
}

func TestState_ApplyStaleSource(t *testing.T) {
	t.Parallel()

	st := story.NewState("s1", "The story moved on.")
	d := diff.Generate("Old line", "(sad) Old line", "")

	err := st.Apply(d)
	var stale *diff.StaleSourceError
	if !errors.As(err, &stale) {
		t.Fatalf("Apply err = %v, want *StaleSourceError", err)
	}
}

func TestState_UndoRestoresOriginal(t *testing.T) {
	t.Parallel()

	original := `"I hate you," she said.`
	st := story.NewState("s1", original)
	d := diff.Generate(original, `(sad) `+original, "")

	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := st.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got := st.CurrentText(); got != original {
		t.Errorf("CurrentText after undo = %q, want %q", got, original)
	}
	if _, err := st.Undo(); err == nil {
		t.Error("second Undo succeeded, want error on empty history")
	}
}

func TestState_SetTextDiscardsPending(t *testing.T) {
	t.Parallel()

	st := story.NewState("s1", "Hello there.")
	st.SetPending(diff.Generate("Hello there.", "(happy) Hello there.", ""))

	st.SetText("A brand new story.")
	if _, ok := st.Pending(); ok {
		t.Error("pending diff survived SetText; its source text is stale")
	}
}

func TestState_PendingClearedOnApply(t *testing.T) {
	t.Parallel()

	st := story.NewState("s1", "Hello there.")
	d := diff.Generate("Hello there.", "(happy) Hello there.", "")
	st.SetPending(d)

	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := st.Pending(); ok {
		t.Error("pending diff survived its own application")
	}
}
