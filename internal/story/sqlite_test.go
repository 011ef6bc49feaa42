package story_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/storyva/storyva/internal/markup/diff"
	"github.com/storyva/storyva/internal/story"
)

func newTestStore(t *testing.T) *story.Store {
	t.Helper()
	s, err := story.NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	st, err := store.CreateSession(ctx, "Once upon a time.")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if st.ID() == "" {
		t.Fatal("session id is empty")
	}

	loaded, err := store.Load(ctx, st.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CurrentText() != "Once upon a time." {
		t.Errorf("loaded text = %q", loaded.CurrentText())
	}
}

func TestStore_PersistsTextAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	st, err := store.CreateSession(ctx, `"I hate you," she said.`)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	d := diff.Generate(`"I hate you," she said.`, `(sad) "I hate you," she said.`, "grief, not rage")
	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := store.SaveText(ctx, st.ID(), st.CurrentText()); err != nil {
		t.Fatalf("SaveText: %v", err)
	}
	if err := store.AppendDiff(ctx, st.ID(), story.AppliedDiff{Diff: d, AppliedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("AppendDiff: %v", err)
	}

	loaded, err := store.Load(ctx, st.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CurrentText() != `(sad) "I hate you," she said.` {
		t.Errorf("loaded text = %q", loaded.CurrentText())
	}
	history := loaded.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Diff.ID != d.ID {
		t.Errorf("history diff id = %q, want %q", history[0].Diff.ID, d.ID)
	}

	// A restored session can still undo its last edit.
	if _, err := loaded.Undo(); err != nil {
		t.Fatalf("Undo after reload: %v", err)
	}
	if loaded.CurrentText() != `"I hate you," she said.` {
		t.Errorf("text after undo = %q", loaded.CurrentText())
	}
}

func TestStore_LoadUnknownSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Load(context.Background(), "01JUNKSESSIONID")
	if !errors.Is(err, story.ErrSessionNotFound) {
		t.Errorf("Load err = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_SaveTextUnknownSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.SaveText(context.Background(), "missing", "text")
	if !errors.Is(err, story.ErrSessionNotFound) {
		t.Errorf("SaveText err = %v, want ErrSessionNotFound", err)
	}
}
