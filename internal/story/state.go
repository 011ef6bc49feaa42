// Package story tracks the writer's session state: the current story text,
// the pending diff suggestion awaiting approval, and the history of applied
// edits that supports undo.
//
// The core markup engine never touches this state directly — it receives the
// live text as a parameter. State exists for the orchestration layer: the
// director injects the current text into each conversational turn, and
// accepted diffs are applied here.
package story

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/storyva/storyva/internal/markup/diff"
)

// AppliedDiff is one accepted edit in the session history.
type AppliedDiff struct {
	Diff      diff.EmotionDiff `json:"diff"`
	AppliedAt time.Time        `json:"applied_at"`
}

// State is one writing session. All methods are safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	id      string
	text    string
	pending *diff.EmotionDiff
	applied []AppliedDiff
}

// NewState creates a session with the given id and initial story text.
func NewState(id, text string) *State {
	return &State{id: id, text: text}
}

// ID returns the session identifier.
func (s *State) ID() string { return s.id }

// CurrentText returns the live story text.
func (s *State) CurrentText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// SetText replaces the story text wholesale (the writer edited or re-pasted
// their story). Any pending diff is discarded: its source text can no longer
// be trusted.
func (s *State) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.pending = nil
}

// SetPending records a suggested diff awaiting the writer's approval,
// replacing any previous suggestion.
func (s *State) SetPending(d diff.EmotionDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &d
}

// Pending returns the suggestion awaiting approval, if any.
func (s *State) Pending() (diff.EmotionDiff, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return diff.EmotionDiff{}, false
	}
	return *s.pending, true
}

// Apply performs the exact first-occurrence substring replacement described
// by d and records it in the session history. The guard is re-checked under
// the lock so a concurrent SetText cannot slip a stale edit through.
func (s *State) Apply(d diff.EmotionDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := diff.VerifySource(d.OriginalText, s.text); err != nil {
		return err
	}
	s.text = strings.Replace(s.text, d.OriginalText, d.ProposedText, 1)
	s.applied = append(s.applied, AppliedDiff{Diff: d, AppliedAt: time.Now().UTC()})
	if s.pending != nil && s.pending.ID == d.ID {
		s.pending = nil
	}
	return nil
}

// Undo reverts the most recently applied diff by replacing its proposed
// text with the original. Fails if there is no history or if the proposed
// text has since been edited away.
func (s *State) Undo() (diff.EmotionDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.applied) == 0 {
		return diff.EmotionDiff{}, fmt.Errorf("story: nothing to undo")
	}
	last := s.applied[len(s.applied)-1]
	if !strings.Contains(s.text, last.Diff.ProposedText) {
		return diff.EmotionDiff{}, fmt.Errorf("story: cannot undo: the edited passage was changed afterwards")
	}
	s.text = strings.Replace(s.text, last.Diff.ProposedText, last.Diff.OriginalText, 1)
	s.applied = s.applied[:len(s.applied)-1]
	return last.Diff, nil
}

// History returns a copy of the applied-diff history, oldest first.
func (s *State) History() []AppliedDiff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AppliedDiff, len(s.applied))
	copy(out, s.applied)
	return out
}

// restoreHistory seeds the history when loading a persisted session.
func (s *State) restoreHistory(applied []AppliedDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append([]AppliedDiff{}, applied...)
}
