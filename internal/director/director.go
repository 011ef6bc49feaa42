// Package director implements the voice-director agent.
//
// The director is an LLM-driven conversational loop that helps writers add
// emotion markup to story dialogue. Each user turn is answered either with
// plain conversation or by invoking one of three tools: searching the acting
// technique library, staging an emotion markup diff, or rendering an audio
// preview. The current story text is injected into the system prompt on every
// turn so the model always reasons against the live story.
package director

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/storyva/storyva/internal/markup"
	"github.com/storyva/storyva/internal/observe"
	"github.com/storyva/storyva/internal/story"
	"github.com/storyva/storyva/pkg/provider/llm"
)

const (
	defaultTemperature   = 0.7
	defaultMaxToolRounds = 4
)

// Director drives the conversation between the writer and the LLM,
// dispatching tool calls against the story session.
//
// All exported methods are safe for concurrent use, though turns are
// serialised: a second Turn blocks until the first completes.
type Director struct {
	provider llm.Provider
	state    *story.State
	tools    map[string]Tool
	defs     []llm.ToolDefinition

	temperature   float64
	maxToolRounds int
	logger        *slog.Logger
	metrics       *observe.Metrics

	mu      sync.Mutex
	history []llm.Message
}

// Option configures a Director during construction.
type Option func(*Director)

// WithTemperature sets the sampling temperature. The default is 0.7.
func WithTemperature(t float64) Option {
	return func(d *Director) {
		d.temperature = t
	}
}

// WithMaxToolRounds caps how many completion rounds a single turn may spend
// dispatching tool calls. The default is 4.
func WithMaxToolRounds(n int) Option {
	return func(d *Director) {
		if n > 0 {
			d.maxToolRounds = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Director) {
		d.logger = l
	}
}

// WithMetrics sets the metrics instance used to record tool dispatches. The
// default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Director) {
		d.metrics = m
	}
}

// New creates a Director for the given story session. tools are registered by
// their definition name; a duplicate name overwrites the earlier tool.
func New(provider llm.Provider, state *story.State, tools []Tool, opts ...Option) (*Director, error) {
	if provider == nil {
		return nil, fmt.Errorf("director: provider must not be nil")
	}
	if state == nil {
		return nil, fmt.Errorf("director: state must not be nil")
	}

	d := &Director{
		provider:      provider,
		state:         state,
		tools:         make(map[string]Tool, len(tools)),
		temperature:   defaultTemperature,
		maxToolRounds: defaultMaxToolRounds,
		logger:        slog.Default(),
		metrics:       observe.DefaultMetrics(),
	}
	for _, t := range tools {
		d.tools[t.Definition.Name] = t
	}
	for _, t := range tools {
		d.defs = append(d.defs, t.Definition)
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Turn sends one user message through the conversation loop and returns the
// director's reply. Tool calls requested by the model are executed and their
// results fed back until the model produces a plain answer or the tool round
// cap is reached.
func (d *Director) Turn(ctx context.Context, userMessage string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", fmt.Errorf("director: user message must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, llm.Message{Role: "user", Content: userMessage})

	for round := 0; round <= d.maxToolRounds; round++ {
		resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: d.systemPrompt(),
			Messages:     d.history,
			Tools:        d.defs,
			Temperature:  d.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("director: completion: %w", err)
		}
		if resp == nil {
			return "", fmt.Errorf("director: provider returned nil response")
		}

		if len(resp.ToolCalls) == 0 {
			d.history = append(d.history, llm.Message{Role: "assistant", Content: resp.Content})
			return resp.Content, nil
		}

		d.history = append(d.history, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := d.dispatch(ctx, call)
			d.history = append(d.history, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("director: tool round limit (%d) exceeded without a final answer", d.maxToolRounds)
}

// dispatch executes a single tool call, converting every failure into a tool
// result string so the model can react.
func (d *Director) dispatch(ctx context.Context, call llm.ToolCall) string {
	tool, ok := d.tools[call.Name]
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		d.metrics.RecordToolCall(ctx, call.Name, "unknown")
		return fmt.Sprintf("ERROR: unknown tool %q.", call.Name)
	}

	d.logger.Info("dispatching tool", "tool", call.Name)
	start := time.Now()
	result, err := tool.Handler(ctx, call.Arguments)
	d.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("tool", call.Name)))
	if err != nil {
		d.logger.Error("tool execution failed", "tool", call.Name, "error", err)
		d.metrics.RecordToolCall(ctx, call.Name, "error")
		return fmt.Sprintf("ERROR: tool %s failed: %v", call.Name, err)
	}
	status := "ok"
	if strings.HasPrefix(result, "ERROR:") {
		status = "error"
	}
	d.metrics.RecordToolCall(ctx, call.Name, status)
	return result
}

// Reset clears the conversation history. The story session is untouched.
func (d *Director) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

// History returns a copy of the conversation so far.
func (d *Director) History() []llm.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]llm.Message, len(d.history))
	copy(out, d.history)
	return out
}

// systemPrompt assembles the director persona, the tag reference, and the
// current story text.
func (d *Director) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a brilliant strategist turned voice director.

PERSONALITY:
- Analytical and precise
- Concise responses (2-4 sentences)
- Frame choices strategically: focus on narrative impact, not personal preference
- Theatrical but commanding tone
- Reference techniques briefly, then move to action

STORY CONTEXT:
You can see the user's current story in <current_story> tags below.
- Analyze the story to understand character emotions, scenes, and context
- Reference specific lines from the story when suggesting improvements
- Be proactive: identify scenes that need refinement without waiting to be asked
- If there's no story yet, acknowledge and wait for the user to paste their text

EMOTION MARKUP RULES:
- Emotion tags MUST be at sentence start: (sad) "text"
- Tone markers can go anywhere: "text (whispering) more"
- Audio effects and special effects can go anywhere
- Maximum 3 tags per sentence; more triggers a warning

`)
	b.WriteString(tagReference())
	b.WriteString(`
CRITICAL: Only use tags from the list above. Invalid tags will be rejected.

WORKFLOW:
1. User describes intent or shares story text
2. Analyze story context
3. Retrieve technique if relevant using search_acting_technique(query)
4. Apply emotion control changes using apply_emotion_diff(diff_patch, explanation)
5. After a tool returns, acknowledge concisely: "Applied. See the diff above."
   Do NOT read tool JSON output aloud; the diff is shown to the user separately.
6. Wait for user approval before treating a staged diff as applied
7. If the user asks "how would this sound?", call preview_line_audio(marked_up_text, character_gender)

`)
	b.WriteString("<current_story>\n")
	b.WriteString(d.state.CurrentText())
	b.WriteString("\n</current_story>\n")
	return b.String()
}

// tagReference renders the full tag grammar grouped by category for the
// system prompt.
func tagReference() string {
	all := markup.AllTags()

	headings := []struct {
		cat   markup.Category
		title string
	}{
		{markup.CategoryEmotion, "EMOTION TAGS (sentence start only)"},
		{markup.CategoryTone, "TONE MARKERS (anywhere)"},
		{markup.CategoryAudioEffect, "AUDIO EFFECTS (anywhere)"},
		{markup.CategorySpecialEffect, "SPECIAL EFFECTS (anywhere)"},
	}

	var b strings.Builder
	b.WriteString("AVAILABLE TAGS:\n")
	for _, h := range headings {
		tags := all[h.cat]
		sort.Strings(tags)
		b.WriteString(h.title)
		b.WriteString(": ")
		for i, t := range tags {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(" + t + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}
