package director_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/storyva/storyva/internal/director"
	"github.com/storyva/storyva/internal/story"
	"github.com/storyva/storyva/pkg/provider/llm"
	llmmock "github.com/storyva/storyva/pkg/provider/llm/mock"
)

const storyText = `Sarah looked at the letter. "I'm leaving tomorrow," she said.`

func newDirector(t *testing.T, provider llm.Provider, tools []director.Tool) (*director.Director, *story.State) {
	t.Helper()
	state := story.NewState("sess-1", storyText)
	d, err := director.New(provider, state, tools)
	if err != nil {
		t.Fatalf("director.New: %v", err)
	}
	return d, state
}

func TestTurn_PlainConversation(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "I'm here. Paste your story and we'll begin."},
		},
	}
	d, _ := newDirector(t, provider, nil)

	reply, err := d.Turn(context.Background(), "Hello!")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if reply != "I'm here. Paste your story and we'll begin." {
		t.Errorf("reply = %q", reply)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(provider.CompleteCalls))
	}
}

func TestTurn_SystemPromptCarriesStoryAndTags(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "Noted."}},
	}
	d, _ := newDirector(t, provider, nil)

	if _, err := d.Turn(context.Background(), "What do you see?"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	prompt := provider.CompleteCalls[0].Req.SystemPrompt
	if !strings.Contains(prompt, "<current_story>") || !strings.Contains(prompt, storyText) {
		t.Errorf("system prompt missing current story:\n%s", prompt)
	}
	for _, tag := range []string{"(sad)", "(whispering)", "(sighing)", "(long-break)"} {
		if !strings.Contains(prompt, tag) {
			t.Errorf("system prompt missing tag reference %s", tag)
		}
	}
}

func TestTurn_DispatchesToolAndReturnsFinalAnswer(t *testing.T) {
	t.Parallel()

	var gotArgs string
	echo := director.Tool{
		Definition: llm.ToolDefinition{Name: "echo", Description: "echoes"},
		Handler: func(ctx context.Context, args string) (string, error) {
			gotArgs = args
			return "echoed!", nil
		},
	}

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "echo", Arguments: `{"q":"hi"}`}}},
			{Content: "Applied. See the diff above."},
		},
	}
	d, _ := newDirector(t, provider, []director.Tool{echo})

	reply, err := d.Turn(context.Background(), "Do the thing.")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if reply != "Applied. See the diff above." {
		t.Errorf("reply = %q", reply)
	}
	if gotArgs != `{"q":"hi"}` {
		t.Errorf("tool args = %q", gotArgs)
	}

	// Second completion must carry the tool result keyed to the call ID.
	msgs := provider.CompleteCalls[1].Req.Messages
	var toolMsg *llm.Message
	for i := range msgs {
		if msgs[i].Role == "tool" {
			toolMsg = &msgs[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message in second completion request")
	}
	if toolMsg.Content != "echoed!" || toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", *toolMsg)
	}
}

func TestTurn_RecordsToolMetrics(t *testing.T) {
	t.Parallel()

	echo := director.Tool{
		Definition: llm.ToolDefinition{Name: "echo"},
		Handler: func(ctx context.Context, args string) (string, error) {
			return "echoed!", nil
		},
	}
	boom := director.Tool{
		Definition: llm.ToolDefinition{Name: "boom"},
		Handler: func(ctx context.Context, args string) (string, error) {
			return "", errors.New("exploded")
		},
	}

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "echo", Arguments: "{}"},
				{ID: "c2", Name: "boom", Arguments: "{}"},
			}},
			{Content: "Done."},
		},
	}

	metrics, reader := testMetrics(t)
	state := story.NewState("sess-m", storyText)
	d, err := director.New(provider, state, []director.Tool{echo, boom}, director.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("director.New: %v", err)
	}
	if _, err := d.Turn(context.Background(), "Run both."); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	md := findMetric(t, reader, "storyva.tool.calls")
	if md == nil {
		t.Fatal("tool calls counter not recorded")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("tool calls data = %T, want Sum[int64]", md.Data)
	}
	status := map[string]string{}
	for _, dp := range sum.DataPoints {
		tool, _ := dp.Attributes.Value(attribute.Key("tool"))
		st, _ := dp.Attributes.Value(attribute.Key("status"))
		status[tool.AsString()] = st.AsString()
	}
	if status["echo"] != "ok" {
		t.Errorf("echo status = %q, want ok", status["echo"])
	}
	if status["boom"] != "error" {
		t.Errorf("boom status = %q, want error", status["boom"])
	}

	hm := findMetric(t, reader, "storyva.tool_execution.duration")
	if hm == nil {
		t.Fatal("tool execution histogram not recorded")
	}
	hist, ok := hm.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 2 {
		t.Errorf("tool execution data = %+v, want two data points", hm.Data)
	}
}

func TestTurn_UnknownToolReportedToModel(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "no_such_tool", Arguments: "{}"}}},
			{Content: "Understood."},
		},
	}
	d, _ := newDirector(t, provider, nil)

	if _, err := d.Turn(context.Background(), "Try it."); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	msgs := provider.CompleteCalls[1].Req.Messages
	last := msgs[len(msgs)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("expected unknown-tool error fed back, got %+v", last)
	}
}

func TestTurn_ToolRoundLimit(t *testing.T) {
	t.Parallel()

	loop := director.Tool{
		Definition: llm.ToolDefinition{Name: "loop"},
		Handler: func(ctx context.Context, args string) (string, error) {
			return "again", nil
		},
	}
	// The mock repeats its last response, so the model asks for the tool forever.
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c", Name: "loop", Arguments: "{}"}}},
		},
	}
	state := story.NewState("sess-loop", "")
	d, err := director.New(provider, state, []director.Tool{loop}, director.WithMaxToolRounds(2))
	if err != nil {
		t.Fatalf("director.New: %v", err)
	}

	if _, err := d.Turn(context.Background(), "Go."); err == nil {
		t.Fatal("Turn should fail once the tool round limit is exceeded")
	}
}

func TestTurn_ApplyDiffToolStagesPending(t *testing.T) {
	t.Parallel()

	patch := "@@ -1 +1 @@\n" +
		`-"I'm leaving tomorrow," she said.` + "\n" +
		`+(sad) "I'm leaving tomorrow," she said.`
	args, _ := json.Marshal(map[string]string{
		"diff_patch":  patch,
		"explanation": "Underline the resignation in her farewell.",
	})

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: director.ToolApplyDiff, Arguments: string(args)}}},
			{Content: "Applied. See the diff above."},
		},
	}

	state := story.NewState("sess-2", storyText)
	tool := director.NewApplyDiffTool(state, testLogger())
	d, err := director.New(provider, state, []director.Tool{tool})
	if err != nil {
		t.Fatalf("director.New: %v", err)
	}

	if _, err := d.Turn(context.Background(), "Add sadness to her line."); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	pending, ok := state.Pending()
	if !ok {
		t.Fatal("no pending diff staged")
	}
	if !strings.Contains(pending.ProposedText, "(sad)") {
		t.Errorf("pending proposed text = %q, want the (sad) tag", pending.ProposedText)
	}

	// The tool result handed to the model is the diff JSON.
	toolResult := provider.CompleteCalls[1].Req.Messages[len(provider.CompleteCalls[1].Req.Messages)-1]
	var decoded map[string]any
	if err := json.Unmarshal([]byte(toolResult.Content), &decoded); err != nil {
		t.Fatalf("tool result is not JSON: %v\n%s", err, toolResult.Content)
	}
	if decoded["proposed_text"] == "" {
		t.Errorf("diff JSON missing proposed text: %v", decoded)
	}
}

func TestTurn_EmptyMessageRejected(t *testing.T) {
	t.Parallel()

	d, _ := newDirector(t, &llmmock.Provider{}, nil)
	if _, err := d.Turn(context.Background(), "   "); err == nil {
		t.Fatal("Turn with blank message should return an error")
	}
}

func TestResetClearsHistory(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "Hi."}},
	}
	d, _ := newDirector(t, provider, nil)

	if _, err := d.Turn(context.Background(), "Hello"); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(d.History()) == 0 {
		t.Fatal("history should record the turn")
	}
	d.Reset()
	if len(d.History()) != 0 {
		t.Error("history should be empty after Reset")
	}
}
