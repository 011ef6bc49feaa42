package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storyva/storyva/internal/app"
	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/internal/markup/diff"
	embedmock "github.com/storyva/storyva/pkg/provider/embeddings/mock"
	"github.com/storyva/storyva/pkg/provider/llm"
	llmmock "github.com/storyva/storyva/pkg/provider/llm/mock"
	ttsmock "github.com/storyva/storyva/pkg/provider/tts/mock"
)

const storyText = `Sarah looked at the letter. "I'm leaving tomorrow," she said.`

type fakeSearcher struct {
	result string
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) (string, error) {
	return f.result, f.err
}

// storyBody mirrors the GET/PUT /v1/story JSON shape.
type storyBody struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// patchRequest mirrors the POST /v1/patch JSON shape.
type patchRequest struct {
	Patch       string `json:"patch"`
	Explanation string `json:"explanation,omitempty"`
}

func newTestApp(t *testing.T, llmp llm.Provider, opts ...app.Option) *app.App {
	t.Helper()

	cfg := &config.Config{}
	cfg.Story.DBPath = filepath.Join(t.TempDir(), "storyva.db")
	cfg.Preview.OutputDir = t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]app.Option{app.WithLogger(logger)}, opts...)

	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: llmp}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return a
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStory_ReturnsSession(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})
	a.State().SetText(storyText)

	rec := doJSON(t, a.Handler(), "GET", "/v1/story", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var body storyBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID == "" {
		t.Error("session_id is empty")
	}
	if body.Text != storyText {
		t.Errorf("text = %q, want %q", body.Text, storyText)
	}
}

func TestPutStory_ReplacesText(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})

	payload, _ := json.Marshal(storyBody{Text: storyText})
	rec := doJSON(t, a.Handler(), "PUT", "/v1/story", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if got := a.State().CurrentText(); got != storyText {
		t.Errorf("CurrentText() = %q, want %q", got, storyText)
	}
}

func TestValidate_ReportsInvalidMarkup(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})

	rec := doJSON(t, a.Handler(), "POST", "/v1/validate", `{"text":"(menacing) He smiled."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var res struct {
		Valid  bool     `json:"is_valid"`
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid {
		t.Error("is_valid = true, want false for unknown tag")
	}
	if len(res.Errors) == 0 {
		t.Error("errors is empty, want at least one")
	}
}

func TestPatch_StagesPendingDiff(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})
	a.State().SetText(storyText)

	patch := diff.FormatPatch(
		`"I'm leaving tomorrow," she said.`,
		`(sad) "I'm leaving tomorrow," she said.`,
	)
	payload, _ := json.Marshal(patchRequest{Patch: patch, Explanation: "she is grieving"})

	rec := doJSON(t, a.Handler(), "POST", "/v1/patch", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var d diff.EmotionDiff
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.ID == "" {
		t.Error("diff ID is empty")
	}
	if len(d.AddedTags) != 1 || d.AddedTags[0] != "sad" {
		t.Errorf("AddedTags = %v, want [sad]", d.AddedTags)
	}
	if _, ok := a.State().Pending(); !ok {
		t.Error("no pending diff staged")
	}
}

func TestPatch_StaleSourceConflicts(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})
	a.State().SetText(storyText)

	patch := diff.FormatPatch("text that is not in the story", "(sad) replacement")
	payload, _ := json.Marshal(patchRequest{Patch: patch})

	rec := doJSON(t, a.Handler(), "POST", "/v1/patch", string(payload))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body %s", rec.Code, rec.Body)
	}
}

func TestPatch_MalformedPatchRejected(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})

	rec := doJSON(t, a.Handler(), "POST", "/v1/patch", `{"patch":"not a diff"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422; body %s", rec.Code, rec.Body)
	}
}

func TestApply_AppliesPendingDiff(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})
	a.State().SetText(storyText)

	patch := diff.FormatPatch(
		`"I'm leaving tomorrow," she said.`,
		`(sad) "I'm leaving tomorrow," she said.`,
	)
	payload, _ := json.Marshal(patchRequest{Patch: patch})
	if rec := doJSON(t, a.Handler(), "POST", "/v1/patch", string(payload)); rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body %s", rec.Code, rec.Body)
	}

	rec := doJSON(t, a.Handler(), "POST", "/v1/apply", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if got := a.State().CurrentText(); !strings.Contains(got, "(sad)") {
		t.Errorf("CurrentText() = %q, want (sad) applied", got)
	}
	if _, ok := a.State().Pending(); ok {
		t.Error("pending diff not cleared after apply")
	}
}

func TestApply_NoPendingConflicts(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})

	rec := doJSON(t, a.Handler(), "POST", "/v1/apply", `{}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body %s", rec.Code, rec.Body)
	}
}

func TestUndo_RevertsLastApply(t *testing.T) {
	a := newTestApp(t, &llmmock.Provider{})
	a.State().SetText(storyText)

	patch := diff.FormatPatch(
		`"I'm leaving tomorrow," she said.`,
		`(sad) "I'm leaving tomorrow," she said.`,
	)
	payload, _ := json.Marshal(patchRequest{Patch: patch})
	doJSON(t, a.Handler(), "POST", "/v1/patch", string(payload))
	doJSON(t, a.Handler(), "POST", "/v1/apply", `{}`)

	rec := doJSON(t, a.Handler(), "POST", "/v1/undo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if got := a.State().CurrentText(); got != storyText {
		t.Errorf("CurrentText() = %q, want original restored", got)
	}
}

func TestTurn_ReturnsDirectorReply(t *testing.T) {
	llmp := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "Try a softer read on that line."},
		},
	}
	a := newTestApp(t, llmp)

	rec := doJSON(t, a.Handler(), "POST", "/v1/turn", `{"message":"How should this line sound?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "Try a softer read on that line." {
		t.Errorf("reply = %q", resp.Reply)
	}
}

func TestTurn_NoLLMProviderUnavailable(t *testing.T) {
	a := newTestApp(t, nil)

	rec := doJSON(t, a.Handler(), "POST", "/v1/turn", `{"message":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503; body %s", rec.Code, rec.Body)
	}
}

func TestPreview_RendersAudioFile(t *testing.T) {
	synth := &ttsmock.Provider{SynthesizeResult: []byte("audio-bytes")}
	cfg := &config.Config{}
	cfg.Story.DBPath = filepath.Join(t.TempDir(), "storyva.db")
	cfg.Preview.OutputDir = t.TempDir()
	cfg.Preview.Voices.Male = "voice-male"
	cfg.Providers.TTS.Name = "fishaudio"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, &app.Providers{TTS: synth}, app.WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	rec := doJSON(t, a.Handler(), "POST", "/v1/preview", `{"text":"(sad) Hello there.","gender":"male"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}

	var res struct {
		Path  string `json:"audio_path"`
		Voice string `json:"voice_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Path == "" {
		t.Error("audio_path is empty")
	}
	if res.Voice != "voice-male" {
		t.Errorf("voice_id = %q, want voice-male", res.Voice)
	}
}

func TestPreview_NoTTSUnavailable(t *testing.T) {
	a := newTestApp(t, nil)

	rec := doJSON(t, a.Handler(), "POST", "/v1/preview", `{"text":"Hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503; body %s", rec.Code, rec.Body)
	}
}

func TestReadyz_StoryDBChecked(t *testing.T) {
	a := newTestApp(t, nil)

	rec := doJSON(t, a.Handler(), "GET", "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "story-db") {
		t.Errorf("body = %s, want story-db check", rec.Body)
	}
}

func TestSearchTool_WiredWhenSearcherInjected(t *testing.T) {
	a := newTestApp(t, nil, app.WithSearcher(&fakeSearcher{result: "breathe before the line"}))

	names := make([]string, 0, len(a.Tools()))
	for _, tool := range a.Tools() {
		names = append(names, tool.Definition.Name)
	}
	found := false
	for _, n := range names {
		if n == "search_acting_technique" {
			found = true
		}
	}
	if !found {
		t.Errorf("tools = %v, want search_acting_technique registered", names)
	}
}

func TestNew_EmbeddingDimensionsMismatchFails(t *testing.T) {
	cfg := &config.Config{}
	cfg.Story.DBPath = filepath.Join(t.TempDir(), "storyva.db")
	cfg.Retrieval.PostgresDSN = "postgres://localhost:5432/storyva"
	cfg.Retrieval.EmbeddingDimensions = 1536
	cfg.Providers.Embeddings.Name = "openai"

	embedder := &embedmock.Provider{DimensionsValue: 3072}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// The mismatch must fail before any database connection is attempted.
	_, err := app.New(context.Background(), cfg, &app.Providers{Embeddings: embedder}, app.WithLogger(logger))
	if err == nil {
		t.Fatal("New() should fail when embedding_dimensions disagrees with the model")
	}
	for _, want := range []string{"embedding_dimensions", "1536", "3072"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
