package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/storyva/storyva/internal/markup"
	"github.com/storyva/storyva/internal/markup/diff"
	"github.com/storyva/storyva/internal/observe"
	"github.com/storyva/storyva/internal/preview"
	"github.com/storyva/storyva/internal/story"
)

// shutdownTimeout bounds graceful HTTP shutdown and closer teardown.
const shutdownTimeout = 10 * time.Second

// routes builds the HTTP API. All bodies are JSON.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/story", a.handleGetStory)
	mux.HandleFunc("PUT /v1/story", a.handlePutStory)
	mux.HandleFunc("GET /v1/story/history", a.handleHistory)
	mux.HandleFunc("POST /v1/validate", a.handleValidate)
	mux.HandleFunc("POST /v1/patch", a.handlePatch)
	mux.HandleFunc("POST /v1/apply", a.handleApply)
	mux.HandleFunc("POST /v1/undo", a.handleUndo)
	mux.HandleFunc("POST /v1/turn", a.handleTurn)
	mux.HandleFunc("POST /v1/preview", a.handlePreview)

	return mux
}

// errorBody is the JSON error envelope shared by all endpoints.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// storyBody is the response for GET /v1/story and the request for PUT.
type storyBody struct {
	SessionID  string            `json:"session_id,omitempty"`
	Text       string            `json:"text"`
	Pending    *diff.EmotionDiff `json:"pending_diff,omitempty"`
	HistoryLen int               `json:"history_len,omitempty"`
}

func (a *App) handleGetStory(w http.ResponseWriter, _ *http.Request) {
	body := storyBody{
		SessionID:  a.state.ID(),
		Text:       a.state.CurrentText(),
		HistoryLen: len(a.state.History()),
	}
	if d, ok := a.state.Pending(); ok {
		body.Pending = &d
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *App) handlePutStory(w http.ResponseWriter, r *http.Request) {
	var body storyBody
	if !decodeBody(w, r, &body) {
		return
	}

	a.state.SetText(body.Text)
	if err := a.store.SaveText(r.Context(), a.state.ID(), body.Text); err != nil {
		writeError(w, http.StatusInternalServerError, "persist story: "+err.Error())
		return
	}

	a.logger.Info("story text replaced", "session_id", a.state.ID(), "chars", len(body.Text))
	writeJSON(w, http.StatusOK, storyBody{SessionID: a.state.ID(), Text: a.state.CurrentText()})
}

func (a *App) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]story.AppliedDiff{"history": a.state.History()})
}

type validateRequest struct {
	Text string `json:"text"`
}

func (a *App) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	res := markup.Validate(req.Text)
	a.metrics.ValidateDuration.Record(r.Context(), time.Since(start).Seconds())
	if !res.Valid {
		a.metrics.RecordValidationFailure(r.Context(), "markup")
	}

	writeJSON(w, http.StatusOK, res)
}

type patchRequest struct {
	Patch       string `json:"patch"`
	Explanation string `json:"explanation,omitempty"`
}

// handlePatch parses a unified-diff patch against the live story, validates
// the proposed markup, and stages the resulting diff for approval.
func (a *App) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	defer func() {
		a.metrics.DiffDuration.Record(r.Context(), time.Since(start).Seconds())
	}()

	original, proposed, err := diff.ParsePatch(req.Patch)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if live := a.state.CurrentText(); live != "" {
		if err := diff.VerifySource(original, live); err != nil {
			var stale *diff.StaleSourceError
			if errors.As(err, &stale) {
				writeError(w, http.StatusConflict, stale.Error())
				return
			}
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	if res := markup.Validate(proposed); !res.Valid {
		a.metrics.RecordValidationFailure(r.Context(), "markup")
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}

	d := diff.Generate(original, proposed, req.Explanation)
	a.state.SetPending(d)
	a.metrics.DiffsStaged.Add(r.Context(), 1)

	a.logger.Info("diff staged", "session_id", a.state.ID(), "diff_id", d.ID, "added_tags", len(d.AddedTags))
	writeJSON(w, http.StatusOK, d)
}

type applyRequest struct {
	// DiffID optionally guards against applying a stale pending diff.
	DiffID string `json:"diff_id,omitempty"`
}

// handleApply applies the pending diff to the story and persists the result.
func (a *App) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, ok := a.state.Pending()
	if !ok {
		writeError(w, http.StatusConflict, "no pending diff to apply")
		return
	}
	if req.DiffID != "" && req.DiffID != d.ID {
		writeError(w, http.StatusConflict, "pending diff id mismatch")
		return
	}

	if err := a.state.Apply(d); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	a.metrics.DiffsApplied.Add(r.Context(), 1)

	if err := a.persist(r, d); err != nil {
		writeError(w, http.StatusInternalServerError, "persist story: "+err.Error())
		return
	}

	a.logger.Info("diff applied", "session_id", a.state.ID(), "diff_id", d.ID)
	writeJSON(w, http.StatusOK, storyBody{SessionID: a.state.ID(), Text: a.state.CurrentText()})
}

func (a *App) handleUndo(w http.ResponseWriter, r *http.Request) {
	d, err := a.state.Undo()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := a.store.SaveText(r.Context(), a.state.ID(), a.state.CurrentText()); err != nil {
		writeError(w, http.StatusInternalServerError, "persist story: "+err.Error())
		return
	}

	a.logger.Info("diff undone", "session_id", a.state.ID(), "diff_id", d.ID)
	writeJSON(w, http.StatusOK, storyBody{SessionID: a.state.ID(), Text: a.state.CurrentText()})
}

type turnRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	Reply   string            `json:"reply"`
	Pending *diff.EmotionDiff `json:"pending_diff,omitempty"`
}

func (a *App) handleTurn(w http.ResponseWriter, r *http.Request) {
	if a.director == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM provider configured")
		return
	}

	var req turnRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	reply, err := a.director.Turn(r.Context(), req.Message)
	a.metrics.LLMDuration.Record(r.Context(), time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", a.cfg.Providers.LLM.Name)))
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), a.cfg.Providers.LLM.Name, "turn")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := turnResponse{Reply: reply}
	if d, ok := a.state.Pending(); ok {
		resp.Pending = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

type previewRequest struct {
	Text   string `json:"text"`
	Gender string `json:"gender,omitempty"`
}

func (a *App) handlePreview(w http.ResponseWriter, r *http.Request) {
	if a.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "no TTS provider configured")
		return
	}

	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	gender := preview.Gender(req.Gender)
	if req.Gender == "" {
		gender = preview.InferGender(req.Text, a.state.CurrentText())
	}

	start := time.Now()
	res, err := a.renderer.Render(r.Context(), req.Text, gender)
	a.metrics.PreviewDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), a.cfg.Providers.TTS.Name, "preview")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// persist writes the post-apply text and the applied diff to the store.
func (a *App) persist(r *http.Request, d diff.EmotionDiff) error {
	ctx := r.Context()
	if err := a.store.SaveText(ctx, a.state.ID(), a.state.CurrentText()); err != nil {
		return err
	}
	hist := a.state.History()
	return a.store.AppendDiff(ctx, a.state.ID(), hist[len(hist)-1])
}
