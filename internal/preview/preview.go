// Package preview renders short audio previews of marked-up dialogue lines.
//
// A Renderer picks a character voice by gender, synthesises the line through a
// tts.Provider, and writes the audio to a file in the configured output
// directory. File names are derived from a content hash so repeated previews
// of the same line overwrite rather than accumulate.
package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/storyva/storyva/internal/observe"
	"github.com/storyva/storyva/pkg/provider/tts"
)

// Gender selects which character voice a preview uses.
type Gender string

// Recognised gender values.
const (
	Male    Gender = "male"
	Female  Gender = "female"
	Neutral Gender = "neutral"
)

// Result describes a rendered preview.
type Result struct {
	// Path is the absolute path of the written audio file.
	Path string `json:"audio_path"`
	// Voice is the ID of the voice model used.
	Voice string `json:"voice_id"`
	// Gender is the resolved character gender.
	Gender Gender `json:"character_gender"`
	// Bytes is the size of the audio payload.
	Bytes int `json:"bytes"`
	// Duration is how long synthesis took.
	Duration time.Duration `json:"-"`
}

// Renderer generates audio previews using per-gender character voices.
type Renderer struct {
	synth     tts.Provider
	voices    map[Gender]tts.VoiceProfile
	outputDir string
	format    string
	logger    *slog.Logger
	metrics   *observe.Metrics
}

// Option is a functional option for Renderer.
type Option func(*Renderer)

// WithFormat sets the audio file extension (default "mp3").
func WithFormat(format string) Option {
	return func(r *Renderer) {
		r.format = format
	}
}

// WithLogger sets the logger used by the renderer.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

// WithMetrics sets the metrics instance used to record synthesis latency.
// The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// NewRenderer creates a Renderer writing previews into outputDir, which is
// created if missing. voices maps genders to voice profiles; a missing
// Neutral entry falls back to the Male voice, matching the convention that
// unattributed lines default to the male character voice.
func NewRenderer(synth tts.Provider, voices map[Gender]tts.VoiceProfile, outputDir string, opts ...Option) (*Renderer, error) {
	if synth == nil {
		return nil, fmt.Errorf("preview: synth must not be nil")
	}
	if _, ok := voices[Male]; !ok {
		return nil, fmt.Errorf("preview: voices must include a %q entry", Male)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("preview: create output dir: %w", err)
	}

	vs := make(map[Gender]tts.VoiceProfile, len(voices)+1)
	for g, v := range voices {
		vs[g] = v
	}
	if _, ok := vs[Neutral]; !ok {
		vs[Neutral] = vs[Male]
	}

	r := &Renderer{
		synth:     synth,
		voices:    vs,
		outputDir: outputDir,
		format:    "mp3",
		logger:    slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Render synthesises text with the voice for gender and writes the audio to
// disk. An unknown gender value falls back to Neutral.
func (r *Renderer) Render(ctx context.Context, text string, gender Gender) (*Result, error) {
	if text == "" {
		return nil, fmt.Errorf("preview: text must not be empty")
	}

	voice, ok := r.voices[gender]
	if !ok {
		gender = Neutral
		voice = r.voices[Neutral]
	}

	start := time.Now()
	audio, err := r.synth.Synthesize(ctx, text, voice)
	r.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", voice.Provider)))
	if err != nil {
		return nil, fmt.Errorf("preview: synthesize: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("preview: synthesizer returned no audio")
	}

	path := filepath.Join(r.outputDir, r.fileName(text))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return nil, fmt.Errorf("preview: write audio file: %w", err)
	}

	res := &Result{
		Path:     path,
		Voice:    voice.ID,
		Gender:   gender,
		Bytes:    len(audio),
		Duration: time.Since(start),
	}
	r.logger.Debug("preview rendered",
		"path", res.Path,
		"gender", string(gender),
		"bytes", res.Bytes,
		"duration", res.Duration)
	return res, nil
}

// fileName derives a stable file name from the text content.
func (r *Renderer) fileName(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("preview_%s.%s", hex.EncodeToString(sum[:4]), r.format)
}

var (
	femaleIndicators = regexp.MustCompile(`(?i)\b(she|her|hers|herself|sarah|emma|mary|jane|lisa)\b`)
	maleIndicators   = regexp.MustCompile(`(?i)\b(he|him|his|himself|marcus|john|david|michael|james)\b`)
)

// InferGender guesses a character's gender from a dialogue line and optional
// surrounding context using pronoun and name heuristics. When the signals tie
// it returns Neutral.
func InferGender(text, context string) Gender {
	full := text + " " + context
	female := len(femaleIndicators.FindAllString(full, -1))
	male := len(maleIndicators.FindAllString(full, -1))
	switch {
	case female > male:
		return Female
	case male > female:
		return Male
	default:
		return Neutral
	}
}
