// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service that understands inline
// emotion markup tags such as "(sad)" or "(whispering)" and presents both a
// one-shot and a streaming interface. The streaming entry point,
// SynthesizeStream, accepts a channel of text fragments and returns a channel
// of raw audio bytes as they become available, so the caller can pipe LLM
// output straight into synthesis.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Multiple synthesis requests may run in parallel, e.g. an agent voice and a
// character preview voice at once.
type Provider interface {
	// Synthesize renders the full text in one request and returns the encoded
	// audio. Emotion markup tags embedded in text are passed to the backend
	// verbatim. voice selects the voice model; implementations return an
	// error if voice.ID is empty or unknown.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw audio byte slices as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. The caller must
	// drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis are signalled by closing the audio channel early;
	// callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)
}
