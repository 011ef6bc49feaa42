// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., the OpenAI API or
// any backend reachable through any-llm-go) and exposes a uniform interface
// for the director to run tool-calling conversations without coupling to a
// specific SDK.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or the supplied context is cancelled.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete performs a blocking completion and returns the full response,
	// including any tool calls the model requests. At minimum req.Messages
	// must be non-empty.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion starts a streaming completion. The returned channel
	// emits chunks as they arrive and is closed when generation finishes or
	// ctx is cancelled. A non-nil error is returned only when the stream
	// cannot be started.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
