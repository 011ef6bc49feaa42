package llm

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this message responds to.
	ToolCallID string
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input.
	Parameters map[string]any
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a
// response.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64

	// MaxTokens caps completion length; zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the
	// conversation history.
	SystemPrompt string
}

// CompletionResponse is the full result of a blocking completion.
type CompletionResponse struct {
	// Content is the assistant's text reply. May be empty when the model
	// only requests tool calls.
	Content string

	// ToolCalls are the tool invocations the model requests, if any.
	ToolCalls []ToolCall

	// Usage is the token accounting for this exchange.
	Usage Usage
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty when the chunk
	// carries only a finish signal or tool calls.
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// "tool_calls", or "error".
	FinishReason string

	// ToolCalls contains accumulated tool invocations, emitted on the
	// final chunk.
	ToolCalls []ToolCall
}
