package director

import (
	"context"

	"github.com/storyva/storyva/pkg/provider/llm"
)

// Tool pairs an LLM-facing definition with the Go function that executes it.
//
// Handlers receive the raw JSON argument object produced by the model and
// return the string handed back as the tool result. Application-level
// failures (bad patch format, stale source text, invalid markup) are reported
// as "ERROR: ..." strings in the result so the model can correct itself and
// retry; the error return is reserved for failures the model cannot fix,
// such as an unreachable backend.
type Tool struct {
	// Definition describes the tool to the LLM.
	Definition llm.ToolDefinition

	// Handler executes the tool with the model-supplied JSON arguments.
	Handler func(ctx context.Context, args string) (string, error)
}
