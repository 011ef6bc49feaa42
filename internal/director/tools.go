package director

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storyva/storyva/internal/markup"
	"github.com/storyva/storyva/internal/markup/diff"
	"github.com/storyva/storyva/internal/observe"
	"github.com/storyva/storyva/internal/preview"
	"github.com/storyva/storyva/internal/story"
	"github.com/storyva/storyva/pkg/provider/llm"
)

// Canonical tool names exposed to the LLM and over MCP.
const (
	ToolSearchTechnique = "search_acting_technique"
	ToolApplyDiff       = "apply_emotion_diff"
	ToolPreviewAudio    = "preview_line_audio"
)

// Searcher answers natural-language queries about voice acting techniques.
// Satisfied by *retrieval.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Previewer renders a marked-up line to an audio file.
// Satisfied by *preview.Renderer.
type Previewer interface {
	Render(ctx context.Context, text string, gender preview.Gender) (*preview.Result, error)
}

// NewSearchTechniqueTool returns the RAG search tool. Results include a
// Sources block citing book, author, and page. A nil metrics falls back to
// [observe.DefaultMetrics].
func NewSearchTechniqueTool(searcher Searcher, logger *slog.Logger, metrics *observe.Metrics) Tool {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return Tool{
		Definition: llm.ToolDefinition{
			Name: ToolSearchTechnique,
			Description: "Search voice acting books for techniques. " +
				"Use when the user asks how to convey an emotion or delivery, " +
				"e.g. \"techniques for conveying desperation in voice acting\". " +
				"Cite the sources returned (book title, author, page number).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Natural language query about voice acting techniques.",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return fmt.Sprintf("ERROR: invalid arguments: %v", err), nil
			}
			if strings.TrimSpace(in.Query) == "" {
				return "ERROR: query must not be empty.", nil
			}

			logger.Info("technique search", "query", in.Query)
			start := time.Now()
			result, err := searcher.Search(ctx, in.Query)
			metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
			if err != nil {
				logger.Error("technique search failed", "error", err)
				return fmt.Sprintf("Error retrieving technique: %v", err), nil
			}
			return result, nil
		},
	}
}

// NewApplyDiffTool returns the emotion diff tool. It parses the unified diff
// patch, verifies the original text still exists in the story, validates the
// proposed markup, and stages the resulting EmotionDiff as the session's
// pending change. The tool result is the diff's JSON form for display.
func NewApplyDiffTool(state *story.State, logger *slog.Logger) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name: ToolApplyDiff,
			Description: "Apply emotion control changes using a git-style unified diff. " +
				"Use when the user wants to add, modify, or remove emotion tags. " +
				"Original (-) lines must copy exact text from the current story. Format:\n" +
				"@@ -1 +1 @@\n-(old text with tags)\n+(new text with tags)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"diff_patch": map[string]any{
						"type":        "string",
						"description": "Unified diff with original (-) and proposed (+) lines.",
					},
					"explanation": map[string]any{
						"type":        "string",
						"description": "Brief explanation of why these changes were made (1-2 sentences).",
					},
				},
				"required": []string{"diff_patch"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var in struct {
				DiffPatch   string `json:"diff_patch"`
				Explanation string `json:"explanation"`
			}
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return fmt.Sprintf("ERROR: invalid arguments: %v", err), nil
			}

			original, proposed, err := diff.ParsePatch(in.DiffPatch)
			if err != nil {
				logger.Warn("invalid diff patch", "error", err)
				return fmt.Sprintf("ERROR: %v", err), nil
			}

			if current := state.CurrentText(); current != "" {
				if err := diff.VerifySource(original, current); err != nil {
					var stale *diff.StaleSourceError
					if errors.As(err, &stale) {
						logger.Warn("stale diff source", "original", original)
						return "ERROR: Original text not found in the current story. " +
							"The text may have been edited. Please copy the exact text from the story.", nil
					}
					return fmt.Sprintf("ERROR: %v", err), nil
				}
			}

			if res := markup.Validate(proposed); !res.Valid {
				logger.Warn("invalid proposed markup", "errors", res.Errors)
				return fmt.Sprintf("ERROR: Invalid emotion markup. %s", strings.Join(res.Errors, "; ")), nil
			}

			d := diff.Generate(original, proposed, in.Explanation)
			state.SetPending(d)
			logger.Info("emotion diff staged", "id", d.ID, "summary", d.Summary)

			out, err := d.ToJSON()
			if err != nil {
				return "", fmt.Errorf("director: encode diff: %w", err)
			}
			return out, nil
		},
	}
}

// NewPreviewTool returns the audio preview tool. The character gender is
// inferred from the line itself when the model omits it.
func NewPreviewTool(renderer Previewer, state *story.State, logger *slog.Logger) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name: ToolPreviewAudio,
			Description: "Generate an audio preview of a marked-up line using a character voice. " +
				"Use when the user asks how a line would sound. Infer character_gender from " +
				"pronouns, names, and attribution in the story; do not ask the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"marked_up_text": map[string]any{
						"type":        "string",
						"description": "Text with emotion tags applied, e.g. \"(sad) I'm leaving\".",
					},
					"character_gender": map[string]any{
						"type":        "string",
						"enum":        []string{"male", "female", "neutral"},
						"description": "Character gender for voice selection.",
					},
				},
				"required": []string{"marked_up_text"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var in struct {
				MarkedUpText    string `json:"marked_up_text"`
				CharacterGender string `json:"character_gender"`
			}
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return fmt.Sprintf("ERROR: invalid arguments: %v", err), nil
			}
			if strings.TrimSpace(in.MarkedUpText) == "" {
				return "ERROR: marked_up_text must not be empty.", nil
			}

			gender := preview.Gender(in.CharacterGender)
			if in.CharacterGender == "" {
				gender = preview.InferGender(in.MarkedUpText, state.CurrentText())
			}

			logger.Info("audio preview requested", "gender", string(gender))
			res, err := renderer.Render(ctx, in.MarkedUpText, gender)
			if err != nil {
				logger.Error("audio preview failed", "error", err)
				return fmt.Sprintf("Error generating audio preview: %v", err), nil
			}
			return fmt.Sprintf(
				"Audio preview generated successfully. File saved to: %s (Voice: %s)",
				res.Path, res.Gender), nil
		},
	}
}
