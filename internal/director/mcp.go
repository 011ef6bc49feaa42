package director

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer exposes the director's tools over the Model Context Protocol
// so external MCP clients (editors, other agents) can validate markup, stage
// diffs, and render previews against the same story session the director
// uses. Run the returned server over stdio with ServeStdio.
func NewMCPServer(tools []Tool, version string, logger *slog.Logger) (*mcpsdk.Server, error) {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "storyva-director",
		Version: version,
	}, nil)

	for _, tool := range tools {
		schema, err := paramsToSchema(tool.Definition.Parameters)
		if err != nil {
			return nil, fmt.Errorf("director: schema for tool %s: %w", tool.Definition.Name, err)
		}

		handler := tool.Handler
		name := tool.Definition.Name
		mcpsdk.AddTool(server, &mcpsdk.Tool{
			Name:        name,
			Description: tool.Definition.Description,
			InputSchema: schema,
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest, args map[string]any) (*mcpsdk.CallToolResult, any, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, nil, fmt.Errorf("encode arguments: %w", err)
			}
			logger.Info("mcp tool call", "tool", name)
			out, err := handler(ctx, string(raw))
			if err != nil {
				return nil, nil, err
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
			}, nil, nil
		})
	}

	return server, nil
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled or
// the client disconnects.
func ServeStdio(ctx context.Context, server *mcpsdk.Server) error {
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("director: mcp server: %w", err)
	}
	return nil
}

// paramsToSchema converts a JSON-schema-shaped parameter map into the SDK's
// schema type.
func paramsToSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}
