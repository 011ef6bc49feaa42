package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/storyva/storyva/internal/app"
	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/internal/director"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the director tools over MCP on stdio",
		Long: "Expose search_acting_technique, apply_emotion_diff, and " +
			"preview_line_audio as Model Context Protocol tools so external " +
			"agent hosts can drive a story session.",
		Run: runMCP,
	}
	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(false)
	if err != nil {
		exitErr("load config", err)
	}
	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		exitErr("build providers", err)
	}

	// The MCP host drives the conversation loop itself, so the app's own
	// director is not required here; only the tool set is served.
	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		exitErr("initialise application", err)
	}
	defer application.Shutdown(context.Background())

	server, err := director.NewMCPServer(application.Tools(), Version, logger)
	if err != nil {
		exitErr("create mcp server", err)
	}

	logger.Info("mcp server listening on stdio", "tools", len(application.Tools()))
	if err := director.ServeStdio(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
		exitErr("mcp serve", err)
	}
}
