package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/internal/retrieval"
)

// passageFile is the on-disk format for `storyva index`: a JSON array of
// acting-technique passages with their source attribution.
type passageFile []struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "index file.json",
		Short: "Index acting-technique passages for retrieval",
		Long: "Embed and upsert a JSON array of acting-technique passages " +
			"into the PostgreSQL passage store used by the " +
			"search_acting_technique tool.",
		Args: cobra.ExactArgs(1),
		Run:  runIndex,
	}
	RootCmd.AddCommand(cmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(false)
	if err != nil {
		exitErr("load config", err)
	}
	initLogger(cfg)

	if cfg.Retrieval.PostgresDSN == "" {
		exitErr("index", fmt.Errorf("retrieval.postgres_dsn is not configured"))
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read passage file", err)
	}
	var file passageFile
	if err := json.Unmarshal(raw, &file); err != nil {
		exitErr("parse passage file", err)
	}
	if len(file) == 0 {
		exitErr("index", fmt.Errorf("%s contains no passages", args[0]))
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		exitErr("create embeddings provider", err)
	}

	ctx := cmd.Context()
	r, err := retrieval.New(ctx, cfg.Retrieval.PostgresDSN, embedder,
		retrieval.WithTopK(cfg.Retrieval.TopK),
	)
	if err != nil {
		exitErr("connect passage store", err)
	}
	defer r.Close()

	passages := make([]retrieval.Passage, len(file))
	for i, p := range file {
		passages[i] = retrieval.Passage{
			ID:      p.ID,
			Title:   p.Title,
			Author:  p.Author,
			Page:    p.Page,
			Content: p.Content,
		}
	}

	if err := r.IndexBatch(ctx, passages); err != nil {
		exitErr("index passages", err)
	}
	fmt.Printf("indexed %d passages\n", len(passages))
}
