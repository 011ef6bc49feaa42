// Package retrieval provides semantic search over a library of acting
// technique passages.
//
// Passages are book excerpts (title, author, page, content) stored in a
// PostgreSQL table with a pgvector HNSW index. Queries are embedded through an
// embeddings.Provider and answered by cosine nearest-neighbour search. Results
// are formatted with a Sources block naming each cited book, author, and page
// so the director can attribute its advice.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/storyva/storyva/pkg/provider/embeddings"
)

// DefaultTopK is the number of passages returned when no override is given.
const DefaultTopK = 3

// Passage is a single excerpt from an acting technique book.
type Passage struct {
	ID        string
	Title     string
	Author    string
	Page      int
	Content   string
	Embedding []float32
}

// PassageResult is a Passage together with its cosine distance from the query.
type PassageResult struct {
	Passage  Passage
	Distance float64
}

// Retriever performs embedding-based search over the passages table.
// All methods are safe for concurrent use.
type Retriever struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	topK     int
}

// Option is a functional option for Retriever.
type Option func(*Retriever)

// WithTopK sets the number of passages returned per search.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New connects to the PostgreSQL database at dsn, registers pgvector types on
// every connection, and ensures the passages schema exists. The embedding
// column dimension is taken from embedder.Dimensions(); changing the embedding
// model after the first migration requires a manual schema change.
func New(ctx context.Context, dsn string, embedder embeddings.Provider, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("retrieval: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("retrieval: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("retrieval: migrate: %w", err)
	}

	r := &Retriever{pool: pool, embedder: embedder, topK: DefaultTopK}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Migrate creates or ensures the passages table and its pgvector index exist.
// Idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS passages (
    id         TEXT         PRIMARY KEY,
    title      TEXT         NOT NULL,
    author     TEXT         NOT NULL,
    page       INTEGER      NOT NULL DEFAULT 0,
    content    TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_passages_title
    ON passages (title);

CREATE INDEX IF NOT EXISTS idx_passages_embedding
    ON passages USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("retrieval migrate: %w", err)
	}
	return nil
}

// IndexPassage upserts a passage. If p.Embedding is nil the content is
// embedded first. A passage with the same ID is completely replaced.
func (r *Retriever) IndexPassage(ctx context.Context, p Passage) error {
	if p.ID == "" {
		return fmt.Errorf("retrieval: passage ID must not be empty")
	}
	if p.Embedding == nil {
		vec, err := r.embedder.Embed(ctx, p.Content)
		if err != nil {
			return fmt.Errorf("retrieval: embed passage %s: %w", p.ID, err)
		}
		p.Embedding = vec
	}

	const q = `
		INSERT INTO passages (id, title, author, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    title     = EXCLUDED.title,
		    author    = EXCLUDED.author,
		    page      = EXCLUDED.page,
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	_, err := r.pool.Exec(ctx, q,
		p.ID, p.Title, p.Author, p.Page, p.Content, pgvector.NewVector(p.Embedding))
	if err != nil {
		return fmt.Errorf("retrieval: index passage %s: %w", p.ID, err)
	}
	return nil
}

// IndexBatch embeds and upserts passages in one embedding call. Passages that
// already carry an embedding keep it.
func (r *Retriever) IndexBatch(ctx context.Context, passages []Passage) error {
	var missing []int
	var texts []string
	for i, p := range passages {
		if p.Embedding == nil {
			missing = append(missing, i)
			texts = append(texts, p.Content)
		}
	}
	if len(texts) > 0 {
		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("retrieval: embed batch: %w", err)
		}
		for j, i := range missing {
			passages[i].Embedding = vecs[j]
		}
	}
	for _, p := range passages {
		if err := r.IndexPassage(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SearchPassages returns the topK passages closest to the query embedding,
// ordered by ascending cosine distance. Never returns a nil slice on success.
func (r *Retriever) SearchPassages(ctx context.Context, embedding []float32, topK int) ([]PassageResult, error) {
	const q = `
		SELECT id, title, author, page, content, embedding,
		       embedding <=> $1 AS distance
		FROM   passages
		ORDER  BY distance
		LIMIT  $2`

	rows, err := r.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PassageResult, error) {
		var (
			pr  PassageResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&pr.Passage.ID,
			&pr.Passage.Title,
			&pr.Passage.Author,
			&pr.Passage.Page,
			&pr.Passage.Content,
			&vec,
			&pr.Distance,
		); err != nil {
			return PassageResult{}, err
		}
		pr.Passage.Embedding = vec.Slice()
		return pr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: scan rows: %w", err)
	}
	if results == nil {
		results = []PassageResult{}
	}
	return results, nil
}

// Search embeds query, retrieves the closest passages, and returns them as a
// formatted answer with a Sources block. Returns a short "no results" message
// when the library is empty.
func (r *Retriever) Search(ctx context.Context, query string) (string, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("retrieval: embed query: %w", err)
	}
	results, err := r.SearchPassages(ctx, vec, r.topK)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// Ping reports whether the database is reachable.
func (r *Retriever) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (r *Retriever) Close() {
	r.pool.Close()
}

// FormatResults renders retrieved passages as the text handed back to the
// director: passage contents separated by blank lines, then a Sources block
// listing each cited work once as "- Title by Author (p.N)".
func FormatResults(results []PassageResult) string {
	if len(results) == 0 {
		return "No relevant acting techniques found for this query."
	}

	var parts []string
	for _, res := range results {
		parts = append(parts, strings.TrimSpace(res.Passage.Content))
	}

	var sources []string
	seen := map[string]bool{}
	for _, res := range results {
		line := fmt.Sprintf("- %s by %s (p.%d)", res.Passage.Title, res.Passage.Author, res.Passage.Page)
		if seen[line] {
			continue
		}
		seen[line] = true
		sources = append(sources, line)
	}

	text := strings.Join(parts, "\n\n")
	if len(sources) > 0 {
		text += "\n\nSources:\n" + strings.Join(sources, "\n")
	}
	return text
}
