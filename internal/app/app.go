// Package app wires all StoryVA subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithSearcher, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/internal/director"
	"github.com/storyva/storyva/internal/health"
	"github.com/storyva/storyva/internal/observe"
	"github.com/storyva/storyva/internal/preview"
	"github.com/storyva/storyva/internal/retrieval"
	"github.com/storyva/storyva/internal/story"
	"github.com/storyva/storyva/pkg/provider/embeddings"
	"github.com/storyva/storyva/pkg/provider/llm"
	"github.com/storyva/storyva/pkg/provider/tts"
)

// defaultDBPath is used when story.db_path is not configured.
const defaultDBPath = "storyva.db"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	TTS        tts.Provider
}

// App owns all subsystem lifetimes and serves the StoryVA HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	store     *story.Store
	state     *story.State
	retriever *retrieval.Retriever
	searcher  director.Searcher
	renderer  director.Previewer
	director  *director.Director
	tools     []director.Tool
	health    *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a story store instead of opening one from config.
func WithStore(s *story.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSearcher injects a technique searcher instead of connecting to
// PostgreSQL.
func WithSearcher(s director.Searcher) Option {
	return func(a *App) { a.searcher = s }
}

// WithRenderer injects a preview renderer instead of creating one from the
// TTS provider.
func WithRenderer(r director.Previewer) Option {
	return func(a *App) { a.renderer = r }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics bundle. Defaults to the globally registered
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initRetrieval(ctx); err != nil {
		return nil, fmt.Errorf("app: init retrieval: %w", err)
	}
	if err := a.initRenderer(); err != nil {
		return nil, fmt.Errorf("app: init preview: %w", err)
	}
	if err := a.initDirector(); err != nil {
		return nil, fmt.Errorf("app: init director: %w", err)
	}
	a.initHealth()

	return a, nil
}

// initStore opens the SQLite session store and creates the working session.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		path := a.cfg.Story.DBPath
		if path == "" {
			path = defaultDBPath
		}
		store, err := story.NewStore(path)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	state, err := a.store.CreateSession(ctx, "")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	a.state = state
	a.metrics.ActiveSessions.Add(ctx, 1)
	a.logger.Info("story session created", "session_id", state.ID())
	return nil
}

// initRetrieval connects the acting-technique retriever when a DSN and an
// embeddings provider are configured.
func (a *App) initRetrieval(ctx context.Context) error {
	if a.searcher != nil {
		return nil
	}
	if a.cfg.Retrieval.PostgresDSN == "" || a.providers.Embeddings == nil {
		a.logger.Warn("technique retrieval disabled",
			"dsn_configured", a.cfg.Retrieval.PostgresDSN != "",
			"embeddings_configured", a.providers.Embeddings != nil,
		)
		return nil
	}

	if want := a.cfg.Retrieval.EmbeddingDimensions; want > 0 && want != a.providers.Embeddings.Dimensions() {
		return fmt.Errorf("retrieval.embedding_dimensions is %d but the %q embeddings model produces %d-dimensional vectors",
			want, a.cfg.Providers.Embeddings.Name, a.providers.Embeddings.Dimensions())
	}

	r, err := retrieval.New(ctx, a.cfg.Retrieval.PostgresDSN, a.providers.Embeddings,
		retrieval.WithTopK(a.cfg.Retrieval.TopK),
	)
	if err != nil {
		return err
	}
	a.retriever = r
	a.searcher = r
	a.closers = append(a.closers, func() error {
		r.Close()
		return nil
	})
	return nil
}

// initRenderer creates the audio preview renderer when a TTS provider is
// configured.
func (a *App) initRenderer() error {
	if a.renderer != nil || a.providers.TTS == nil {
		return nil
	}

	voices := map[preview.Gender]tts.VoiceProfile{}
	if v := a.cfg.Preview.Voices.Male; v != "" {
		voices[preview.Male] = tts.VoiceProfile{ID: v, Provider: a.cfg.Providers.TTS.Name}
	}
	if v := a.cfg.Preview.Voices.Female; v != "" {
		voices[preview.Female] = tts.VoiceProfile{ID: v, Provider: a.cfg.Providers.TTS.Name}
	}
	if v := a.cfg.Preview.Voices.Neutral; v != "" {
		voices[preview.Neutral] = tts.VoiceProfile{ID: v, Provider: a.cfg.Providers.TTS.Name}
	}

	outputDir := a.cfg.Preview.OutputDir
	if outputDir == "" {
		outputDir = "previews"
	}

	popts := []preview.Option{preview.WithLogger(a.logger), preview.WithMetrics(a.metrics)}
	if a.cfg.Preview.Format != "" {
		popts = append(popts, preview.WithFormat(a.cfg.Preview.Format))
	}

	r, err := preview.NewRenderer(a.providers.TTS, voices, outputDir, popts...)
	if err != nil {
		return err
	}
	a.renderer = r
	return nil
}

// initDirector assembles the tool set and the conversational director.
// The director is optional: without an LLM provider the HTTP API still
// serves validation, patch, and preview endpoints.
func (a *App) initDirector() error {
	a.tools = append(a.tools, director.NewApplyDiffTool(a.state, a.logger))
	if a.searcher != nil {
		a.tools = append(a.tools, director.NewSearchTechniqueTool(a.searcher, a.logger, a.metrics))
	}
	if a.renderer != nil {
		a.tools = append(a.tools, director.NewPreviewTool(a.renderer, a.state, a.logger))
	}

	if a.providers.LLM == nil {
		a.logger.Warn("no LLM provider configured; conversational turns disabled")
		return nil
	}

	var dopts []director.Option
	if a.cfg.Director.Temperature > 0 {
		dopts = append(dopts, director.WithTemperature(a.cfg.Director.Temperature))
	}
	if a.cfg.Director.MaxToolRounds > 0 {
		dopts = append(dopts, director.WithMaxToolRounds(a.cfg.Director.MaxToolRounds))
	}
	dopts = append(dopts, director.WithLogger(a.logger), director.WithMetrics(a.metrics))

	d, err := director.New(a.providers.LLM, a.state, a.tools, dopts...)
	if err != nil {
		return err
	}
	a.director = d
	return nil
}

// initHealth registers readiness checkers for every connected dependency.
func (a *App) initHealth() {
	checkers := []health.Checker{health.PingChecker("story-db", a.store)}
	if a.retriever != nil {
		checkers = append(checkers, health.PingChecker("passages", a.retriever))
	}
	a.health = health.New(checkers...)
}

// State returns the active story session.
func (a *App) State() *story.State { return a.state }

// Tools returns the director tool set, for serving over MCP.
func (a *App) Tools() []director.Tool { return a.tools }

// Handler returns the HTTP API wrapped in the observability middleware.
func (a *App) Handler() http.Handler {
	return observe.Middleware(a.metrics)(a.routes())
}

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. Shutdown is called before Run returns.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tl := a.cfg.Server.TLS; tl != nil {
			err = srv.ListenAndServeTLS(tl.CertFile, tl.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sdCtx)
	})

	err := g.Wait()

	sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.Shutdown(sdCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		a.metrics.ActiveSessions.Add(ctx, -1)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
