// Package app assembles the Vellum server from its parts.
//
// New builds every subsystem a validated config asks for and connects them,
// Run serves the HTTP API until its context ends, and Shutdown unwinds what
// New built. Tests swap any subsystem for a double through the With* options;
// whatever is not injected gets built for real from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/saianfordx/vellum/internal/agent"
	"github.com/saianfordx/vellum/internal/config"
	"github.com/saianfordx/vellum/internal/embed"
	"github.com/saianfordx/vellum/internal/health"
	"github.com/saianfordx/vellum/internal/ingest"
	"github.com/saianfordx/vellum/internal/observe"
	"github.com/saianfordx/vellum/internal/resilience"
	"github.com/saianfordx/vellum/internal/toolhost"
	"github.com/saianfordx/vellum/internal/tools/conversation"
	"github.com/saianfordx/vellum/internal/tools/imagery"
	"github.com/saianfordx/vellum/internal/tools/retrieval"
	"github.com/saianfordx/vellum/pkg/docstore"
	docmemory "github.com/saianfordx/vellum/pkg/docstore/memory"
	docpostgres "github.com/saianfordx/vellum/pkg/docstore/postgres"
	"github.com/saianfordx/vellum/pkg/index"
	idxmemory "github.com/saianfordx/vellum/pkg/index/memory"
	idxpostgres "github.com/saianfordx/vellum/pkg/index/postgres"
	"github.com/saianfordx/vellum/pkg/provider/embeddings"
	simembed "github.com/saianfordx/vellum/pkg/provider/embeddings/simulated"
	"github.com/saianfordx/vellum/pkg/provider/image"
	"github.com/saianfordx/vellum/pkg/provider/llm"
	simllm "github.com/saianfordx/vellum/pkg/provider/llm/simulated"
)

// Providers carries the provider instances main resolved through the config
// registry. A nil slot means that capability was left unconfigured; New then
// falls back to the corresponding offline implementation.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	Image      image.Provider
}

// App owns all subsystem lifetimes and serves the Vellum HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics *observe.Metrics
	level   *slog.LevelVar

	// Built during New, unwound by Shutdown.
	llm      llm.Provider
	embedder embeddings.Provider
	imager   image.Provider
	idx      index.Index
	store    docstore.Store
	batcher  *embed.Batcher
	pipeline *ingest.Pipeline
	host     *toolhost.Host
	server   *http.Server

	// orch is swapped atomically when a config reload changes agent
	// settings, so in-flight turns keep the orchestrator they started with.
	orch atomic.Pointer[agent.Orchestrator]

	// indexReg unhooks the index size gauge callback during Shutdown.
	indexReg metric.Registration

	// closers run in registration order during Shutdown.
	closers []func() error

	// stopOnce makes Shutdown idempotent.
	stopOnce sync.Once
}

// Option adjusts how New assembles the app. Tests use these to slot in
// doubles for storage, providers and metrics.
type Option func(*App)

// WithIndex injects a vector index instead of creating one from config.
func WithIndex(idx index.Index) Option {
	return func(a *App) { a.idx = idx }
}

// WithDocstore injects a document store instead of creating one from config.
func WithDocstore(s docstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithToolHost injects a pre-built tool host. Builtin tools are still
// registered on it during New.
func WithToolHost(h *toolhost.Host) Option {
	return func(a *App) { a.host = h }
}

// WithMetrics injects a metrics bundle instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config reloads can adjust verbosity without a restart.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New assembles a ready-to-run App from the config and the resolved
// providers. Options may pre-fill any subsystem slot; everything still empty
// afterwards is built here.
//
// All initialisation happens synchronously: provider fallback chains,
// storage backends, the embedding batcher and ingestion pipeline, tool
// registration (builtin and MCP), the agent orchestrator, and the HTTP
// server. The listening socket itself is not opened until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Providers ─────────────────────────────────────────────────────
	a.initProviders()

	// ── 2. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Embedding batcher ─────────────────────────────────────────────
	if err := a.initBatcher(); err != nil {
		return nil, fmt.Errorf("app: init batcher: %w", err)
	}

	// ── 4. Ingestion pipeline ────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. Tool host ─────────────────────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 6. Agent orchestrator ────────────────────────────────────────────
	if err := a.initAgent(); err != nil {
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	// ── 7. HTTP server ───────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initProviders instruments the configured providers and arms the fallback
// chains. Every chain ends in the offline simulated provider, so a dead or
// absent upstream degrades answers instead of refusing them.
func (a *App) initProviders() {
	cb := resilience.ChainConfig{}

	if lp := a.providers.LLM; lp != nil {
		name := a.cfg.Providers.LLM.Name
		chain := resilience.NewLLMFallback(observe.InstrumentLLM(lp, a.metrics, name), name, cb)
		chain.AddFallback("simulated", simllm.New())
		a.llm = chain
	} else {
		slog.Warn("no LLM provider configured, all answers will be simulated")
		a.llm = observe.InstrumentLLM(simllm.New(), a.metrics, "simulated")
	}

	if ep := a.providers.Embeddings; ep != nil {
		name := a.cfg.Providers.Embeddings.Name
		chain := resilience.NewEmbeddingsFallback(observe.InstrumentEmbeddings(ep, a.metrics, name), name, cb)
		// The stand-in is sized from the primary so a failover never
		// produces vectors the index would reject.
		chain.AddFallback("simulated", simembed.New(ep.Dimensions()))
		a.embedder = chain
	} else {
		slog.Warn("no embeddings provider configured, vectors will be simulated")
		a.embedder = observe.InstrumentEmbeddings(simembed.New(a.cfg.Index.Dimensions), a.metrics, "simulated")
	}

	// No stand-in exists for image generation; without a provider the
	// image tool is simply not registered.
	if ip := a.providers.Image; ip != nil {
		a.imager = observe.InstrumentImage(ip, a.metrics, a.cfg.Providers.Image.Name)
	}
}

// initStorage sets up the vector index and document store, or uses injected
// ones, then hooks the index size gauge.
func (a *App) initStorage() error {
	dims := a.cfg.Index.Dimensions
	if dims == 0 {
		dims = a.embedder.Dimensions()
	}

	if a.idx == nil {
		switch a.cfg.Index.Backend {
		case config.BackendPostgres:
			var opts []idxpostgres.Option
			if ns := a.cfg.Index.Namespace; ns != "" {
				opts = append(opts, idxpostgres.WithNamespace(ns))
			}
			pg, err := idxpostgres.New(a.cfg.Index.PostgresDSN, dims, opts...)
			if err != nil {
				return fmt.Errorf("connect pgvector index: %w", err)
			}
			a.idx = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
		default:
			mem, err := idxmemory.New(dims)
			if err != nil {
				return fmt.Errorf("build memory index: %w", err)
			}
			a.idx = mem
			slog.Warn("using in-memory vector index, contents are lost on restart")
		}
	}
	a.idx = observe.InstrumentIndex(a.idx, a.metrics)

	if a.store == nil {
		switch a.cfg.Docstore.Backend {
		case config.BackendPostgres:
			dsn := a.cfg.Docstore.PostgresDSN
			if dsn == "" {
				dsn = a.cfg.Index.PostgresDSN
			}
			pg, err := docpostgres.New(dsn)
			if err != nil {
				return fmt.Errorf("connect document store: %w", err)
			}
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
		default:
			a.store = docmemory.New()
		}
	}

	reg, err := observe.RegisterIndexSize(otel.GetMeterProvider(), func(ctx context.Context) (int64, bool) {
		stats, err := a.idx.Stats(ctx)
		if err != nil {
			return 0, false
		}
		return int64(stats.TotalVectorCount), true
	})
	if err != nil {
		return fmt.Errorf("register index size gauge: %w", err)
	}
	a.indexReg = reg

	return nil
}

// initBatcher builds the embedding batcher from the ingest settings.
func (a *App) initBatcher() error {
	var opts []embed.Option
	if n := a.cfg.Ingest.BatchSize; n > 0 {
		opts = append(opts, embed.WithBatchSize(n))
	}
	if d := a.cfg.Index.Dimensions; d > 0 {
		opts = append(opts, embed.WithDimensions(d))
	}
	if ms := a.cfg.Ingest.BatchDelayMS; ms > 0 {
		opts = append(opts, embed.WithBatchDelay(time.Duration(ms)*time.Millisecond))
	}

	b, err := embed.New(a.embedder, opts...)
	if err != nil {
		return err
	}
	a.batcher = b
	return nil
}

// initPipeline builds the ingestion pipeline with a chunker sized from config.
func (a *App) initPipeline() error {
	ccfg := ingest.DefaultChunkerConfig()
	if n := a.cfg.Ingest.ChunkSize; n > 0 {
		ccfg.ChunkSize = n
	}
	if n := a.cfg.Ingest.ChunkOverlap; n > 0 {
		ccfg.ChunkOverlap = n
	}
	chunker, err := ingest.NewChunker(ccfg)
	if err != nil {
		return fmt.Errorf("build chunker: %w", err)
	}

	p, err := ingest.NewPipeline(a.store, a.idx, a.batcher, ingest.WithChunker(chunker))
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// initTools sets up the tool host, registers the builtin tools, and connects
// any configured MCP servers.
func (a *App) initTools(ctx context.Context) error {
	if a.host == nil {
		a.host = toolhost.New(
			toolhost.WithDefaultTool(retrieval.ToolRetrieveDocuments),
			toolhost.WithMetrics(a.metrics),
		)
		a.closers = append(a.closers, a.host.Close)
	}

	ret, err := retrieval.New(a.batcher, a.idx,
		retrieval.WithDocstore(a.store),
		retrieval.WithIndexName(a.cfg.Index.Name),
	)
	if err != nil {
		return fmt.Errorf("build retrieval service: %w", err)
	}
	if err := a.host.RegisterBuiltins(ret.Tools()...); err != nil {
		return err
	}

	if err := a.host.RegisterBuiltins(conversation.Tools()...); err != nil {
		return err
	}

	if a.imager != nil {
		img, err := imagery.New(a.imager)
		if err != nil {
			return fmt.Errorf("build imagery service: %w", err)
		}
		if err := a.host.RegisterBuiltins(img.Tools()...); err != nil {
			return err
		}
	} else {
		slog.Info("image provider not configured, tool disabled", "tool", imagery.ToolGenerateImage)
	}

	for _, srv := range a.cfg.MCP.Servers {
		if err := a.host.RegisterServer(ctx, srv.HostConfig()); err != nil {
			return fmt.Errorf("attach mcp server %q: %w", srv.Name, err)
		}
		slog.Info("mcp server attached", "name", srv.Name)
	}

	return nil
}

// initAgent builds the initial orchestrator from the agent settings.
func (a *App) initAgent() error {
	orch, err := a.buildOrchestrator(a.cfg.Agent)
	if err != nil {
		return err
	}
	a.orch.Store(orch)
	return nil
}

// buildOrchestrator assembles an orchestrator over the provider chain and
// tool host. Called at startup and again when a reload changes agent settings.
func (a *App) buildOrchestrator(cfg config.AgentConfig) (*agent.Orchestrator, error) {
	var opts []agent.Option
	if n := cfg.MaxIterations; n > 0 {
		opts = append(opts, agent.WithMaxIterations(n))
	}
	if t := cfg.Temperature; t > 0 {
		opts = append(opts, agent.WithTemperature(t))
	}
	if p := cfg.SystemPrompt; p != "" {
		opts = append(opts, agent.WithSystemPrompt(p))
	}
	return agent.New(a.llm, a.host, opts...)
}

// initHTTP assembles the mux: health probes, Prometheus metrics, and the
// chat + document endpoints, all behind the tracing middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	health.New(
		health.IndexChecker(a.idx),
		health.DocstoreChecker(a.store),
		health.ProvidersChecker(a.llm, a.embedder),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/chat", a.handleChat)
	mux.HandleFunc("POST /v1/documents", a.handleUpload)
	mux.HandleFunc("GET /v1/documents", a.handleListDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", a.handleGetDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", a.handleDeleteDocument)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Orchestrator returns the current agent orchestrator. The pointer is swapped
// on reload, so callers must re-fetch it per request rather than caching it.
func (a *App) Orchestrator() *agent.Orchestrator {
	return a.orch.Load()
}

// Handler returns the root HTTP handler, middleware included. Useful for
// mounting the API into an existing server or driving it in tests without
// opening a socket.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// ApplyReload applies a changed configuration to the running app. Log level
// and agent settings take effect immediately; sections that cannot change at
// runtime are logged so the operator knows a restart is needed.
func (a *App) ApplyReload(next *config.Config) error {
	d := config.Diff(a.cfg, next)
	if d.Empty() {
		slog.Debug("config reload produced no changes")
		return nil
	}

	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level change ignored, no level var wired")
		}
	}

	if d.AgentChanged {
		orch, err := a.buildOrchestrator(d.NewAgent)
		if err != nil {
			return fmt.Errorf("app: rebuild orchestrator: %w", err)
		}
		a.orch.Store(orch)
		slog.Info("agent settings reloaded",
			"max_iterations", d.NewAgent.MaxIterations,
			"temperature", d.NewAgent.Temperature)
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}

	a.cfg = next
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens the server socket and blocks until ctx is cancelled or the server
// fails to serve. Cancellation returns ctx.Err(); call Shutdown afterwards to
// drain connections and tear down the subsystems.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"tools", len(a.host.Definitions()),
		"index_backend", string(a.cfg.Index.Backend))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains the HTTP server, then tears down all subsystems in order.
// When ctx expires mid-teardown the remaining closers are skipped and the
// context error comes back.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutdown started", "subsystems", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}
		if a.indexReg != nil {
			if err := a.indexReg.Unregister(); err != nil {
				slog.Warn("index gauge unregister error", "err", err)
			}
		}

		for i, closeFn := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown cut short", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closeFn(); err != nil {
				slog.Warn("subsystem close failed", "closer", i, "err", err)
			}
		}

		slog.Info("shutdown finished")
	})
	return shutdownErr
}
