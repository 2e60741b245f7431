// Command vellum is the main entry point for the Vellum knowledge base server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/saianfordx/vellum/internal/app"
	"github.com/saianfordx/vellum/internal/config"
	"github.com/saianfordx/vellum/internal/observe"
	"github.com/saianfordx/vellum/pkg/provider/embeddings"
	ollamaembed "github.com/saianfordx/vellum/pkg/provider/embeddings/ollama"
	oaembed "github.com/saianfordx/vellum/pkg/provider/embeddings/openai"
	simembed "github.com/saianfordx/vellum/pkg/provider/embeddings/simulated"
	"github.com/saianfordx/vellum/pkg/provider/image"
	imgopenai "github.com/saianfordx/vellum/pkg/provider/image/openai"
	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/provider/llm/anyllm"
	llmopenai "github.com/saianfordx/vellum/pkg/provider/llm/openai"
	simllm "github.com/saianfordx/vellum/pkg/provider/llm/simulated"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vellum: no config file at %q (start from configs/example.yaml)\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vellum: %v\n", err)
		}
		return 1
	}

	// ── Logging ───────────────────────────────────────────────────────────────
	logger, level := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vellum starting",
		"config", *configPath,
		"listen", cfg.Server.ListenAddr,
		"level", cfg.Server.LogLevel,
	)

	// ── Signals ───────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	stopTelemetry, err := observe.StartTelemetry(observe.Telemetry{
		Service: "vellum",
	})
	if err != nil {
		slog.Error("telemetry setup failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerProviders(reg)

	providers, err := resolveProviders(cfg, reg)
	if err != nil {
		slog.Error("provider setup failed", "err", err)
		return 1
	}

	// ── Summary ───────────────────────────────────────────────────────────────
	printSummary(cfg)

	srv, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(level))
	if err != nil {
		slog.Error("application setup failed", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		if err := srv.ApplyReload(next); err != nil {
			slog.Error("config reload failed", "err", err)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("serving — Ctrl+C to stop")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "err", err)
		return 1
	}

	// ── Shutdown ──────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("signal received, shutting down…")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
		return 1
	}
	slog.Info("stopped cleanly")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providerCatalog lists, per capability, the provider names this binary can
// build. Anything else in the config resolves only if a third party
// registered it.
var providerCatalog = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile", "simulated"},
	"embeddings": {"openai", "ollama", "simulated"},
	"image":      {"openai"},
}

// registerProviders installs a factory for every name in [providerCatalog].
func registerProviders(reg *config.Registry) {
	// openai goes through the native SDK client; everything else shares the
	// any-llm gateway pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := strOpt(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama speaks to a local daemon, so the address stands in for the key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterLLM("simulated", func(config.ProviderEntry) (llm.Provider, error) {
		return simllm.New(), nil
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := intOpt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("simulated", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return simembed.New(intOpt(entry.Options, "dimensions")), nil
	})

	reg.RegisterImage("openai", func(entry config.ProviderEntry) (image.Provider, error) {
		var opts []imgopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, imgopenai.WithBaseURL(entry.BaseURL))
		}
		return imgopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for kind, names := range providerCatalog {
		slog.Debug("providers registered", "kind", kind, "names", names)
	}
}

// resolveProviders turns each configured provider name into an instance
// through the registry. A name without a factory leaves its slot nil (the app
// substitutes the offline fallback); a factory that fails aborts startup.
func resolveProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	var ps app.Providers

	slots := []struct {
		kind  string
		entry config.ProviderEntry
		build func(config.ProviderEntry) error
	}{
		{"llm", cfg.Providers.LLM, func(e config.ProviderEntry) error {
			p, err := reg.CreateLLM(e)
			if err != nil {
				return err
			}
			ps.LLM = p
			return nil
		}},
		{"embeddings", cfg.Providers.Embeddings, func(e config.ProviderEntry) error {
			p, err := reg.CreateEmbeddings(e)
			if err != nil {
				return err
			}
			ps.Embeddings = p
			return nil
		}},
		{"image", cfg.Providers.Image, func(e config.ProviderEntry) error {
			p, err := reg.CreateImage(e)
			if err != nil {
				return err
			}
			ps.Image = p
			return nil
		}},
	}

	for _, s := range slots {
		if s.entry.Name == "" {
			continue
		}
		err := s.build(s.entry)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("no factory for provider, slot left empty", "kind", s.kind, "name", s.entry.Name)
		case err != nil:
			return nil, fmt.Errorf("build %s provider %q: %w", s.kind, s.entry.Name, err)
		default:
			slog.Info("provider ready", "kind", s.kind, "name", s.entry.Name, "model", s.entry.Model)
		}
	}
	return &ps, nil
}

// ── Startup banner ────────────────────────────────────────────────────────────

func printSummary(cfg *config.Config) {
	rows := [][2]string{
		{"llm", providerLabel(cfg.Providers.LLM)},
		{"embeddings", providerLabel(cfg.Providers.Embeddings)},
		{"image", providerLabel(cfg.Providers.Image)},
		{"index", string(cfg.Index.Backend)},
		{"docstore", string(cfg.Docstore.Backend)},
		{"mcp servers", strconv.Itoa(len(cfg.MCP.Servers))},
		{"listen", cfg.Server.ListenAddr},
	}
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║     Vellum runtime configuration     ║")
	fmt.Println("╠══════════════════════════════════════╣")
	for _, row := range rows {
		v := row[1]
		if v == "" {
			v = "(not set)"
		}
		if len(v) > 24 {
			v = v[:21] + "…"
		}
		fmt.Printf("║ %-11s %-24s ║\n", row[0], v)
	}
	fmt.Println("╚══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return ""
	case e.Model == "":
		return e.Name
	default:
		return e.Name + " / " + e.Model
	}
}

// ── Logging ───────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar backs the
// handler, so config reloads can change verbosity on the fly.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(level.Slog())
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// ── Option map access ─────────────────────────────────────────────────────────

// strOpt reads a string out of a provider Options map. A nil map, a missing
// key and a non-string value all come back as "".
func strOpt(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// intOpt reads an integer the same way. YAML decodes bare numbers as int, but
// float64 is accepted too for JSON-sourced maps.
func intOpt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
