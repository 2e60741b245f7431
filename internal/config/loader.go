package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/saianfordx/vellum/internal/toolhost"
)

// ValidProviderNames lists the provider names the application ships factories
// for, per capability. [Validate] warns about names outside these lists but
// does not reject them; third-party registrations are legal.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "simulated"},
	"embeddings": {"openai", "ollama", "simulated"},
	"image":      {"openai"},
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates YAML from r. Unknown keys are
// rejected, so a typoed setting fails loudly instead of silently keeping its
// default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every failure joined into one
// error, so a broken file surfaces all of its problems at once. Settings that
// are legal but probably unintended log warnings instead.
func Validate(cfg *Config) error {
	warnProviders(cfg)

	var errs []error
	errs = append(errs, checkServer(&cfg.Server)...)
	errs = append(errs, checkStorage(cfg)...)
	errs = append(errs, checkIngest(&cfg.Ingest)...)
	errs = append(errs, checkAgent(&cfg.Agent)...)
	errs = append(errs, checkMCP(&cfg.MCP)...)
	return errors.Join(errs...)
}

// warnProviders flags provider names that look like typos and capabilities
// left unconfigured. None of that is an error: unknown names may be
// third-party registrations, and missing capabilities get offline stand-ins.
func warnProviders(cfg *Config) {
	for kind, entry := range map[string]ProviderEntry{
		"llm":        cfg.Providers.LLM,
		"embeddings": cfg.Providers.Embeddings,
		"image":      cfg.Providers.Image,
	} {
		if entry.Name == "" || slices.Contains(ValidProviderNames[kind], entry.Name) {
			continue
		}
		slog.Warn("provider name is not on the built-in list",
			"kind", kind,
			"name", entry.Name,
			"known", ValidProviderNames[kind],
		)
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; answers will come from the offline simulated responder")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; retrieval will use the deterministic simulated embedder")
	}
	if cfg.Providers.Image.Name == "" {
		slog.Warn("no image provider configured; image generation will not be offered to the model")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Index.Dimensions == 0 {
		slog.Warn("index.dimensions is not set; the embedding provider's native dimension will be used")
	}
}

func checkServer(s *ServerConfig) []error {
	var errs []error
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	return errs
}

func checkStorage(cfg *Config) []error {
	var errs []error
	if cfg.Index.Backend != "" && !cfg.Index.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("index.backend %q is invalid; valid values: postgres, memory", cfg.Index.Backend))
	}
	if cfg.Index.Backend == BackendPostgres && cfg.Index.PostgresDSN == "" {
		errs = append(errs, errors.New("index.postgres_dsn is required when index.backend is postgres"))
	}
	if cfg.Index.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("index.dimensions %d must not be negative", cfg.Index.Dimensions))
	}
	if cfg.Docstore.Backend != "" && !cfg.Docstore.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("docstore.backend %q is invalid; valid values: postgres, memory", cfg.Docstore.Backend))
	}
	if cfg.Docstore.Backend == BackendPostgres && cfg.Docstore.PostgresDSN == "" && cfg.Index.PostgresDSN == "" {
		errs = append(errs, errors.New("docstore.postgres_dsn (or index.postgres_dsn) is required when docstore.backend is postgres"))
	}
	return errs
}

func checkIngest(in *IngestConfig) []error {
	var errs []error
	nonNegative := []struct {
		key string
		val int
	}{
		{"ingest.chunk_size", in.ChunkSize},
		{"ingest.chunk_overlap", in.ChunkOverlap},
		{"ingest.batch_size", in.BatchSize},
		{"ingest.batch_delay_ms", in.BatchDelayMS},
	}
	for _, f := range nonNegative {
		if f.val < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", f.key, f.val))
		}
	}
	if in.ChunkSize > 0 && in.ChunkOverlap >= in.ChunkSize {
		slog.Warn("ingest.chunk_overlap is at least chunk_size; consecutive chunks will be almost entirely redundant",
			"chunk_size", in.ChunkSize,
			"chunk_overlap", in.ChunkOverlap,
		)
	}
	return errs
}

func checkAgent(a *AgentConfig) []error {
	var errs []error
	if a.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations %d must not be negative", a.MaxIterations))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	return errs
}

func checkMCP(m *MCPConfig) []error {
	var errs []error
	seen := make(map[string]int, len(m.Servers))
	for i, srv := range m.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[srv.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		} else {
			seen[srv.Name] = i
		}
		switch srv.Transport {
		case "":
			errs = append(errs, fmt.Errorf("%s.transport is required; valid values: stdio, http", prefix))
		case toolhost.TransportStdio:
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case toolhost.TransportHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, http", prefix, srv.Transport))
		}
	}
	return errs
}
