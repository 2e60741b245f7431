package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/saianfordx/vellum/internal/config"
)

// TestValidate_BrokenConfigs runs every validation rule against a document
// that violates it. The joined error must name the offending keys, so an
// operator can fix the file without reading source.
func TestValidate_BrokenConfigs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		yaml     string
		mentions []string
	}{
		{
			name: "log level outside the known set",
			yaml: `
server:
  log_level: shouty
`,
			mentions: []string{"server.log_level"},
		},
		{
			name: "tls block with only a certificate",
			yaml: `
server:
  tls:
    cert_file: /etc/vellum/tls.crt
`,
			mentions: []string{"key_file"},
		},
		{
			name: "index backend nobody implements",
			yaml: `
index:
  backend: redis
`,
			mentions: []string{"index.backend"},
		},
		{
			name: "postgres index without a dsn",
			yaml: `
index:
  backend: postgres
`,
			mentions: []string{"index.postgres_dsn"},
		},
		{
			name: "negative vector dimensions",
			yaml: `
index:
  dimensions: -8
`,
			mentions: []string{"index.dimensions"},
		},
		{
			name: "docstore backend nobody implements",
			yaml: `
docstore:
  backend: cassandra
`,
			mentions: []string{"docstore.backend"},
		},
		{
			name: "postgres docstore with no dsn anywhere",
			yaml: `
docstore:
  backend: postgres
`,
			mentions: []string{"docstore.postgres_dsn"},
		},
		{
			name: "negative chunking settings",
			yaml: `
ingest:
  chunk_size: -1
  batch_size: -5
`,
			mentions: []string{"ingest.chunk_size", "ingest.batch_size"},
		},
		{
			name: "negative iteration cap",
			yaml: `
agent:
  max_iterations: -3
`,
			mentions: []string{"agent.max_iterations"},
		},
		{
			name: "temperature beyond 2",
			yaml: `
agent:
  temperature: 3.5
`,
			mentions: []string{"agent.temperature", "out of range"},
		},
		{
			name: "mcp server without a name",
			yaml: `
mcp:
  servers:
    - transport: stdio
      command: /bin/tools
`,
			mentions: []string{"name is required"},
		},
		{
			name: "two mcp servers sharing a name",
			yaml: `
mcp:
  servers:
    - name: tools
      transport: stdio
      command: /bin/a
    - name: tools
      transport: stdio
      command: /bin/b
`,
			mentions: []string{"duplicate"},
		},
		{
			name: "mcp server without a transport",
			yaml: `
mcp:
  servers:
    - name: tools
      command: /bin/a
`,
			mentions: []string{"transport is required"},
		},
		{
			name: "stdio transport without a command",
			yaml: `
mcp:
  servers:
    - name: tools
      transport: stdio
`,
			mentions: []string{"command is required"},
		},
		{
			name: "http transport without a url",
			yaml: `
mcp:
  servers:
    - name: web
      transport: http
`,
			mentions: []string{"url is required"},
		},
		{
			name: "transport nobody implements",
			yaml: `
mcp:
  servers:
    - name: tools
      transport: grpc
      command: /bin/a
`,
			mentions: []string{`"grpc"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("LoadFromReader accepted a config with a %s", tt.name)
			}
			for _, key := range tt.mentions {
				if !strings.Contains(err.Error(), key) {
					t.Errorf("error does not name %q: %v", key, err)
				}
			}
		})
	}
}

// TestValidate_ReportsEveryProblem breaks three sections at once and checks
// that the joined error carries all of them, not just the first.
func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: shouty
index:
  backend: postgres
agent:
  max_iterations: -3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("LoadFromReader() error = nil, want three validation failures")
	}
	for _, key := range []string{"log_level", "postgres_dsn", "max_iterations"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("joined error lost the %s failure: %v", key, err)
		}
	}
}

// TestValidate_LegalConfigs pins down documents that must pass: degenerate
// but explicit settings stay warnings, and memory backends need no DSN.
func TestValidate_LegalConfigs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "empty document",
			yaml: `{}`,
		},
		{
			name: "all-memory deployment",
			yaml: `
index:
  backend: memory
docstore:
  backend: memory
providers:
  embeddings:
    name: simulated
`,
		},
		{
			name: "docstore borrowing the index dsn",
			yaml: `
index:
  backend: postgres
  postgres_dsn: "postgres://localhost/vellum"
docstore:
  backend: postgres
`,
		},
		{
			name: "overlap equal to chunk size",
			yaml: `
ingest:
  chunk_size: 100
  chunk_overlap: 100
`,
		},
		{
			name: "tls with both files",
			yaml: `
server:
  tls:
    cert_file: /etc/vellum/tls.crt
    key_file: /etc/vellum/tls.key
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.LoadFromReader(strings.NewReader(tt.yaml)); err != nil {
				t.Errorf("LoadFromReader() error = %v, want nil", err)
			}
		})
	}
}

// TestValidProviderNames sanity-checks the lists behind the typo warnings.
func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "embeddings", "image"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
	if !slices.Contains(config.ValidProviderNames["llm"], "openai") {
		t.Errorf(`ValidProviderNames["llm"] = %v, want it to include "openai"`, config.ValidProviderNames["llm"])
	}
}
