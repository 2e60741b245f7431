// Package ollama embeds text with a locally hosted Ollama server
// (https://ollama.com), talking to its native /api/embed endpoint. Models
// like nomic-embed-text, mxbai-embed-large and all-minilm let the whole
// ingestion path run offline, with no hosted API in the loop.
//
//	p, err := ollama.New("", "nomic-embed-text")
//	vec, err := p.Embed(ctx, "query: what is a vector index?")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

// DefaultBaseURL points at an Ollama server on its standard local port.
const DefaultBaseURL = "http://localhost:11434"

// Provider implements embeddings.Provider on top of Ollama's /api/embed.
//
// The vector width is resolved in three steps: an explicit [WithDimensions]
// value wins, then the built-in table of common models, and as a last resort
// a single probe request against the live server, issued lazily on the first
// [Provider.Dimensions] call and cached. Provider is safe for concurrent use.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client

	dims      int
	probeOnce sync.Once
}

var _ embeddings.Provider = (*Provider)(nil)

// Option adjusts a Provider during construction.
type Option func(*Provider)

// WithTimeout caps each HTTP request. Zero or negative leaves requests
// unbounded, which is the default.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithDimensions fixes the embedding width up front so no table lookup or
// probe request happens.
func WithDimensions(dims int) Option {
	return func(p *Provider) { p.dims = dims }
}

// New builds a Provider for the given server and model. An empty baseURL
// means [DefaultBaseURL]; the model name is required.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model name is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dims == 0 {
		p.dims = lookupDims(model)
	}
	return p, nil
}

// Embed returns the vector for a single text. The text goes to the model
// verbatim; prompt prefixes some models expect, like the "query: " marker of
// nomic-embed-text, are the caller's job.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.requestEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("ollama embeddings: embed: server sent no vectors")
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one round trip, preserving order. An empty
// or nil slice short-circuits to (nil, nil) without touching the network.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.requestEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: sent %d texts, got %d vectors", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions reports the vector width. A model absent from both the options
// and the model table triggers one probe embed against the live server; the
// result is cached for the Provider's lifetime, and a failed probe reports 0.
func (p *Provider) Dimensions() int {
	p.probeOnce.Do(func() {
		if p.dims != 0 {
			return // resolved at construction
		}
		vecs, err := p.requestEmbeddings(context.Background(), []string{"probe"})
		if err == nil && len(vecs) > 0 {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID reports the model name given to [New].
func (p *Provider) ModelID() string {
	return p.model
}

// embedPayload and embedResult mirror the /api/embed wire format.
type embedPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResult struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// requestEmbeddings does one POST /api/embed round trip.
func (p *Provider) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedPayload{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Ollama reports failures as {"error": "..."}.
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var result embedResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, errors.New("no embeddings in response")
	}
	return result.Embeddings, nil
}

// modelDims lists the output widths of common Ollama embedding models.
// Matching is by substring so tagged names like nomic-embed-text:latest
// resolve too.
var modelDims = []struct {
	name string
	dims int
}{
	{"nomic-embed-text", 768},
	{"mxbai-embed-large", 1024},
	{"all-minilm", 384},
}

func lookupDims(model string) int {
	lower := strings.ToLower(model)
	for _, m := range modelDims {
		if strings.Contains(lower, m.name) {
			return m.dims
		}
	}
	return 0
}
