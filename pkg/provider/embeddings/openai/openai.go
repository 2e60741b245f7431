// Package openai embeds text through OpenAI's hosted embeddings API using
// the official openai-go client. The default model is text-embedding-3-large;
// the vector width the index is built with follows the model choice, so
// changing models means reindexing.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

// DefaultModel is used when [New] gets an empty model name.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Large

// Provider implements embeddings.Provider against the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

var _ embeddings.Provider = (*Provider)(nil)

// settings accumulates client options during construction.
type settings struct {
	clientOpts []option.RequestOption
}

// Option adjusts how the OpenAI client is built.
type Option func(*settings)

// WithBaseURL points the client at a different API endpoint, such as an
// Azure OpenAI deployment or a compatible proxy.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithBaseURL(url))
	}
}

// WithOrganization stamps the OpenAI organization ID on every request.
func WithOrganization(org string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithOrganization(org))
	}
}

// WithTimeout caps each HTTP request. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.clientOpts = append(s.clientOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New builds a Provider. The API key is required; an empty model selects
// [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key is empty")
	}
	if model == "" {
		model = DefaultModel
	}

	s := settings{clientOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, opt := range opts {
		opt(&s)
	}

	return &Provider{client: oai.NewClient(s.clientOpts...), model: model}, nil
}

// Embed returns the vector for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: embed: response carried no data")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch embeds all texts in one API call. The response may arrive out
// of order, so vectors are placed by the index the API reports rather than
// by response position. An empty slice returns (nil, nil) without a request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: embed batch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, e := range resp.Data {
		idx := int(e.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: embed batch: vector index %d out of range", idx)
		}
		vectors[idx] = toFloat32(e.Embedding)
	}
	return vectors, nil
}

// Dimensions reports the vector width of the configured model.
func (p *Provider) Dimensions() int {
	return dimensionsOf(p.model)
}

// ModelID reports the model name given to [New].
func (p *Provider) ModelID() string {
	return p.model
}

// dimensionsOf maps known OpenAI embedding models to their output widths.
// Unknown names fall back to the width of [DefaultModel].
func dimensionsOf(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"),
		strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 3072
	}
}

// toFloat32 narrows the API's float64 vectors to the float32 the index
// stores.
func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
