// Package simulated provides a deterministic, offline embeddings provider.
//
// Unlike the mock package (a test double with canned responses), this provider
// computes real vectors from the input text: each token is hashed and projected
// onto a handful of dimensions, and the result is L2-normalized. Texts that
// share vocabulary land near each other in the vector space, so retrieval
// ranking behaves plausibly without any API key or network access.
//
// The vectors carry no semantic understanding. Use this provider for local
// development, demos, and integration tests only.
package simulated

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

// DefaultDimensions matches the dimensionality of text-embedding-3-large so a
// simulated index can later be re-pointed at the real model without migration.
const DefaultDimensions = 3072

// projectionsPerToken is how many dimensions each token contributes to.
const projectionsPerToken = 8

// Ensure Provider implements the embeddings.Provider interface at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider with hash-projected token vectors.
// It is stateless and safe for concurrent use.
type Provider struct {
	dims int
}

// New constructs a simulated Provider producing vectors of the given
// dimensionality. If dims is zero or negative, DefaultDimensions is used.
func New(dims int) *Provider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Provider{dims: dims}
}

// Embed implements embeddings.Provider. The same text always produces the
// same vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulated embeddings: embed: %w", err)
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider. Passing a nil or empty texts
// slice returns (nil, nil).
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulated embeddings: embed batch: %w", err)
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		result[i] = p.vector(t)
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return p.dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return fmt.Sprintf("simulated-%d", p.dims)
}

// vector builds the hash-projected embedding for text.
func (p *Provider) vector(text string) []float32 {
	vec := make([]float32, p.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		state := h.Sum64()

		// Scatter each token across a few dimensions with signed weights.
		// The LCG walk keeps the positions deterministic per token.
		for i := 0; i < projectionsPerToken; i++ {
			state = state*6364136223846793005 + 1442695040888963407
			idx := int(state % uint64(p.dims))
			if state>>63 == 1 {
				vec[idx]--
			} else {
				vec[idx]++
			}
		}
	}

	// L2-normalize so cosine similarity behaves like a real model's output.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec
}

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
