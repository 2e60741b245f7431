// Package embed batches text through an embedding provider with rate-limit
// pacing and strict dimension validation.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

var (
	// ErrDimensionMismatch reports a returned vector whose dimensionality
	// differs from the configured one. It is fatal for the whole call:
	// no partial results are kept.
	ErrDimensionMismatch = errors.New("embed: vector dimension mismatch")

	// ErrEmptyInput reports that no input text survived trimming.
	ErrEmptyInput = errors.New("embed: no embeddable text after trimming")
)

const (
	DefaultBatchSize  = 10
	DefaultDimensions = 3072
	DefaultBatchDelay = 100 * time.Millisecond
)

// Batcher splits embedding requests into sequential batches, pacing them to
// stay under upstream rate limits, and validates every returned vector
// against the configured dimensionality.
type Batcher struct {
	provider  embeddings.Provider
	batchSize int
	dims      int
	delay     time.Duration
	limiter   *rate.Limiter
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets how many texts go to the provider per call.
func WithBatchSize(n int) Option {
	return func(b *Batcher) { b.batchSize = n }
}

// WithDimensions overrides the expected vector dimensionality.
func WithDimensions(d int) Option {
	return func(b *Batcher) { b.dims = d }
}

// WithBatchDelay sets the minimum spacing between provider calls. A zero or
// negative delay disables pacing.
func WithBatchDelay(d time.Duration) Option {
	return func(b *Batcher) { b.delay = d }
}

// New returns a Batcher for the given provider. The expected dimensionality
// defaults to the provider's own report, falling back to DefaultDimensions
// when the provider does not know it.
func New(provider embeddings.Provider, opts ...Option) (*Batcher, error) {
	if provider == nil {
		return nil, errors.New("embed: provider must not be nil")
	}
	b := &Batcher{
		provider:  provider,
		batchSize: DefaultBatchSize,
		dims:      provider.Dimensions(),
		delay:     DefaultBatchDelay,
	}
	if b.dims <= 0 {
		b.dims = DefaultDimensions
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.batchSize <= 0 {
		return nil, fmt.Errorf("embed: batch size must be positive, got %d", b.batchSize)
	}
	if b.dims <= 0 {
		return nil, fmt.Errorf("embed: dimensions must be positive, got %d", b.dims)
	}
	if b.delay > 0 {
		b.limiter = rate.NewLimiter(rate.Every(b.delay), 1)
	}
	return b, nil
}

// Dimensions reports the vector dimensionality this Batcher enforces.
func (b *Batcher) Dimensions() int { return b.dims }

// EmbedMany embeds texts in input order, one vector per input. Inputs that
// are empty after trimming are never sent to the provider and come back as
// nil vectors at their positions; if every input is empty the call fails
// with ErrEmptyInput. An empty input slice is a no-op.
//
// Batches run sequentially with a cooperative inter-batch delay. Any
// provider error or dimension mismatch aborts the whole call.
func (b *Batcher) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var (
		valid []string
		pos   []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
			pos = append(pos, i)
		}
	}
	if len(valid) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(valid); start += b.batchSize {
		end := min(start+b.batchSize, len(valid))
		if err := b.pace(ctx); err != nil {
			return nil, err
		}
		vecs, err := b.provider.EmbedBatch(ctx, valid[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed: batch %d: %w", start/b.batchSize, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed: batch %d: got %d vectors for %d texts", start/b.batchSize, len(vecs), end-start)
		}
		for i, vec := range vecs {
			if len(vec) != b.dims {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), b.dims)
			}
			out[pos[start+i]] = vec
		}
	}
	return out, nil
}

// EmbedOne embeds a single text, subject to the same pacing and dimension
// validation as EmbedMany.
func (b *Batcher) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := b.pace(ctx); err != nil {
		return nil, err
	}
	vec, err := b.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != b.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), b.dims)
	}
	return vec, nil
}

func (b *Batcher) pace(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embed: rate limit wait: %w", err)
	}
	return nil
}

// CosineSimilarity returns the cosine similarity of a and b clamped to
// [0, 1]. Vectors of different lengths, and vectors with zero magnitude,
// score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

// costPerMillionTokens is the text-embedding-3-large list price in USD.
const costPerMillionTokens = 0.13

// Cost is a rough embedding spend estimate.
type Cost struct {
	Tokens int
	USD    float64
}

// EstimateCost projects the token volume and spend for embedding count
// texts averaging avgTokens tokens each. Plain arithmetic for operational
// visibility; it never contacts the provider.
func EstimateCost(count, avgTokens int) Cost {
	tokens := count * avgTokens
	if tokens < 0 {
		tokens = 0
	}
	return Cost{
		Tokens: tokens,
		USD:    float64(tokens) / 1_000_000 * costPerMillionTokens,
	}
}
