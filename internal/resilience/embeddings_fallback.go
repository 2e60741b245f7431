package resilience

import (
	"context"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

// EmbeddingsFallback is an [embeddings.Provider] backed by a [Chain].
//
// Every link must produce vectors of the primary's width: the index rejects
// mismatched vectors, so a narrower fallback would turn a transient outage
// into permanent write failures. The wiring side satisfies this by sizing the
// simulated stand-in from the primary's Dimensions.
type EmbeddingsFallback struct {
	chain *Chain[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback builds the chain with primary as its first link.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg ChainConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback appends another provider, tried after the primary.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.chain.Add(name, provider)
}

// Embed converts one text with the first healthy link.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return DoWithResult(f.chain, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch converts a batch with the first healthy link. The batch is never
// split across links: mixing vectors from different models in one document
// would make its chunks mutually incomparable.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return DoWithResult(f.chain, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions reports the primary's vector width. Static metadata does not
// fail over.
func (f *EmbeddingsFallback) Dimensions() int {
	return f.chain.Primary().Dimensions()
}

// ModelID reports the primary's model identifier.
func (f *EmbeddingsFallback) ModelID() string {
	return f.chain.Primary().ModelID()
}
