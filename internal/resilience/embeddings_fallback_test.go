package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/saianfordx/vellum/pkg/provider/embeddings/mock"
)

// twoLinkEmbeddings wires primary and secondary into a fallback with a fresh
// breaker per link.
func twoLinkEmbeddings(primary, secondary *embmock.Provider) *EmbeddingsFallback {
	fb := NewEmbeddingsFallback(primary, "openai", ChainConfig{Breaker: BreakerConfig{TripAfter: 3}})
	if secondary != nil {
		fb.AddFallback("simulated", secondary)
	}
	return fb
}

func TestEmbeddingsFallback_PrefersPrimary(t *testing.T) {
	primary := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, DimensionsValue: 3}
	secondary := &embmock.Provider{DimensionsValue: 3}
	fb := twoLinkEmbeddings(primary, secondary)

	vec, err := fb.Embed(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("Embed() = %v, want the primary's vector", vec)
	}
	if got := len(secondary.EmbedCalls); got != 0 {
		t.Errorf("secondary calls = %d, want 0", got)
	}
}

func TestEmbeddingsFallback_EmbedFailsOver(t *testing.T) {
	secondary := &embmock.Provider{DimensionsValue: 4}
	fb := twoLinkEmbeddings(&embmock.Provider{EmbedErr: errors.New("primary down")}, secondary)

	vec, err := fb.Embed(context.Background(), "fallback me")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got := len(vec); got != 4 {
		t.Errorf("len(vec) = %d, want the fallback's 4", got)
	}
	if got := len(secondary.EmbedCalls); got != 1 {
		t.Errorf("secondary calls = %d, want 1", got)
	}
}

func TestEmbeddingsFallback_EmbedBatchFailsOver(t *testing.T) {
	secondary := &embmock.Provider{DimensionsValue: 2}
	fb := twoLinkEmbeddings(&embmock.Provider{EmbedBatchErr: errors.New("rate limited")}, secondary)

	vecs, err := fb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if got := len(vecs); got != 3 {
		t.Errorf("len(vecs) = %d, want 3", got)
	}
	if got := len(secondary.EmbedBatchCalls); got != 1 {
		t.Fatalf("secondary batch calls = %d, want 1", got)
	}
	// The fallback must see the entire batch, not a retry remainder.
	if got := secondary.EmbedBatchCalls[0].Texts; len(got) != 3 || got[2] != "c" {
		t.Errorf("fallback received %v, want the full batch", got)
	}
}

func TestEmbeddingsFallback_ExhaustedChain(t *testing.T) {
	fb := twoLinkEmbeddings(
		&embmock.Provider{EmbedErr: errors.New("primary down")},
		&embmock.Provider{EmbedErr: errors.New("secondary down")},
	)

	_, err := fb.Embed(context.Background(), "nobody home")
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("Embed() error = %v, want ErrChainExhausted", err)
	}
}

func TestEmbeddingsFallback_StaticMetadataAlwaysPrimary(t *testing.T) {
	primary := &embmock.Provider{DimensionsValue: 3072, ModelIDValue: "text-embedding-3-large"}
	fb := twoLinkEmbeddings(primary, &embmock.Provider{DimensionsValue: 999, ModelIDValue: "other"})

	if got := fb.Dimensions(); got != 3072 {
		t.Errorf("Dimensions() = %d, want 3072", got)
	}
	if got, want := fb.ModelID(), "text-embedding-3-large"; got != want {
		t.Errorf("ModelID() = %q, want %q", got, want)
	}
}
