// Package mock is an in-memory stand-in for [embeddings.Provider].
//
// Tests configure the vectors the mock hands out, run the code under test,
// then inspect the recorded calls:
//
//	p := &mock.Provider{DimensionsValue: 3, ModelIDValue: "fake-embed"}
//	_, _ = p.Embed(ctx, "some chunk")
//	// p.EmbedCalls[0].Text == "some chunk"
//
// With only DimensionsValue set, both Embed and EmbedBatch synthesize zero
// vectors of that length, so pipeline tests get shape-correct output without
// fixture data.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
)

// Provider implements [embeddings.Provider] with canned responses and call
// recording. Configure the exported fields before handing it to the code
// under test; the mutex keeps concurrent method calls safe, but tests should
// only read the records once that code has finished.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is what Embed returns. Left nil with DimensionsValue set,
	// Embed synthesizes a zero vector instead.
	EmbedResult []float32
	// EmbedErr makes Embed fail.
	EmbedErr error

	// EmbedBatchResult is what EmbedBatch returns. Left nil, EmbedBatch
	// synthesizes one vector per input so batches of any size come back
	// shape-correct.
	EmbedBatchResult [][]float32
	// EmbedBatchErr makes EmbedBatch fail.
	EmbedBatchErr error

	// DimensionsValue is what Dimensions reports, and the length of any
	// synthesized vectors.
	DimensionsValue int
	// ModelIDValue is what ModelID reports.
	ModelIDValue string

	// EmbedCalls and EmbedBatchCalls record invocations in order.
	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall

	// DimensionsCallCount and ModelIDCallCount count the accessor calls.
	DimensionsCallCount int
	ModelIDCallCount    int
}

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall is one recorded Embed invocation.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall is one recorded EmbedBatch invocation. Texts is a copy, so
// later mutation by the caller cannot corrupt the record.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	switch {
	case p.EmbedErr != nil:
		return nil, p.EmbedErr
	case p.EmbedResult == nil && p.DimensionsValue > 0:
		return make([]float32, p.DimensionsValue), nil
	default:
		return p.EmbedResult, nil
	}
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: slices.Clone(texts)})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	out := make([][]float32, len(texts))
	if p.DimensionsValue > 0 {
		for i := range out {
			out[i] = make([]float32, p.DimensionsValue)
		}
	}
	return out, nil
}

func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DimensionsCallCount++
	return p.DimensionsValue
}

func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}

// Reset drops the recorded calls and keeps the configured responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
	p.DimensionsCallCount = 0
	p.ModelIDCallCount = 0
}
