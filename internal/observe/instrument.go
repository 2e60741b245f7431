package observe

import (
	"context"
	"time"

	"github.com/saianfordx/vellum/pkg/index"
	"github.com/saianfordx/vellum/pkg/provider/embeddings"
	"github.com/saianfordx/vellum/pkg/provider/image"
	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// InstrumentLLM wraps provider so that every completion records latency,
// request, and error metrics under the given provider name. Passing a nil
// provider or nil metrics returns the provider unchanged.
func InstrumentLLM(provider llm.Provider, m *Metrics, name string) llm.Provider {
	if provider == nil || m == nil {
		return provider
	}
	return &instrumentedLLM{inner: provider, m: m, name: name}
}

type instrumentedLLM struct {
	inner llm.Provider
	m     *Metrics
	name  string
}

var _ llm.Provider = (*instrumentedLLM)(nil)

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	p.m.LLMDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		p.m.RecordProviderError(ctx, p.name, "llm")
	}
	p.m.RecordProviderRequest(ctx, p.name, "llm", status)
	return resp, err
}

func (p *instrumentedLLM) CountTokens(messages []types.Message) (int, error) {
	return p.inner.CountTokens(messages)
}

func (p *instrumentedLLM) Capabilities() types.ModelCapabilities {
	return p.inner.Capabilities()
}

// InstrumentEmbeddings wraps provider so that every embedding call records
// latency, request, and error metrics under the given provider name. Passing
// a nil provider or nil metrics returns the provider unchanged.
func InstrumentEmbeddings(provider embeddings.Provider, m *Metrics, name string) embeddings.Provider {
	if provider == nil || m == nil {
		return provider
	}
	return &instrumentedEmbeddings{inner: provider, m: m, name: name}
}

type instrumentedEmbeddings struct {
	inner embeddings.Provider
	m     *Metrics
	name  string
}

var _ embeddings.Provider = (*instrumentedEmbeddings)(nil)

func (p *instrumentedEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.inner.Embed(ctx, text)
	p.record(ctx, start, err)
	return vec, err
}

func (p *instrumentedEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := p.inner.EmbedBatch(ctx, texts)
	p.record(ctx, start, err)
	return vecs, err
}

func (p *instrumentedEmbeddings) record(ctx context.Context, start time.Time, err error) {
	p.m.EmbedDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		p.m.RecordProviderError(ctx, p.name, "embeddings")
	}
	p.m.RecordProviderRequest(ctx, p.name, "embeddings", status)
}

func (p *instrumentedEmbeddings) Dimensions() int { return p.inner.Dimensions() }
func (p *instrumentedEmbeddings) ModelID() string { return p.inner.ModelID() }

// InstrumentImage wraps provider so that every generation records request and
// error metrics under the given provider name. Passing a nil provider or nil
// metrics returns the provider unchanged.
func InstrumentImage(provider image.Provider, m *Metrics, name string) image.Provider {
	if provider == nil || m == nil {
		return provider
	}
	return &instrumentedImage{inner: provider, m: m, name: name}
}

type instrumentedImage struct {
	inner image.Provider
	m     *Metrics
	name  string
}

var _ image.Provider = (*instrumentedImage)(nil)

func (p *instrumentedImage) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	res, err := p.inner.Generate(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
		p.m.RecordProviderError(ctx, p.name, "image")
	}
	p.m.RecordProviderRequest(ctx, p.name, "image", status)
	return res, err
}

func (p *instrumentedImage) ModelID() string { return p.inner.ModelID() }

// InstrumentIndex wraps idx so that every search records its latency.
// Passing a nil index or nil metrics returns idx unchanged.
func InstrumentIndex(idx index.Index, m *Metrics) index.Index {
	if idx == nil || m == nil {
		return idx
	}
	return &instrumentedIndex{inner: idx, m: m}
}

type instrumentedIndex struct {
	inner index.Index
	m     *Metrics
}

var _ index.Index = (*instrumentedIndex)(nil)

func (x *instrumentedIndex) Search(ctx context.Context, vector []float32, q index.Query) ([]index.Match, error) {
	start := time.Now()
	matches, err := x.inner.Search(ctx, vector, q)
	x.m.SearchDuration.Record(ctx, time.Since(start).Seconds())
	return matches, err
}

func (x *instrumentedIndex) Upsert(ctx context.Context, records []index.Record) ([]string, error) {
	return x.inner.Upsert(ctx, records)
}

func (x *instrumentedIndex) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return x.inner.DeleteByDocumentID(ctx, documentID)
}

func (x *instrumentedIndex) DeleteAll(ctx context.Context) error {
	return x.inner.DeleteAll(ctx)
}

func (x *instrumentedIndex) Stats(ctx context.Context) (*index.Stats, error) {
	return x.inner.Stats(ctx)
}
