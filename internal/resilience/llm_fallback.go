package resilience

import (
	"context"

	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// LLMFallback is an [llm.Provider] backed by a [Chain] of providers. A
// completion goes to the first link whose breaker admits it; when the
// application registers the simulated responder as the last link, a turn
// always gets an answer, clearly labeled when it came from the stand-in.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback builds the chain with primary as its first link.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg ChainConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback appends another provider. Fallbacks are tried in the order
// added, after the primary.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.chain.Add(name, provider)
}

// Complete runs the request against the first healthy link.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoWithResult(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens counts with the first healthy link's tokenizer. Counts from
// different links may differ slightly; they are estimates either way.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return DoWithResult(f.chain, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary's capabilities. Capabilities are static
// metadata and do not fail over; a degraded chain should still advertise what
// the configured model can do.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.chain.Primary().Capabilities()
}
