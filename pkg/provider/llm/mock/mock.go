// Package mock is an in-memory stand-in for [llm.Provider].
//
// Agent tests drive their whole tool loop against it: script the model's
// turns through CompleteResponses, run the orchestrator, then assert on the
// recorded CompleteCalls.
//
//	p := &mock.Provider{
//		CompleteResponses: []*llm.CompletionResponse{
//			{ToolCalls: []types.ToolCall{{ID: "c1", Name: "retrieve_documents", Arguments: `{"query":"q"}`}}},
//			{Content: "final answer"},
//		},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// Provider implements [llm.Provider] with scripted responses and call
// recording. Configure the exported fields before handing it to the code
// under test; the mutex keeps concurrent method calls safe, but tests should
// only read the records once that code has finished.
type Provider struct {
	mu sync.Mutex

	// CompleteResponses is consumed one per Complete call, in order. Once
	// the script runs out, Complete falls back to CompleteResponse. This is
	// how multi-turn tool loops are staged.
	CompleteResponses []*llm.CompletionResponse
	// CompleteResponse answers every Complete call past the end of the
	// script. Nil is allowed and yields (nil, nil).
	CompleteResponse *llm.CompletionResponse
	// CompleteErr makes Complete fail, script or not.
	CompleteErr error

	// TokenCount is what CountTokens reports.
	TokenCount int
	// CountTokensErr makes CountTokens fail.
	CountTokensErr error

	// ModelCapabilities is what Capabilities reports.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls and CountTokensCalls record invocations in order.
	CompleteCalls    []CompleteCall
	CountTokensCalls []CountTokensCall

	// CapabilitiesCallCount counts the accessor calls.
	CapabilitiesCallCount int

	// next is the script cursor into CompleteResponses.
	next int
}

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// CountTokensCall is one recorded CountTokens invocation. Messages is a
// copy, so later mutation by the caller cannot corrupt the record.
type CountTokensCall struct {
	Messages []types.Message
}

// Complete records the call and plays the next scripted response, falling
// back to CompleteResponse when the script is exhausted.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.next < len(p.CompleteResponses) {
		p.next++
		return p.CompleteResponses[p.next-1], nil
	}
	return p.CompleteResponse, nil
}

func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountTokensCalls = append(p.CountTokensCalls, CountTokensCall{Messages: slices.Clone(messages)})
	return p.TokenCount, p.CountTokensErr
}

func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

// Reset drops the recorded calls and rewinds the script. The configured
// responses stay.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.CountTokensCalls = nil
	p.CapabilitiesCallCount = 0
	p.next = 0
}
