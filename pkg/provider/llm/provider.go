// Package llm abstracts chat-completion backends behind a single Provider
// interface.
//
// The agent only ever talks to this interface: it sends a conversation plus
// tool definitions and gets back text, tool calls and token usage, no matter
// whether the other end is OpenAI, one of the any-llm backends, or a local
// Ollama instance.
package llm

import (
	"context"

	"github.com/saianfordx/vellum/pkg/types"
)

// Usage is the backend's token accounting for one completion. Counts are in
// the model's own token unit, so the same text can cost differently on
// different providers.
type Usage struct {
	PromptTokens     int
	CompletionTokens int

	// TotalTokens is the sum of the other two. Most backends report it
	// directly.
	TotalTokens int
}

// Add accumulates other into u. The agent uses it to total usage across the
// several completions of one question.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest carries one full model call. Messages must not be empty;
// everything else is optional.
type CompletionRequest struct {
	// Messages is the conversation so far, oldest first.
	Messages []types.Message

	// Tools the model may call. Offer them only when
	// Capabilities().SupportsToolCalling says so.
	Tools []types.ToolDefinition

	// Temperature in [0.0, 2.0]. Zero asks for near-greedy decoding.
	Temperature float64

	// MaxTokens caps the completion length. Zero keeps the provider default.
	MaxTokens int

	// SystemPrompt goes ahead of Messages. Backends without a dedicated
	// system slot prepend it as a system-role message.
	SystemPrompt string
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the assistant's text. Empty when the model answered with
	// tool calls only.
	Content string

	// ToolCalls the model wants executed. Running them and feeding the
	// results back is the caller's loop.
	ToolCalls []types.ToolCall

	Usage Usage
}

// Provider is one chat-completion backend. Implementations are safe for
// concurrent use and honor ctx cancellation.
type Provider interface {
	// Complete runs one model call and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context-window tokens messages would
	// take. Estimates may overcount but should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities describes the configured model's limits. Constant for the
	// lifetime of the instance.
	Capabilities() types.ModelCapabilities
}
