// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// interface, giving the assistant a single construction path for OpenAI,
// Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq and local llama.cpp or
// llamafile servers.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest",
//		anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// Provider routes completion requests through an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// backendFactory builds one any-llm-go backend from shared options.
type backendFactory func(...anyllmlib.Option) (anyllmlib.Provider, error)

// adapt lifts a concrete any-llm-go constructor into a backendFactory.
func adapt[P anyllmlib.Provider](construct func(...anyllmlib.Option) (P, error)) backendFactory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		backend, err := construct(opts...)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}

// backendFactories holds every provider name [New] accepts.
var backendFactories = map[string]backendFactory{
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"ollama":    adapt(ollama.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// New builds a Provider for the named backend and model. The name is matched
// case-insensitively against the keys of [backendFactories]. Credentials come
// from opts when given, otherwise each backend falls back to its conventional
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on); the
// local backends need none and default to their usual loopback endpoints.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, errors.New("anyllm: provider name is empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model is empty")
	}

	factory, ok := backendFactories[strings.ToLower(providerName)]
	if !ok {
		known := slices.Sorted(maps.Keys(backendFactories))
		return nil, fmt.Errorf("anyllm: unknown provider %q (have: %s)", providerName, strings.Join(known, ", "))
	}

	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: init %s backend: %w", strings.ToLower(providerName), err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// NewOpenAI is shorthand for New("openai", model, opts...).
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

// NewAnthropic is shorthand for New("anthropic", model, opts...).
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewGemini is shorthand for New("gemini", model, opts...).
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// NewOllama is shorthand for New("ollama", model, opts...). Without options
// the backend talks to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// NewDeepSeek is shorthand for New("deepseek", model, opts...).
func NewDeepSeek(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("deepseek", model, opts...)
}

// NewMistral is shorthand for New("mistral", model, opts...).
func NewMistral(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, opts...)
}

// NewGroq is shorthand for New("groq", model, opts...).
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// NewLlamaCpp is shorthand for New("llamacpp", model, opts...). Without
// options the backend talks to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamacpp", model, opts...)
}

// NewLlamaFile is shorthand for New("llamafile", model, opts...).
func NewLlamaFile(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamafile", model, opts...)
}

// Complete sends one chat completion round to the backend and translates the
// first choice back into the assistant's own types.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.completionParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: provider returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{Content: msg.ContentString()}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// CountTokens estimates the token footprint of messages. Any-llm-go exposes
// no tokenizer, so the estimate uses the common four-characters-per-token
// rule of thumb plus a fixed overhead per message for role and framing.
//
// TODO: swap in tiktoken-go when per-model encodings start to matter.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	const (
		charsPerToken   = 4
		messageOverhead = 4
	)

	total := 0
	for _, m := range messages {
		total += (len(m.Content) + charsPerToken - 1) / charsPerToken
		total += messageOverhead
	}
	return total, nil
}

// Capabilities reports the published limits of the configured model.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

// completionParams translates a CompletionRequest into the any-llm-go wire
// shape. The system prompt rides as the leading system-role message.
func (p *Provider) completionParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{Model: p.model}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, wireMessage(m))
	}

	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	return params
}

// wireMessage translates one conversation message, tool calls included.
func wireMessage(m types.Message) anyllmlib.Message {
	out := anyllmlib.Message{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

// capRule pairs a model name pattern with the limits it implies.
type capRule struct {
	match func(string) bool
	caps  types.ModelCapabilities
}

func prefix(p string) func(string) bool {
	return func(model string) bool { return strings.HasPrefix(model, p) }
}

func contains(sub string) func(string) bool {
	return func(model string) bool { return strings.Contains(model, sub) }
}

func caps(window, maxOut int, tools, vision bool) types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:       window,
		MaxOutputTokens:     maxOut,
		SupportsToolCalling: tools,
		SupportsVision:      vision,
	}
}

// capabilityTable lists known model families, first match wins. A model must
// hit its most specific row first, so gpt-4o-mini precedes gpt-4o and
// o1-mini precedes o1. The Claude and Gemini rows use substring matches to
// also catch vendor-prefixed ids and dated snapshots.
var capabilityTable = []capRule{
	// OpenAI chat models.
	{prefix("gpt-4o-mini"), caps(128_000, 16_384, true, true)},
	{prefix("gpt-4o"), caps(128_000, 16_384, true, true)},
	{prefix("gpt-4-turbo"), caps(128_000, 4_096, true, true)},
	{prefix("gpt-4"), caps(8_192, 4_096, true, false)},
	{prefix("gpt-3.5-turbo"), caps(16_385, 4_096, true, false)},

	// OpenAI o-series. o1-mini cannot call tools.
	{prefix("o1-mini"), caps(128_000, 65_536, false, false)},
	{prefix("o1"), caps(200_000, 100_000, true, true)},
	{prefix("o3-mini"), caps(200_000, 100_000, true, false)},
	{prefix("o3"), caps(200_000, 100_000, true, true)},

	// Anthropic Claude.
	{contains("claude-3-5-sonnet"), caps(200_000, 8_192, true, true)},
	{contains("claude-3-sonnet"), caps(200_000, 8_192, true, true)},
	{contains("claude-3-5-haiku"), caps(200_000, 8_192, true, true)},
	{contains("claude-3-haiku"), caps(200_000, 8_192, true, true)},
	{contains("claude-3-opus"), caps(200_000, 4_096, true, true)},
	{prefix("claude"), caps(200_000, 8_192, true, true)},

	// Google Gemini.
	{contains("gemini-2.0-flash"), caps(1_048_576, 8_192, true, true)},
	{contains("gemini-1.5-pro"), caps(2_097_152, 8_192, true, true)},
	{contains("gemini-1.5-flash"), caps(1_048_576, 8_192, true, true)},
	{prefix("gemini"), caps(128_000, 8_192, true, true)},
}

// unknownModelCaps is what a model outside the table gets. Tool calling is
// assumed present since the agent loop depends on it.
var unknownModelCaps = caps(128_000, 4_096, true, false)

// modelCapabilities resolves model against the capability table,
// case-insensitively.
func modelCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, rule := range capabilityTable {
		if rule.match(lower) {
			return rule.caps
		}
	}
	return unknownModelCaps
}
