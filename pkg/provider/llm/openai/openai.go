// Package openai provides the chat completion provider for OpenAI models,
// built on the official openai-go client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// DefaultModel is used when [New] gets an empty model name.
const DefaultModel = "gpt-4o"

// Provider implements llm.Provider against the OpenAI chat completions API.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// settings accumulates client options during construction.
type settings struct {
	clientOpts []option.RequestOption
}

// Option adjusts how the OpenAI client is built.
type Option func(*settings)

// WithBaseURL points the client at a different API endpoint, such as an
// Azure OpenAI deployment or a compatible proxy.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithBaseURL(url))
	}
}

// WithOrganization stamps the OpenAI organization ID on every request.
func WithOrganization(org string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithOrganization(org))
	}
}

// WithTimeout caps each HTTP request. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.clientOpts = append(s.clientOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New builds a Provider. The API key is required; an empty model selects
// [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		model = DefaultModel
	}

	s := settings{clientOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, opt := range opts {
		opt(&s)
	}

	return &Provider{client: oai.NewClient(s.clientOpts...), model: model}, nil
}

// Complete sends one chat completion round and translates the first choice
// back into the assistant's own types.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.chatParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response carried no choices")
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{
		Content: msg.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// CountTokens estimates the token footprint of messages with the common
// four-characters-per-token rule of thumb plus fixed per-message overhead
// for role and framing.
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

// chatParams translates a CompletionRequest into the SDK's parameter shape.
// The system prompt rides as the leading system-role message.
func (p *Provider) chatParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model)}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := wireMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		params.Messages = append(params.Messages, msg)
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}
	return params, nil
}

// wireMessage translates one conversation message into the SDK's union
// type. Assistant messages may carry tool calls; tool messages answer them.
func wireMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Content), nil

	case types.RoleUser:
		return oai.UserMessage(m.Content), nil

	case types.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil

	case types.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: message role %q not supported", m.Role)
	}
}

// capRule pairs a model name prefix with the limits it implies.
type capRule struct {
	prefix string
	caps   types.ModelCapabilities
}

func caps(window, maxOut int, tools, vision bool) types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:       window,
		MaxOutputTokens:     maxOut,
		SupportsToolCalling: tools,
		SupportsVision:      vision,
	}
}

// capabilityTable lists known OpenAI model families, first match wins. A
// model must hit its most specific row first, so gpt-4o-mini precedes
// gpt-4o and o1-mini precedes o1.
var capabilityTable = []capRule{
	{"gpt-4o-mini", caps(128_000, 16_384, true, true)},
	{"gpt-4o", caps(128_000, 16_384, true, true)},
	{"gpt-4-turbo", caps(128_000, 4_096, true, true)},
	{"gpt-4", caps(8_192, 4_096, true, false)},
	{"gpt-3.5-turbo", caps(16_385, 4_096, true, false)},

	// o-series. o1-mini cannot call tools.
	{"o1-mini", caps(128_000, 65_536, false, false)},
	{"o1", caps(200_000, 100_000, true, true)},
	{"o3-mini", caps(200_000, 100_000, true, false)},
	{"o3", caps(200_000, 100_000, true, true)},
}

// unknownModelCaps is what a model outside the table gets. Tool calling is
// assumed present since the agent loop depends on it.
var unknownModelCaps = caps(128_000, 4_096, true, false)

// modelCapabilities resolves model against the capability table,
// case-insensitively.
func modelCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, rule := range capabilityTable {
		if strings.HasPrefix(lower, rule.prefix) {
			return rule.caps
		}
	}
	return unknownModelCaps
}
