// Package agent implements the conversation orchestrator: a small state
// machine that alternates between model reasoning (THINK) and tool execution
// (ACT) until the model produces a final textual answer (DONE).
//
// Tool calls requested within one ACT phase run concurrently; their results
// are matched to the originating call by id and appended to the conversation
// in request order so transcripts stay deterministic. A failed tool call
// becomes a readable tool-result message for the model rather than aborting
// the turn; only model-level failures end the turn with an error.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saianfordx/vellum/internal/toolhost"
	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

const (
	// DefaultMaxIterations bounds the number of THINK steps per turn. A model
	// that keeps requesting tools past this ceiling gets a degraded answer
	// instead of looping forever.
	DefaultMaxIterations = 10

	// DefaultTemperature is the sampling temperature for completions.
	DefaultTemperature = 0.7
)

// degradedAnswer is returned when a turn hits the iteration cap.
const degradedAnswer = "I was unable to complete this request within the allowed number of reasoning steps. Please try rephrasing the question or narrowing its scope."

// Source identifies one retrieved chunk that informed an answer.
type Source struct {
	DocumentID    string  `json:"documentId"`
	Source        string  `json:"source"`
	DocumentTitle string  `json:"documentTitle"`
	PageNumber    int     `json:"pageNumber"`
	ChunkIndex    int     `json:"chunkIndex"`
	Score         float64 `json:"score"`
}

// Image describes a generated image attached to an answer.
type Image struct {
	URL           string `json:"url"`
	Prompt        string `json:"prompt"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// Answer is the outcome of one conversation turn.
type Answer struct {
	// Text is the final assistant reply.
	Text string `json:"text"`

	// Sources lists the retrieved chunks referenced during the turn, one
	// entry per distinct chunk, in retrieval order.
	Sources []Source `json:"sources"`

	// Image is set when the turn generated an image.
	Image *Image `json:"image,omitempty"`

	// Usage totals token consumption across all completions of the turn.
	Usage llm.Usage `json:"-"`

	// Iterations counts the THINK steps taken.
	Iterations int `json:"-"`

	// Degraded marks an answer cut short by the iteration ceiling.
	Degraded bool `json:"degraded,omitempty"`
}

// Orchestrator drives the think/act loop over an LLM provider and a tool
// host. Safe for concurrent use; each Answer call is an independent turn.
type Orchestrator struct {
	llm  llm.Provider
	host *toolhost.Host
	log  *slog.Logger

	maxIterations int
	temperature   float64
	systemPrompt  string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMaxIterations overrides the THINK-step ceiling per turn.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithTemperature overrides the completion temperature.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithSystemPrompt replaces the generated system instruction entirely.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// New constructs an Orchestrator over the given model and tool host.
func New(provider llm.Provider, host *toolhost.Host, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("agent: llm provider must not be nil")
	}
	if host == nil {
		return nil, fmt.Errorf("agent: tool host must not be nil")
	}
	o := &Orchestrator{
		llm:           provider,
		host:          host,
		log:           slog.Default(),
		maxIterations: DefaultMaxIterations,
		temperature:   DefaultTemperature,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxIterations < 1 {
		return nil, fmt.Errorf("agent: max iterations must be at least 1, got %d", o.maxIterations)
	}
	return o, nil
}

// Answer runs one conversation turn: the question is appended to the parsed
// history, then the loop alternates THINK and ACT until the model stops
// requesting tools or the iteration ceiling is hit.
//
// Cancelling ctx cancels in-flight model and tool calls cooperatively; the
// turn then ends with ctx's error.
func (o *Orchestrator) Answer(ctx context.Context, question string, history []string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("agent: question must not be empty")
	}

	start := time.Now()
	msgs := ParseHistory(history)
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: question})

	defs := o.host.Definitions()
	system := o.systemPrompt
	if system == "" {
		system = buildSystemPrompt(defs)
	}

	ans := &Answer{}
	state := StateThink
	for state != StateDone {
		if ans.Iterations >= o.maxIterations {
			ans.Text = degradedAnswer
			ans.Degraded = true
			o.log.Warn("turn hit iteration ceiling",
				"iterations", ans.Iterations,
				"max_iterations", o.maxIterations,
			)
			break
		}

		resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
			Messages:     msgs,
			Tools:        defs,
			Temperature:  o.temperature,
			SystemPrompt: system,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: completion failed: %w", err)
		}
		ans.Iterations++
		ans.Usage.Add(resp.Usage)

		msgs = append(msgs, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		state = Transition(state, len(resp.ToolCalls) > 0)
		switch state {
		case StateAct:
			results, err := o.act(ctx, resp.ToolCalls)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, results...)
			state = Transition(state, false)
		case StateDone:
			ans.Text = resp.Content
		}
	}

	extract(msgs, ans)
	o.log.Info("turn completed",
		"iterations", ans.Iterations,
		"sources", len(ans.Sources),
		"image", ans.Image != nil,
		"degraded", ans.Degraded,
		"total_tokens", ans.Usage.TotalTokens,
		"duration", time.Since(start),
	)
	return ans, nil
}

// act executes every requested tool call concurrently and returns one tool
// message per call in request order. Individual tool failures are embedded
// as readable error text; only context cancellation ends the phase early.
func (o *Orchestrator) act(ctx context.Context, calls []types.ToolCall) ([]types.Message, error) {
	results := make([]*toolhost.Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.host.Execute(gctx, call.Name, call.Arguments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("agent: tool execution: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agent: turn cancelled: %w", err)
	}

	msgs := make([]types.Message, len(calls))
	for i, call := range calls {
		res := results[i]
		content := res.Content
		if res.IsError {
			content = fmt.Sprintf("Tool %q failed: %s", res.Tool, res.Content)
			o.log.Warn("tool call failed", "tool", res.Tool, "call_id", call.ID, "error", res.Content)
		}
		msgs[i] = types.Message{
			Role:       types.RoleTool,
			Content:    content,
			Name:       res.Tool,
			ToolCallID: call.ID,
		}
	}
	return msgs, nil
}

// buildSystemPrompt assembles the fixed turn instruction, enumerating the
// available tools and the citation rules the model must follow.
func buildSystemPrompt(defs []types.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You are Vellum, an assistant that answers questions from the user's document knowledge base.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Ground every factual claim in retrieved document content and name the source document when you use it.\n")
	b.WriteString("- If retrieval returns nothing relevant, say so plainly instead of guessing.\n")
	b.WriteString("- Generate an image only when the user explicitly asks for one.\n")
	b.WriteString("- Prefer one precise tool call over several speculative ones.\n")
	if len(defs) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, d := range defs {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		}
	}
	return b.String()
}
