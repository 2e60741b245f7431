// Package simulated provides an offline llm.Provider that produces labeled,
// deterministic responses without network access.
//
// It exists so the agent keeps answering when no real model is configured.
// The provider drives a single retrieval round trip: its first completion in
// a turn requests a retrieve_documents call for the user's question, and once
// tool results are present it composes an answer from the retrieved text.
// Every answer starts with [ResponseLabel] so simulated output can never be
// mistaken for model output.
package simulated

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saianfordx/vellum/pkg/provider/llm"
	"github.com/saianfordx/vellum/pkg/types"
)

// ResponseLabel prefixes every simulated answer.
const ResponseLabel = "[simulated]"

const (
	// fallbackTool is the retrieval tool the simulated provider requests.
	// The name matches the default entry of the tool host.
	fallbackTool = "retrieve_documents"

	// maxSnippets caps how many retrieved passages are quoted in an answer.
	maxSnippets = 2

	// snippetRunes caps the quoted length of one passage.
	snippetRunes = 240
)

// Provider is a deterministic stand-in for a language model.
type Provider struct{}

// New returns a simulated provider.
func New() *Provider {
	return &Provider{}
}

// Complete inspects the conversation: if the last message is a tool result,
// it composes a labeled answer from the retrieved passages; otherwise it
// requests one retrieval call for the latest user question. With no tools
// offered it answers directly so the turn still terminates.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("simulated: request has no messages")
	}

	question := lastUserContent(req.Messages)
	last := req.Messages[len(req.Messages)-1]

	if last.Role == types.RoleTool {
		return &llm.CompletionResponse{Content: composeAnswer(question, req.Messages)}, nil
	}

	if len(req.Tools) == 0 {
		return &llm.CompletionResponse{
			Content: fmt.Sprintf("%s No language model is configured and no tools are available. I cannot answer %q right now.", ResponseLabel, question),
		}, nil
	}

	args, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return nil, fmt.Errorf("simulated: encode tool arguments: %w", err)
	}
	return &llm.CompletionResponse{
		ToolCalls: []types.ToolCall{{
			ID:        "sim-call-1",
			Name:      fallbackTool,
			Arguments: string(args),
		}},
	}, nil
}

// CountTokens estimates four characters per token.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content)/4 + 1
	}
	return total, nil
}

// Capabilities reports a modest tool-calling model.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:       8192,
		MaxOutputTokens:     1024,
		SupportsToolCalling: true,
	}
}

// passage is the subset of one retrieved chunk the composer reads.
type passage struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// retrievalPayload is the subset of the retrieval tool result the composer
// reads. Unknown fields are ignored.
type retrievalPayload struct {
	Documents []passage `json:"documents"`
}

// composeAnswer builds the final labeled text from the tool results that
// followed the last user message.
func composeAnswer(question string, msgs []types.Message) string {
	docs := collectPassages(msgs)
	if len(docs) == 0 {
		return fmt.Sprintf("%s No relevant passages were found for %q. The knowledge base may be empty or the retrieval backend unavailable.", ResponseLabel, question)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Based on %d retrieved passage(s) for %q:", ResponseLabel, len(docs), question)
	for i, doc := range docs {
		if i == maxSnippets {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, snippet(doc.Content))
		if doc.Source != "" {
			fmt.Fprintf(&b, " (%s)", doc.Source)
		}
	}
	return b.String()
}

// collectPassages gathers parseable retrieval results appearing after the
// last user message. Error text and foreign payloads are skipped.
func collectPassages(msgs []types.Message) []passage {
	start := 0
	for i, m := range msgs {
		if m.Role == types.RoleUser {
			start = i
		}
	}

	var docs []passage
	for _, m := range msgs[start:] {
		if m.Role != types.RoleTool {
			continue
		}
		var payload retrievalPayload
		if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
			continue
		}
		docs = append(docs, payload.Documents...)
	}
	return docs
}

// lastUserContent returns the text of the most recent user message.
func lastUserContent(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// snippet truncates text to snippetRunes runes on a rune boundary.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "…"
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
