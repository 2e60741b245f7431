// Package conversation implements the contextualize_question tool, which
// rewrites a follow-up question into a standalone one by prepending recent
// conversation history. The rewrite is a pure text transform; it never calls
// a model, so the output is deterministic for a given input.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/pkg/types"
)

// ToolContextualizeQuestion is the registered tool name.
const ToolContextualizeQuestion = "contextualize_question"

// historyWindow caps how many trailing history lines are carried into the
// rewritten question.
const historyWindow = 20

// Result is the wire shape of contextualize_question.
type Result struct {
	OriginalQuestion       string `json:"originalQuestion"`
	ContextualizedQuestion string `json:"contextualizedQuestion"`
	HasContext             bool   `json:"hasContext"`
}

// contextualizeArgs is the JSON-decoded input for the tool.
type contextualizeArgs struct {
	// Question is the follow-up question to rewrite.
	Question string `json:"question"`

	// ConversationHistory holds prior turns as "role: content" lines,
	// oldest first. Blank lines are ignored.
	ConversationHistory []string `json:"conversationHistory"`
}

// handler rewrites the question. Without usable history the question passes
// through unchanged and HasContext is false.
func handler(_ context.Context, args string) (string, error) {
	var a contextualizeArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("%w: contextualize_question: parse arguments: %w", tools.ErrInvalidInput, err)
	}
	question := strings.TrimSpace(a.Question)
	if question == "" {
		return "", fmt.Errorf("%w: contextualize_question: question must not be empty", tools.ErrInvalidInput)
	}

	var lines []string
	for _, line := range a.ConversationHistory {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > historyWindow {
		lines = lines[len(lines)-historyWindow:]
	}

	res := Result{
		OriginalQuestion:       question,
		ContextualizedQuestion: question,
		HasContext:             len(lines) > 0,
	}
	if res.HasContext {
		var b strings.Builder
		b.WriteString("Previous conversation:\n")
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("\nFollow-up question: ")
		b.WriteString(question)
		res.ContextualizedQuestion = b.String()
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("conversation: encode result: %w", err)
	}
	return string(out), nil
}

// Tools returns the conversation tool set ready for registration with the
// tool host.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        ToolContextualizeQuestion,
				Description: "Rewrite a follow-up question into a standalone question by prepending the recent conversation. Use before searching when the question refers back to earlier turns (e.g. \"what about remote workers?\").",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "The follow-up question to rewrite.",
						},
						"conversationHistory": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Prior turns as \"role: content\" lines, oldest first.",
						},
					},
					"required": []string{"question"},
				},
				Idempotent: true,
			},
			Handler: handler,
		},
	}
}
