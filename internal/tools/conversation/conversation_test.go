package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/internal/tools/conversation"
)

// callTool invokes the contextualize_question handler and decodes its result.
func callTool(t *testing.T, args string) conversation.Result {
	t.Helper()
	toolset := conversation.Tools()
	if len(toolset) != 1 {
		t.Fatalf("len(Tools()) = %d, want 1", len(toolset))
	}
	out, err := toolset[0].Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var res conversation.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return res
}

// TestContextualize_WithHistory verifies history lines are prepended and the
// original question is preserved verbatim.
func TestContextualize_WithHistory(t *testing.T) {
	res := callTool(t, `{
		"question": "How many days carry over?",
		"conversationHistory": [
			"user: What is the vacation policy?",
			"assistant: Employees accrue two days per month."
		]
	}`)

	if !res.HasContext {
		t.Error("HasContext = false, want true")
	}
	if got, want := res.OriginalQuestion, "How many days carry over?"; got != want {
		t.Errorf("OriginalQuestion = %q, want %q", got, want)
	}
	for _, want := range []string{
		"Previous conversation:",
		"user: What is the vacation policy?",
		"assistant: Employees accrue two days per month.",
		"Follow-up question: How many days carry over?",
	} {
		if !strings.Contains(res.ContextualizedQuestion, want) {
			t.Errorf("ContextualizedQuestion missing %q:\n%s", want, res.ContextualizedQuestion)
		}
	}
	if !strings.HasSuffix(res.ContextualizedQuestion, "How many days carry over?") {
		t.Errorf("ContextualizedQuestion should end with the question:\n%s", res.ContextualizedQuestion)
	}
}

// TestContextualize_NoHistory verifies the question passes through unchanged
// when there is nothing to prepend.
func TestContextualize_NoHistory(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "history omitted", args: `{"question":"What is the policy?"}`},
		{name: "history empty", args: `{"question":"What is the policy?","conversationHistory":[]}`},
		{name: "history all blank", args: `{"question":"What is the policy?","conversationHistory":["  ",""]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, tt.args)
			if res.HasContext {
				t.Error("HasContext = true, want false")
			}
			if got, want := res.ContextualizedQuestion, "What is the policy?"; got != want {
				t.Errorf("ContextualizedQuestion = %q, want unchanged %q", got, want)
			}
		})
	}
}

// TestContextualize_WindowsHistory verifies only the most recent lines are
// carried into the rewrite.
func TestContextualize_WindowsHistory(t *testing.T) {
	history := make([]string, 30)
	for i := range history {
		history[i] = fmt.Sprintf("user: message number %d", i)
	}
	raw, err := json.Marshal(map[string]any{
		"question":            "And now?",
		"conversationHistory": history,
	})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}

	res := callTool(t, string(raw))
	if strings.Contains(res.ContextualizedQuestion, "message number 9\n") {
		t.Error("ContextualizedQuestion includes lines outside the window")
	}
	if !strings.Contains(res.ContextualizedQuestion, "message number 10\n") {
		t.Error("ContextualizedQuestion missing the oldest in-window line")
	}
	if !strings.Contains(res.ContextualizedQuestion, "message number 29\n") {
		t.Error("ContextualizedQuestion missing the newest line")
	}
}

// TestContextualize_Deterministic verifies identical inputs produce identical
// outputs.
func TestContextualize_Deterministic(t *testing.T) {
	args := `{"question":"And remote workers?","conversationHistory":["user: vacation policy?","assistant: two days per month"]}`
	first := callTool(t, args)
	second := callTool(t, args)
	if first != second {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

// TestContextualize_InvalidInput verifies schema violations are rejected.
func TestContextualize_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "malformed json", args: `{"question":`},
		{name: "missing question", args: `{"conversationHistory":["user: hi"]}`},
		{name: "blank question", args: `{"question":"   "}`},
	}

	handler := conversation.Tools()[0].Handler
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := handler(context.Background(), tt.args); !errors.Is(err, tools.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}
