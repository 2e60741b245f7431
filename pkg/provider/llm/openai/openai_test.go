package openai

import (
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/saianfordx/vellum/pkg/types"
)

// armOf names the union arm a converted message landed in.
func armOf(u oai.ChatCompletionMessageParamUnion) string {
	switch {
	case u.OfSystem != nil:
		return "system"
	case u.OfUser != nil:
		return "user"
	case u.OfAssistant != nil:
		return "assistant"
	case u.OfTool != nil:
		return "tool"
	default:
		return "none"
	}
}

func TestWireMessage_Roles(t *testing.T) {
	tests := []struct {
		name    string
		in      types.Message
		wantArm string
	}{
		{"system", types.Message{Role: "system", Content: "You are helpful."}, "system"},
		{"user", types.Message{Role: "user", Content: "Hello!"}, "user"},
		{"assistant", types.Message{Role: "assistant", Content: "Hi there!"}, "assistant"},
		{"tool", types.Message{Role: "tool", Content: "sunny", ToolCallID: "call_1"}, "tool"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := wireMessage(tc.in)
			if err != nil {
				t.Fatalf("wireMessage() error = %v", err)
			}
			if arm := armOf(got); arm != tc.wantArm {
				t.Errorf("message landed in %q arm, want %q", arm, tc.wantArm)
			}
		})
	}
}

func TestWireMessage_AssistantToolCalls(t *testing.T) {
	got, err := wireMessage(types.Message{
		Role: "assistant",
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
		},
	})
	if err != nil {
		t.Fatalf("wireMessage() error = %v", err)
	}
	if got.OfAssistant == nil {
		t.Fatal("OfAssistant arm not set")
	}
	if len(got.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(got.OfAssistant.ToolCalls))
	}

	tc := got.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("ID = %q, want %q", tc.ID, "call_1")
	}
	if tc.Function.Name != "get_weather" {
		t.Errorf("Function.Name = %q, want %q", tc.Function.Name, "get_weather")
	}
	if tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("Function.Arguments = %q, want %q", tc.Function.Arguments, `{"city":"Berlin"}`)
	}
}

func TestWireMessage_ToolAnswerCarriesCallID(t *testing.T) {
	got, err := wireMessage(types.Message{Role: "tool", Content: "sunny", ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("wireMessage() error = %v", err)
	}
	if got.OfTool == nil {
		t.Fatal("OfTool arm not set")
	}
	if got.OfTool.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want %q", got.OfTool.ToolCallID, "call_1")
	}
}

func TestWireMessage_UnknownRole(t *testing.T) {
	if _, err := wireMessage(types.Message{Role: "narrator", Content: "meanwhile"}); err == nil {
		t.Fatal("wireMessage() accepted an unknown role, want error")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model string
		want  types.ModelCapabilities
	}{
		{"gpt-4o-mini", caps(128_000, 16_384, true, true)},
		{"gpt-4o", caps(128_000, 16_384, true, true)},
		{"gpt-4-turbo", caps(128_000, 4_096, true, true)},
		{"gpt-4", caps(8_192, 4_096, true, false)},
		{"gpt-3.5-turbo", caps(16_385, 4_096, true, false)},
		{"o1-mini", caps(128_000, 65_536, false, false)},
		{"o1", caps(200_000, 100_000, true, true)},
		{"o3-mini", caps(200_000, 100_000, true, false)},
		{"o3", caps(200_000, 100_000, true, true)},
		{"my-custom-model", unknownModelCaps},
	}

	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			if got := modelCapabilities(tc.model); got != tc.want {
				t.Errorf("modelCapabilities(%q) = %+v, want %+v", tc.model, got, tc.want)
			}
		})
	}
}

func TestModelCapabilities_IgnoresCase(t *testing.T) {
	got := modelCapabilities("GPT-4O-Mini")
	want := modelCapabilities("gpt-4o-mini")
	if got != want {
		t.Errorf("upper-case lookup = %+v, want %+v", got, want)
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	tests := []struct {
		name     string
		messages []types.Message
		want     int
	}{
		{"no messages", nil, 0},
		// 11 chars round up to 3 tokens, plus 4 per-message overhead.
		{"single message", []types.Message{{Role: "user", Content: "Hello world"}}, 7},
		{"two messages", []types.Message{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hello world"},
		}, 13},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.CountTokens(tc.messages)
			if err != nil {
				t.Fatalf("CountTokens() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("CountTokens() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("New() without API key succeeded, want error")
	}
}

func TestNew_EmptyModelPicksDefault(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestNew_AcceptsOptions(t *testing.T) {
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("New() with options error = %v", err)
	}
}
