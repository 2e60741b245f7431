package agent_test

import (
	"testing"

	"github.com/saianfordx/vellum/internal/agent"
)

// TestTransition verifies the transition function over every state and input
// combination.
func TestTransition(t *testing.T) {
	tests := []struct {
		name         string
		from         agent.State
		hasToolCalls bool
		want         agent.State
	}{
		{name: "think with tool calls acts", from: agent.StateThink, hasToolCalls: true, want: agent.StateAct},
		{name: "think without tool calls finishes", from: agent.StateThink, hasToolCalls: false, want: agent.StateDone},
		{name: "act returns to think", from: agent.StateAct, hasToolCalls: false, want: agent.StateThink},
		{name: "act returns to think even with tool calls", from: agent.StateAct, hasToolCalls: true, want: agent.StateThink},
		{name: "done absorbs", from: agent.StateDone, hasToolCalls: false, want: agent.StateDone},
		{name: "done absorbs tool calls", from: agent.StateDone, hasToolCalls: true, want: agent.StateDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := agent.Transition(tt.from, tt.hasToolCalls); got != tt.want {
				t.Errorf("Transition(%v, %v) = %v, want %v", tt.from, tt.hasToolCalls, got, tt.want)
			}
		})
	}
}

// TestState_String verifies state names used in logs.
func TestState_String(t *testing.T) {
	tests := []struct {
		state agent.State
		want  string
	}{
		{agent.StateThink, "THINK"},
		{agent.StateAct, "ACT"},
		{agent.StateDone, "DONE"},
		{agent.State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
