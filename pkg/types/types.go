// Package types holds the data structures shared by every layer of Vellum:
// providers, the ingestion pipeline, the tool host and the agent loop.
//
// Packages keep their own domain types. Only the cross-cutting pieces live
// here, which is also what keeps the import graph acyclic.
package types

// Conversation roles, spelled the way the OpenAI chat API spells them. Every
// supported backend either accepts these natively or translates them.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation history. Role is always set; the
// remaining fields depend on it. An assistant message may carry ToolCalls,
// and a tool message answers exactly one of them through ToolCallID.
type Message struct {
	Role    string
	Content string

	// Name distinguishes speakers when several share a role.
	Name string

	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model. ID comes from
// the provider and must be echoed back in the answering tool message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the tool's input.
	Parameters map[string]any

	// Idempotent marks tools that may be retried after a transport failure.
	Idempotent bool
}

// ModelCapabilities reports the limits of a concrete model. Callers use it to
// budget prompts and to decide whether tool calling can be offered at all.
type ModelCapabilities struct {
	ContextWindow       int // prompt plus completion, in tokens
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsVision      bool
}
