// Package tools defines the shared [Tool] type used by all built-in tool
// packages in Vellum. Each sub-package exports a constructor that returns a
// slice of [Tool] values ready for registration with the tool host.
package tools

import (
	"context"
	"errors"

	"github.com/saianfordx/vellum/pkg/types"
)

// ErrInvalidInput marks a schema violation in a tool's arguments. Handlers
// return it before performing any side effect, so a rejected call never
// touches the index or an external provider.
var ErrInvalidInput = errors.New("tools: invalid input")

// Tool is a built-in tool ready for registration with the tool host.
//
// Each Tool carries its model-facing schema ([types.ToolDefinition]) together
// with the handler invoked when the model calls the tool.
type Tool struct {
	// Definition is the tool's model-facing schema including its name,
	// description, and JSON Schema parameters.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}
