package agent

import (
	"strings"

	"github.com/saianfordx/vellum/pkg/types"
)

// ParseHistory converts opaque "role: content" lines from the transport
// boundary into typed messages. Lines whose role prefix is not recognized
// are skipped rather than aborting the turn; in-process code always works
// with the typed form.
//
// The aliases "human" and "ai" are accepted for user and assistant so
// transcripts exported by other stacks replay cleanly.
func ParseHistory(lines []string) []types.Message {
	var msgs []types.Message
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		role, content, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		normalized, ok := normalizeRole(role)
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		msgs = append(msgs, types.Message{Role: normalized, Content: content})
	}
	return msgs
}

// FormatHistory renders typed messages back into "role: content" lines for
// the transport boundary. Messages without text content (pure tool-call
// requests) are omitted.
func FormatHistory(msgs []types.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	return lines
}

// normalizeRole maps a raw role token onto the canonical role set.
func normalizeRole(role string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case types.RoleUser, "human":
		return types.RoleUser, true
	case types.RoleAssistant, "ai":
		return types.RoleAssistant, true
	case types.RoleSystem:
		return types.RoleSystem, true
	case types.RoleTool:
		return types.RoleTool, true
	default:
		return "", false
	}
}
