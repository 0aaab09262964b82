// Package llm is the contract with the language model: ordered history plus
// tool declarations in, either a reply or one tool call out.
package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool result back to the model.
	RoleTool Role = "tool"
)

type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is one history entry. An assistant message holds either Content or
// a ToolCall; a tool message holds the JSON result in Content.
type Message struct {
	Role     Role      `json:"role"`
	Content  string    `json:"content,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
}

type Request struct {
	System  string
	History []Message
	Tools   []Tool
}

// Completion is either a final reply (Text) or a single tool call.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

type Model interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

var ErrEmptyResponse = errors.New("model returned no content")

// Window keeps at most limit trailing messages and then drops leading entries
// until the window starts at a user message, so it never opens on a tool
// exchange whose call was cut off.
func Window(history []Message, limit int) []Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	for i, m := range history {
		if m.Role == RoleUser {
			return history[i:]
		}
	}
	return nil
}
