package domain

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a thread's message log.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolCall is a tool invocation requested by the generation step.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// UserMessage builds a user entry.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant entry, optionally carrying tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds the answer to a single tool call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ValidateLog checks that every tool message answers a call emitted by the
// assistant message that opened its tool block.
func ValidateLog(msgs []Message) error {
	var open map[string]bool
	for i, m := range msgs {
		switch m.Role {
		case RoleUser:
			open = nil
		case RoleAssistant:
			open = nil
			if len(m.ToolCalls) > 0 {
				open = make(map[string]bool, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					if tc.ID == "" {
						return fmt.Errorf("message %d: tool call %q has no id", i, tc.Name)
					}
					if open[tc.ID] {
						return fmt.Errorf("message %d: duplicate tool call id %q", i, tc.ID)
					}
					open[tc.ID] = true
				}
			}
		case RoleTool:
			if !open[m.ToolCallID] {
				return fmt.Errorf("message %d: dangling tool response %q", i, m.ToolCallID)
			}
			delete(open, m.ToolCallID)
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// UserTurns counts the user messages in a log.
func UserTurns(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
