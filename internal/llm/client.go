// Package llm defines the generation client interface and its provider adapters.
//
// Every provider speaks the same small protocol: a system prompt, a message
// log in which assistant turns may carry tool calls and tool turns answer
// them by id, a set of tool definitions, and optionally a JSON schema the
// reply must conform to.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolDefinition describes a tool the LLM can invoke.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"` // JSON Schema string
}

// ResponseSchema constrains a completion to a single JSON object.
type ResponseSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model          string           `json:"model,omitempty"`
	System         string           `json:"system,omitempty"`
	Messages       []Message        `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseSchema *ResponseSchema  `json:"responseSchema,omitempty"`
	MaxTokens      int              `json:"maxTokens,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion. When the request set a
// ResponseSchema, Content holds the JSON object.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ToolCall is an LLM request to invoke a tool.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON string
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all LLM providers must implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai", "anthropic").
	Name() string
}

// parseJSONSchema converts a JSON schema string to a map.
// An empty or invalid schema yields an empty object schema.
func parseJSONSchema(schemaStr string) map[string]any {
	schema := map[string]any{}
	if schemaStr != "" {
		if err := json.Unmarshal([]byte(schemaStr), &schema); err != nil {
			schema = map[string]any{}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// rawArguments returns a tool call's input as a JSON object, defaulting to {}.
func rawArguments(input string) json.RawMessage {
	if input == "" || !json.Valid([]byte(input)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(input)
}
