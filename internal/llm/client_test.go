package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())

	mock := &MockClient{ProviderName: "test-provider"}
	reg.Register("test-provider", mock)

	client, err := reg.Resolve("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())

	reg.Register("openai", &MockClient{ProviderName: "openai"})
	reg.Alias("gpt-4o-mini", "openai")
	reg.Alias("gpt-4o", "openai")

	client, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())

	client, err = reg.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())

	reg.Register("default-llm", &MockClient{ProviderName: "default-llm"})
	reg.SetFallback("default-llm")

	// Unknown model should resolve to fallback
	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "default-llm", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.Register("b", &MockClient{ProviderName: "b"})

	names := reg.List()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
}

func TestRegistryOrdered(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.Register("b", &MockClient{ProviderName: "b"})

	clients := reg.Ordered("b", "missing", "a")
	require.Len(t, clients, 2)
	assert.Equal(t, "b", clients[0].Name())
	assert.Equal(t, "a", clients[1].Name())
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Fallbacks: []string{"anthropic", "ollama"},
		Providers: map[string]config.ProviderEntry{
			"openai": {APIKey: "sk-test"},
			"ollama": {Model: "llama3.1"},
		},
	}
	reg := NewRegistryFromConfig(cfg, silentLog())

	// anthropic has no key and is skipped.
	assert.ElementsMatch(t, []string{"openai", "ollama"}, reg.List())

	client, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())

	client, err = reg.Resolve("llama3.1")
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())

	client, err = reg.Resolve("whatever")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

// --- MockClient tests ---

func TestMockClientComplete(t *testing.T) {
	mock := &MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{
				Content: "The answer is 42",
				Usage:   Usage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}

	resp, err := mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "What is the answer?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestMockClientCompleteError(t *testing.T) {
	mock := &MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, &ProviderError{Provider: "test", Message: "rate limited", Code: 429}
		},
	}

	_, err := mock.Complete(context.Background(), CompletionRequest{})
	assert.Error(t, err)

	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr)
	assert.Equal(t, 429, provErr.Code)
}

func TestMockClientDefaultComplete(t *testing.T) {
	mock := &MockClient{ProviderName: "default"}
	resp, err := mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

func TestScriptedClient(t *testing.T) {
	s := NewScriptedClient(
		Calls(ToolCall{ID: "c1", Name: "lookup", Input: `{}`}),
		Text("done"),
	)
	ctx := context.Background()

	resp, err := s.Complete(ctx, CompletionRequest{System: "one"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, 1, s.Remaining())

	resp, err = s.Complete(ctx, CompletionRequest{System: "two"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	_, err = s.Complete(ctx, CompletionRequest{})
	assert.Error(t, err)

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "one", reqs[0].System)
	assert.Equal(t, "two", reqs[1].System)
}

// --- Provider adapters against fake servers ---

func TestOllamaClientComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		fmt.Fprint(w, `{"model":"llama3.1","message":{"role":"assistant","content":"",
			"tool_calls":[{"function":{"name":"lookup","arguments":{"q":"outage"}}}]},
			"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", "llama3.1")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "lookup", Input: `{"q":"a"}`}}},
			{Role: RoleTool, ToolCallID: "c0", Content: "result"},
		},
		Tools: []ToolDefinition{{Name: "lookup", Description: "search", InputSchema: `{"type":"object","properties":{"q":{"type":"string"}}}`}},
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "lookup", got.Messages[3].ToolName)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "lookup", got.Tools[0].Function.Name)
	assert.False(t, got.Stream)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"q":"outage"}`, resp.ToolCalls[0].Input)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)
}

func TestOllamaClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "missing").Complete(context.Background(), CompletionRequest{})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusNotFound, provErr.Code)
}

func TestOllamaClientResponseSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"m","message":{"role":"assistant","content":"{\"a\":1}"}}`)
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(srv.URL, "m").Complete(context.Background(), CompletionRequest{
		ResponseSchema: &ResponseSchema{Name: "x", Schema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Content)
	assert.Equal(t, map[string]any{"type": "object"}, got["format"])
}

func TestOpenAIClientComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, "gpt-4o-mini")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []ToolDefinition{{Name: "lookup", Description: "search"}},
	})
	require.NoError(t, err)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "gpt-4o-mini", got["model"])

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 5}, resp.Usage)
}

func TestOpenAIClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("sk-bad", srv.URL, "gpt-4o-mini").Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.Code)
}

func TestAnthropicClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"checking"},{"type":"tool_use","id":"tu_1","name":"lookup","input":{"q":"x"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("key", srv.URL, "claude-test")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "checking", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"x"}`, resp.ToolCalls[0].Input)
	assert.Equal(t, Usage{InputTokens: 3, OutputTokens: 4}, resp.Usage)
}

func TestBuildAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs := buildAnthropicMessages([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: RoleTool, ToolCallID: "a", Content: "1"},
		{Role: RoleTool, ToolCallID: "b", Content: "2"},
		{Role: RoleAssistant, Content: "ok"},
	})
	require.Len(t, msgs, 4)
	assert.Len(t, msgs[2].Content, 2)
}

// --- Helpers ---

func TestParseJSONSchema(t *testing.T) {
	s := parseJSONSchema(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	assert.Equal(t, "object", s["type"])
	assert.Contains(t, s, "required")

	empty := parseJSONSchema("")
	assert.Equal(t, "object", empty["type"])
	assert.Equal(t, map[string]any{}, empty["properties"])

	bad := parseJSONSchema("{not json")
	assert.Equal(t, "object", bad["type"])
}

func TestRawArguments(t *testing.T) {
	assert.Equal(t, `{}`, string(rawArguments("")))
	assert.Equal(t, `{}`, string(rawArguments("nope")))
	assert.Equal(t, `{"a":1}`, string(rawArguments(`{"a":1}`)))
}

func TestProviderErrorFormat(t *testing.T) {
	tests := []struct {
		err  ProviderError
		want string
	}{
		{ProviderError{Provider: "a", Message: "fail", Code: 500}, "a: 500 fail"},
		{ProviderError{Provider: "b", Message: "oops"}, "b: oops"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error(), fmt.Sprintf("%+v", tt.err))
	}
}
