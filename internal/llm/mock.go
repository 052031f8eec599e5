package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// ScriptedClient replays a fixed sequence of responses and records every
// request it receives. It fails once the script is exhausted.
type ScriptedClient struct {
	mu        sync.Mutex
	steps     []func(CompletionRequest) (*CompletionResponse, error)
	requests  []CompletionRequest
	Exhausted error
}

// NewScriptedClient builds a client from canned responses.
func NewScriptedClient(responses ...*CompletionResponse) *ScriptedClient {
	s := &ScriptedClient{}
	for _, r := range responses {
		s.Then(r)
	}
	return s
}

// Then appends a canned response.
func (s *ScriptedClient) Then(resp *CompletionResponse) *ScriptedClient {
	return s.ThenFunc(func(CompletionRequest) (*CompletionResponse, error) { return resp, nil })
}

// ThenErr appends a failing step.
func (s *ScriptedClient) ThenErr(err error) *ScriptedClient {
	return s.ThenFunc(func(CompletionRequest) (*CompletionResponse, error) { return nil, err })
}

// ThenFunc appends a step computed from the request.
func (s *ScriptedClient) ThenFunc(fn func(CompletionRequest) (*CompletionResponse, error)) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, fn)
	return s
}

func (s *ScriptedClient) Name() string { return "scripted" }

func (s *ScriptedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		if s.Exhausted != nil {
			return nil, s.Exhausted
		}
		return nil, fmt.Errorf("scripted client: no response for call %d", len(s.requests))
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()
	return step(req)
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedClient) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.requests...)
}

// Remaining reports how many scripted steps are left.
func (s *ScriptedClient) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Text is a shorthand for a plain-content response.
func Text(content string) *CompletionResponse {
	return &CompletionResponse{Content: content, StopReason: "stop"}
}

// Calls is a shorthand for a tool-call response.
func Calls(calls ...ToolCall) *CompletionResponse {
	return &CompletionResponse{ToolCalls: calls, StopReason: "tool_calls"}
}
