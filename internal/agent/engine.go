// Package agent implements the per-thread conversation state machine: it
// interleaves generation with tool dispatch, gates side-effecting tools and
// commits each turn as one checkpoint.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/soyeahso/hotline/internal/telemetry"
)

const (
	DefaultHistoryWindow  = 6
	DefaultMaxRoundTrips  = 8
	DefaultCommitAttempts = 3
)

var tracer = otel.Tracer("github.com/soyeahso/hotline/internal/agent")

// Options bounds the work of a single turn.
type Options struct {
	Model          string
	MaxTokens      int
	Temperature    *float64
	HistoryWindow  int
	MaxRoundTrips  int
	CommitAttempts int
	TurnTimeout    time.Duration
	ExtraPrompt    string
}

func (o Options) withDefaults() Options {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.MaxRoundTrips <= 0 {
		o.MaxRoundTrips = DefaultMaxRoundTrips
	}
	if o.CommitAttempts <= 0 {
		o.CommitAttempts = DefaultCommitAttempts
	}
	return o
}

// TurnRequest is one user utterance addressed to a thread.
type TurnRequest struct {
	ThreadID  string `json:"threadId"`
	UserID    string `json:"userId"`
	Utterance string `json:"utterance"`
	// Context is appended to the system instructions for this turn only.
	Context string `json:"context,omitempty"`
	// Case is the case a follow-up thread is about. Resolution is limited
	// to it.
	Case *CaseRef `json:"case,omitempty"`
}

// CaseRef identifies one filed case.
type CaseRef struct {
	ID     string        `json:"id"`
	Domain domain.Domain `json:"domain"`
}

// TurnResult is the outcome of a committed turn.
type TurnResult struct {
	ThreadID   string         `json:"threadId"`
	Domain     domain.Domain  `json:"domain"`
	Reply      string         `json:"reply"`
	Version    int64          `json:"version"`
	State      map[string]any `json:"state,omitempty"`
	ToolCalls  []string       `json:"toolCalls,omitempty"`
	RoundTrips int            `json:"roundTrips"`
	Usage      llm.Usage      `json:"usage"`
	Duration   time.Duration  `json:"duration"`
}

// Called reports whether a tool completed successfully during the turn.
func (r *TurnResult) Called(tool string) bool {
	return slices.Contains(r.ToolCalls, tool)
}

// Engine drives the turns of every thread in one domain.
type Engine struct {
	dom         DomainConfig
	opts        Options
	client      llm.Client
	checkpoints domain.CheckpointStore
	hooks       *hooks.Manager
	locks       *keyedMutex
	toolDefs    []llm.ToolDefinition
	log         *logging.Logger
}

// NewEngine creates an engine. hooks may be nil.
func NewEngine(
	dom DomainConfig,
	opts Options,
	client llm.Client,
	checkpoints domain.CheckpointStore,
	hookMgr *hooks.Manager,
	log *logging.Logger,
) *Engine {
	if dom.Tools == nil {
		dom.Tools = NewToolSet()
	}
	return &Engine{
		dom:         dom,
		opts:        opts.withDefaults(),
		client:      client,
		checkpoints: checkpoints,
		hooks:       hookMgr,
		locks:       newKeyedMutex(),
		toolDefs:    dom.Tools.Definitions(),
		log:         log.Sub("agent." + dom.Domain.Slug()),
	}
}

// Domain returns the engine's domain.
func (e *Engine) Domain() domain.Domain { return e.dom.Domain }

// Tools returns the engine's tool set.
func (e *Engine) Tools() *ToolSet { return e.dom.Tools }

// SubmitTurn appends an utterance to a thread, runs generation and tool
// dispatch until the model answers, and commits the result. Turns on the
// same thread are serialized. On a version conflict the turn is replayed
// from the freshly loaded checkpoint.
func (e *Engine) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.ThreadID == "" {
		return nil, errors.New("submit turn: empty thread id")
	}
	if strings.TrimSpace(req.Utterance) == "" {
		return nil, ErrEmptyUtterance
	}
	if e.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TurnTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("thread.id", req.ThreadID),
		attribute.String("domain", string(e.dom.Domain)),
	))
	defer span.End()

	unlock, err := e.locks.Lock(ctx, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("waiting for thread %s: %w", req.ThreadID, err)
	}
	defer unlock()

	start := time.Now()
	e.emit(ctx, hooks.EventTurnStart, map[string]any{
		"threadId": req.ThreadID,
		"domain":   string(e.dom.Domain),
		"userId":   req.UserID,
	})

	var lastErr error
	for attempt := 1; attempt <= e.opts.CommitAttempts; attempt++ {
		res, tr, err := e.runTurn(ctx, req)
		if err == nil {
			res.Duration = time.Since(start)
			for _, ev := range tr.events {
				e.emit(ctx, ev.name, ev.data)
			}
			e.emit(ctx, hooks.EventTurnEnd, map[string]any{
				"threadId": req.ThreadID,
				"domain":   string(e.dom.Domain),
				"userId":   req.UserID,
				"version":  res.Version,
			})
			span.SetAttributes(attribute.Int64("checkpoint.version", res.Version), attribute.Int("round_trips", res.RoundTrips))
			e.log.Info().
				Str("threadId", req.ThreadID).
				Int64("version", res.Version).
				Int("roundTrips", res.RoundTrips).
				Strs("tools", res.ToolCalls).
				Dur("duration", res.Duration).
				Msg("turn committed")
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrVersionConflict) {
			break
		}
		e.log.Warn().Str("threadId", req.ThreadID).Int("attempt", attempt).Msg("checkpoint moved during turn, replaying")
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	ev := e.log.Error()
	if IsRecoverable(lastErr) {
		ev = e.log.Warn()
	}
	ev.Err(lastErr).Str("threadId", req.ThreadID).Msg("turn failed")
	return nil, lastErr
}

// runTurn executes one attempt of a turn against the latest checkpoint.
func (e *Engine) runTurn(ctx context.Context, req TurnRequest) (*TurnResult, *turn, error) {
	base, err := e.load(ctx, req.ThreadID)
	if err != nil {
		return nil, nil, err
	}

	work := base.Clone()
	work.Messages = append(work.Messages, domain.UserMessage(req.Utterance))
	tr := &turn{
		threadID:  req.ThreadID,
		userID:    req.UserID,
		userTurns: domain.UserTurns(work.Messages),
		cp:        work,
		caseRef:   req.Case,
		log:       e.log,
	}

	system := BuildSystemPrompt(PromptConfig{
		Domain:      e.dom.Domain,
		Schema:      e.dom.Schema,
		Tools:       e.dom.Tools.Names(),
		Context:     req.Context,
		ExtraPrompt: e.opts.ExtraPrompt,
	})

	var (
		usage  llm.Usage
		rounds int
		reply  string
	)
	for {
		if rounds >= e.opts.MaxRoundTrips {
			return nil, nil, fmt.Errorf("thread %s after %d generations: %w", req.ThreadID, rounds, ErrRoundTripLimit)
		}
		rounds++

		resp, err := e.generate(ctx, system, work.Messages)
		if err != nil {
			return nil, nil, fmt.Errorf("generation: %w", err)
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 {
			reply = resp.Content
			work.Messages = append(work.Messages, domain.AssistantMessage(reply))
			break
		}

		calls := normalizeCalls(resp.ToolCalls)
		work.Messages = append(work.Messages, domain.AssistantMessage(resp.Content, calls...))
		tr.messages = work.Messages

		e.log.Debug().Str("threadId", req.ThreadID).Int("toolCalls", len(calls)).Msg("dispatching tool calls")
		results := e.dispatch(ctx, tr, calls)
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("dispatching tools: %w", err)
		}
		work.Messages = append(work.Messages, results...)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("before commit: %w", err)
	}

	now := time.Now().UTC()
	work.Version = base.Version + 1
	if work.CreatedAt.IsZero() {
		work.CreatedAt = now
	}
	work.UpdatedAt = now
	if err := e.checkpoints.Save(ctx, work); err != nil {
		return nil, nil, fmt.Errorf("committing checkpoint: %w", err)
	}

	state := make(map[string]any, len(work.ExtraState))
	for k, v := range work.ExtraState {
		state[k] = v
	}
	return &TurnResult{
		ThreadID:   req.ThreadID,
		Domain:     e.dom.Domain,
		Reply:      reply,
		Version:    work.Version,
		State:      state,
		ToolCalls:  tr.called,
		RoundTrips: rounds,
		Usage:      usage,
	}, tr, nil
}

// load returns the committed checkpoint or a fresh one at version 0.
func (e *Engine) load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	cp, err := e.checkpoints.Load(ctx, threadID)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return domain.NewCheckpoint(threadID, e.dom.Domain), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", threadID, err)
	}
	return cp, nil
}

func (e *Engine) generate(ctx context.Context, system string, msgs []domain.Message) (resp *llm.CompletionResponse, err error) {
	ctx, span := tracer.Start(ctx, "agent.generate")
	defer func() { telemetry.End(span, err) }()

	resp, err = e.client.Complete(ctx, llm.CompletionRequest{
		Model:       e.opts.Model,
		System:      system,
		Messages:    toLLMMessages(Window(msgs, e.opts.HistoryWindow)),
		Tools:       e.toolDefs,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// dispatch runs every call concurrently and returns one tool message per
// call in emission order.
func (e *Engine) dispatch(ctx context.Context, tr *turn, calls []domain.ToolCall) []domain.Message {
	out := make([]domain.Message, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			out[i] = domain.ToolMessage(call.ID, e.execute(ctx, tr, call))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// execute runs one call. Failures become the content of an error tool
// message so the model can react to them.
func (e *Engine) execute(ctx context.Context, tr *turn, call domain.ToolCall) string {
	ctx, span := tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	tool, ok := e.dom.Tools.Get(call.Name)
	if !ok {
		e.log.Warn().Str("tool", call.Name).Str("threadId", tr.threadID).Msg("unknown tool requested")
		span.SetStatus(codes.Error, "unknown tool")
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	var (
		content string
		err     error
	)
	switch t := tool.(type) {
	case *RetrievalTool:
		content, err = t.run(ctx, call.Arguments)
	case *SubmitTool:
		content, err = t.run(ctx, tr)
	case *ClassifyTool:
		content, err = t.run(ctx, tr, call.Arguments)
	case *ResolveTool:
		content, err = t.run(ctx, tr, call.Arguments)
	default:
		err = fmt.Errorf("tool %s has no executor", call.Name)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn().Err(err).Str("tool", call.Name).Str("threadId", tr.threadID).Msg("tool call failed")
		return "Error: " + err.Error()
	}
	tr.record(call.Name)
	return content
}

// Reset archives a thread's checkpoint and replaces it with an empty one
// that starts a new conversation. Submissions in the new conversation are
// keyed apart from those filed before the reset.
func (e *Engine) Reset(ctx context.Context, threadID string) error {
	unlock, err := e.locks.Lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	cp, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("resetting thread %s: %w", threadID, err)
	}
	if len(cp.Messages) == 0 {
		return fmt.Errorf("resetting thread %s: %w", threadID, domain.ErrCheckpointNotFound)
	}
	if err := e.checkpoints.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("resetting thread %s: %w", threadID, err)
	}

	fresh := domain.NewCheckpoint(threadID, e.dom.Domain)
	fresh.ExtraState[domain.StateConversationID] = uuid.NewString()
	fresh.Version = 1
	if err := e.checkpoints.Save(ctx, fresh); err != nil {
		return fmt.Errorf("starting new conversation on %s: %w", threadID, err)
	}

	e.emit(ctx, hooks.EventThreadReset, map[string]any{
		"threadId": threadID,
		"domain":   string(e.dom.Domain),
	})
	e.log.Info().Str("threadId", threadID).Str("conversationId", fresh.String(domain.StateConversationID)).Msg("thread reset")
	return nil
}

// History returns the user and assistant messages of a thread that carry
// text, oldest first. An unknown thread has no history.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	cp, err := e.checkpoints.Load(ctx, threadID)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history %s: %w", threadID, err)
	}
	out := make([]domain.Message, 0, len(cp.Messages))
	for _, m := range cp.Messages {
		if m.Role == domain.RoleTool || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, domain.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Checkpoint returns the committed state of a thread.
func (e *Engine) Checkpoint(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.checkpoints.Load(ctx, threadID)
}

func (e *Engine) emit(ctx context.Context, event string, data map[string]any) {
	if e.hooks != nil {
		e.hooks.Emit(ctx, event, data)
	}
}

// Window returns the last n messages, dropping leading tool messages whose
// assistant parent fell outside the window. When a long run of tool rounds
// would leave no user message in the window, it starts at the latest user
// message instead, so the model always sees what it is answering.
func Window(msgs []domain.Message, n int) []domain.Message {
	w := msgs
	if n > 0 && len(w) > n {
		w = w[len(w)-n:]
	}
	for len(w) > 0 && w[0].Role == domain.RoleTool {
		w = w[1:]
	}
	if slices.ContainsFunc(w, isUserMessage) {
		return w
	}
	if i := lastIndexFunc(msgs, isUserMessage); i >= 0 {
		return msgs[i:]
	}
	return w
}

func isUserMessage(m domain.Message) bool { return m.Role == domain.RoleUser }

func lastIndexFunc(msgs []domain.Message, f func(domain.Message) bool) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if f(msgs[i]) {
			return i
		}
	}
	return -1
}

// normalizeCalls converts provider tool calls, filling in missing or
// repeated ids and keeping arguments valid JSON.
func normalizeCalls(in []llm.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, len(in))
	seen := make(map[string]bool, len(in))
	for i, c := range in {
		id := c.ID
		if id == "" || seen[id] {
			id = "call_" + uuid.NewString()
		}
		seen[id] = true

		args := json.RawMessage("{}")
		switch {
		case strings.TrimSpace(c.Input) == "":
		case json.Valid([]byte(c.Input)):
			args = json.RawMessage(c.Input)
		default:
			// Keep the malformed text so the log shows what was sent.
			b, _ := json.Marshal(c.Input)
			args = b
		}
		out[i] = domain.ToolCall{ID: id, Name: c.Name, Arguments: args}
	}
	return out
}

func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		lm := llm.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Input: string(tc.Arguments)})
		}
		out[i] = lm
	}
	return out
}
