package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/extract"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/llm"
)

// Tool names.
const (
	ToolRetrieve = "retrieve_emergency_info"
	ToolSubmit   = "submit_case"
	ToolClassify = "classify_emergency_type"
	ToolResolve  = "mark_case_resolved"
)

// Tool is a capability the generation step can invoke during a turn. The
// set of variants is closed; the engine dispatches on the concrete type.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() string
}

// Retriever answers similarity queries against a domain's knowledge index.
type Retriever interface {
	Retrieve(ctx context.Context, d domain.Domain, query string) (string, error)
}

// Extractor turns a message log into a case draft.
type Extractor interface {
	Extract(ctx context.Context, msgs []domain.Message, schema *extract.Schema) (domain.CaseDraft, error)
}

// errInvalidArguments marks a call whose arguments do not match the schema.
var errInvalidArguments = errors.New("invalid arguments")

// decodeArgs unmarshals a JSON object into out.
func decodeArgs(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("%w: expected a JSON object", errInvalidArguments)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

// --- Retrieval ---

// RetrievalTool exposes a domain's knowledge index as a tool.
type RetrievalTool struct {
	Domain    domain.Domain
	Retriever Retriever
}

func (t *RetrievalTool) Name() string { return ToolRetrieve }

func (t *RetrievalTool) Description() string {
	return fmt.Sprintf("Search the %s emergency knowledge base for safety procedures and protocols. "+
		"Pass a detailed, self-contained question as the query.", strings.ToLower(string(t.Domain)))
}

func (t *RetrievalTool) InputSchema() string {
	return `{"type":"object","properties":{"query":{"type":"string","description":"Detailed question to search for"}},"required":["query"]}`
}

func (t *RetrievalTool) run(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("%w: query is required", errInvalidArguments)
	}
	if t.Retriever == nil {
		return "", fmt.Errorf("no knowledge index for %s", t.Domain)
	}
	passages, err := t.Retriever.Retrieve(ctx, t.Domain, in.Query)
	if err != nil {
		return "", fmt.Errorf("retrieval failed: %w", err)
	}
	if passages == "" {
		return "No relevant information found.", nil
	}
	return passages, nil
}

// --- Submission ---

// SubmitTool extracts a case from the conversation and files it.
type SubmitTool struct {
	Domain    domain.Domain
	Schema    *extract.Schema
	Extractor Extractor
	Cases     domain.CaseStore
}

// lastSubmission is stored in extra state after a case is filed.
type lastSubmission struct {
	CaseID   string `json:"case_id"`
	UserTurn int    `json:"user_turn"`
}

func (t *SubmitTool) Name() string { return ToolSubmit }

func (t *SubmitTool) Description() string {
	return fmt.Sprintf("File the %s case once every required detail has been collected from the user. "+
		"Takes no arguments; the case is extracted from the conversation.", t.Schema.Subject)
}

func (t *SubmitTool) InputSchema() string {
	return `{"type":"object","properties":{}}`
}

func (t *SubmitTool) reply(caseID string) string {
	return fmt.Sprintf("Case submitted successfully. Case ID: %s. %s", caseID, t.Schema.Confirmation)
}

// run ignores its arguments. Calls within one turn serialize on the turn's
// submit lock, and a second call in the same user turn returns the first
// call's case id.
func (t *SubmitTool) run(ctx context.Context, tr *turn) (string, error) {
	tr.submitMu.Lock()
	defer tr.submitMu.Unlock()

	var last lastSubmission
	if ok, _ := tr.decode(domain.StateLastSubmission, &last); ok && last.CaseID != "" && last.UserTurn == tr.userTurns {
		return t.reply(last.CaseID), nil
	}

	draft, err := t.Extractor.Extract(ctx, tr.messages, t.Schema)
	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}
	if missing := draft.Missing(t.Schema.Required()); len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", "), nil
	}

	seq := tr.int(domain.StateSubmissionSeq) + 1
	id, err := t.Cases.Create(ctx, domain.CaseInput{
		Domain:         t.Domain,
		UserID:         tr.userID,
		Draft:          draft,
		IdempotencyKey: submissionKey(tr.threadID, tr.str(domain.StateConversationID), t.Domain, seq),
	})
	if err != nil {
		return "", fmt.Errorf("creating case: %w", err)
	}

	tr.set(map[string]any{
		domain.StateSubmissionSeq:  seq,
		domain.StateLastSubmission: map[string]any{"case_id": id, "user_turn": tr.userTurns},
	})
	tr.emit(hooks.EventCaseSubmitted, map[string]any{
		"caseId":   id,
		"domain":   string(t.Domain),
		"userId":   tr.userID,
		"threadId": tr.threadID,
	})
	return t.reply(id), nil
}

// submissionKey is the create key of the seq-th submission on a thread. A
// thread that was reset carries a conversation id so its keys never repeat
// those of the conversation before it.
func submissionKey(threadID, conversationID string, d domain.Domain, seq int64) string {
	if conversationID == "" {
		return fmt.Sprintf("%s:%s:%d", threadID, d, seq)
	}
	return fmt.Sprintf("%s/%s:%s:%d", threadID, conversationID, d, seq)
}

// --- Classification ---

// ClassifyTool records the triage classification in extra state.
type ClassifyTool struct {
	Allowed []domain.Domain
}

// NewClassifyTool returns the triage classifier over the routable domains.
func NewClassifyTool() *ClassifyTool {
	return &ClassifyTool{Allowed: []domain.Domain{domain.DomainMedical, domain.DomainPolice, domain.DomainElectricity}}
}

func (t *ClassifyTool) Name() string { return ToolClassify }

func (t *ClassifyTool) Description() string {
	return "Classify the emergency type based on the user's description. Call this whenever the user describes an emergency."
}

func (t *ClassifyTool) InputSchema() string {
	enum := make([]string, len(t.Allowed))
	for i, d := range t.Allowed {
		enum[i] = string(d)
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"emergency_type": map[string]any{"type": "string", "enum": enum},
		},
		"required": []string{"emergency_type"},
	}
	b, _ := json.Marshal(schema)
	return string(b)
}

func (t *ClassifyTool) run(_ context.Context, tr *turn, args json.RawMessage) (string, error) {
	var in struct {
		EmergencyType string `json:"emergency_type"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	d, err := domain.ParseDomain(in.EmergencyType)
	if err != nil || !slices.Contains(t.Allowed, d) {
		return "", fmt.Errorf("%w: emergency_type must be one of %s", errInvalidArguments, joinDomains(t.Allowed))
	}
	tr.merge(map[string]any{domain.StateEmergencyType: string(d)})
	out, _ := json.Marshal(map[string]string{"emergency_type": string(d)})
	return string(out), nil
}

// --- Resolution ---

// ResolveTool closes a case once the user confirms it was handled. It only
// acts on the case the follow-up thread is about.
type ResolveTool struct {
	Cases domain.CaseStore
}

func (t *ResolveTool) Name() string { return ToolResolve }

func (t *ResolveTool) Description() string {
	return "Mark an emergency case as resolved. Call this ONLY after the user explicitly confirms they are satisfied with the resolution."
}

func (t *ResolveTool) InputSchema() string {
	return `{"type":"object","properties":{"emergency_id":{"type":"string","description":"ID of the emergency case"},"emergency_type":{"type":"string","description":"Type of emergency (medical, police, electricity, fire)"}},"required":["emergency_id","emergency_type"]}`
}

func (t *ResolveTool) run(ctx context.Context, tr *turn, args json.RawMessage) (string, error) {
	var in struct {
		EmergencyID   string `json:"emergency_id"`
		EmergencyType string `json:"emergency_type"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if in.EmergencyID == "" || in.EmergencyType == "" {
		return "Error: Missing emergency_id or emergency_type parameters", nil
	}
	d, err := domain.ParseDomain(in.EmergencyType)
	if err != nil || !d.IsSpecialist() {
		return "", fmt.Errorf("%w: unknown emergency_type %q", errInvalidArguments, in.EmergencyType)
	}
	if tr.caseRef == nil {
		return "", errors.New("no case is attached to this conversation")
	}
	if in.EmergencyID != tr.caseRef.ID || d != tr.caseRef.Domain {
		return "", fmt.Errorf("%w: this conversation can only resolve %s case %s",
			errInvalidArguments, tr.caseRef.Domain.Slug(), tr.caseRef.ID)
	}

	if err := t.Cases.SetStatus(ctx, in.EmergencyID, d, domain.StatusResolved); err != nil {
		tr.log.Warn().Err(err).Str("caseId", in.EmergencyID).Msg("case resolution failed")
		return fmt.Sprintf("Case resolution result: Failed to resolve the %s emergency case. Please try again.", d.Slug()), nil
	}

	tr.emit(hooks.EventCaseStatusChanged, map[string]any{
		"caseId": in.EmergencyID,
		"domain": string(d),
		"userId": tr.userID,
		"status": string(domain.StatusResolved),
	})
	return fmt.Sprintf("Case resolution result: Your %s emergency case has been successfully resolved and closed.", d.Slug()), nil
}

// --- Tool sets ---

// ToolSet is a domain's closed set of tools.
type ToolSet struct {
	order  []Tool
	byName map[string]Tool
}

// NewToolSet builds a tool set. Later tools with a duplicate name replace
// earlier ones.
func NewToolSet(tools ...Tool) *ToolSet {
	ts := &ToolSet{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := ts.byName[t.Name()]; !dup {
			ts.order = append(ts.order, t)
		} else {
			for i, prev := range ts.order {
				if prev.Name() == t.Name() {
					ts.order[i] = t
				}
			}
		}
		ts.byName[t.Name()] = t
	}
	return ts
}

// Get returns a tool by name.
func (ts *ToolSet) Get(name string) (Tool, bool) {
	t, ok := ts.byName[name]
	return t, ok
}

// Names returns tool names in registration order.
func (ts *ToolSet) Names() []string {
	names := make([]string, len(ts.order))
	for i, t := range ts.order {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns LLM-ready tool definitions in registration order.
func (ts *ToolSet) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(ts.order))
	for _, t := range ts.order {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

func joinDomains(list []domain.Domain) string {
	parts := make([]string, len(list))
	for i, d := range list {
		parts[i] = string(d)
	}
	return strings.Join(parts, ", ")
}
