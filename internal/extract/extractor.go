package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/logging"
)

const systemPrompt = "You extract structured emergency case data from conversations. " +
	"Use only facts the Human stated. Set a field to null when the conversation does not state it. " +
	"Never guess names, phone numbers, addresses or ages."

// Extractor runs the structured extraction call.
type Extractor struct {
	client llm.Client
	model  string
	log    *logging.Logger
}

// New creates an Extractor. An empty model uses the client default.
func New(client llm.Client, model string, log *logging.Logger) *Extractor {
	return &Extractor{client: client, model: model, log: log.Sub("extract")}
}

// Extract builds a case draft for schema from the message log.
func (e *Extractor) Extract(ctx context.Context, msgs []domain.Message, schema *Schema) (domain.CaseDraft, error) {
	transcript := Transcript(msgs)

	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Model:    e.model,
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildPrompt(schema, transcript)}},
		ResponseSchema: &llm.ResponseSchema{
			Name:        schema.Name,
			Description: "Structured " + schema.Subject + " case",
			Schema:      schema.JSONSchema(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	raw, err := parseObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("extraction response: %w", err)
	}

	draft := Sanitize(raw, schema, UserText(msgs))
	var dropped []string
	for name, v := range raw {
		if v != nil && draft[name] == nil {
			dropped = append(dropped, name)
		}
	}
	if len(dropped) > 0 {
		e.log.Debug().Str("schema", schema.Name).Strs("fields", dropped).Msg("discarded unsupported extracted values")
	}
	return draft, nil
}

func buildPrompt(schema *Schema, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract %s information from the following conversation.\n\n", schema.Subject)
	b.WriteString("Conversation:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nFields:\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "- %s: %s", f.Name, f.Description)
		if len(f.Enum) > 0 {
			fmt.Fprintf(&b, " (one of: %s)", strings.Join(f.Enum, ", "))
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nIf any information is not available in the conversation, leave it as null.")
	return b.String()
}

// parseObject decodes a JSON object, tolerating a fenced code block.
func parseObject(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decoding JSON object: %w", err)
	}
	return out, nil
}
