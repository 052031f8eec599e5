package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/extract"
)

// DomainConfig parameterizes an Engine: the domain whose prompt it uses,
// its closed tool set and, for specialists, the case schema.
type DomainConfig struct {
	Domain domain.Domain
	Tools  *ToolSet
	Schema *extract.Schema
}

// SpecialistConfig builds the configuration of a case-filing domain: a
// retrieval tool over its knowledge index and the submission tool.
func SpecialistConfig(d domain.Domain, retriever Retriever, extractor Extractor, cases domain.CaseStore) (DomainConfig, error) {
	if !d.IsSpecialist() {
		return DomainConfig{}, fmt.Errorf("%s is not a specialist domain", d)
	}
	schema, ok := extract.ForDomain(d)
	if !ok {
		return DomainConfig{}, fmt.Errorf("no case schema for %s", d)
	}
	return DomainConfig{
		Domain: d,
		Schema: schema,
		Tools: NewToolSet(
			&RetrievalTool{Domain: d, Retriever: retriever},
			&SubmitTool{Domain: d, Schema: schema, Extractor: extractor, Cases: cases},
		),
	}, nil
}

// TriageConfig builds the configuration of the triage domain.
func TriageConfig() DomainConfig {
	return DomainConfig{Domain: domain.DomainTriage, Tools: NewToolSet(NewClassifyTool())}
}

// FollowupConfig builds the configuration of the case follow-up domain.
func FollowupConfig(cases domain.CaseStore) DomainConfig {
	return DomainConfig{Domain: domain.DomainFollowup, Tools: NewToolSet(&ResolveTool{Cases: cases})}
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		HistoryWindow:  cfg.Conversation.HistoryWindow,
		MaxRoundTrips:  cfg.Conversation.MaxRoundTrips,
		CommitAttempts: cfg.Conversation.CommitAttempts,
		TurnTimeout:    cfg.Conversation.Timeout(),
	}
}

// CaseContext renders a case for the follow-up engine's instructions.
func CaseContext(c *domain.Case) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Emergency case ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Emergency type: %s\n", c.Domain.Slug())
	fmt.Fprintf(&b, "Current status: %s\n", c.Status)
	fmt.Fprintf(&b, "Reported: %s\n", c.CreatedAt.Format("2006-01-02 15:04 MST"))
	if len(c.Fields) > 0 {
		b.WriteString("Case details:\n")
		keys := make([]string, 0, len(c.Fields))
		for k := range c.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			v := c.Fields[k]
			if v == nil {
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
