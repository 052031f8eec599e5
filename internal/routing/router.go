// Package routing sends users to the right specialist: the triage engine
// classifies an emergency and the router hands the conversation over.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/logging"
)

// ErrNotClassified is returned by Handoff before triage has named an
// emergency type for the user.
var ErrNotClassified = errors.New("emergency not classified yet")

// ReportStore persists triage classifications.
type ReportStore interface {
	Add(ctx context.Context, r domain.TriageReport) (*domain.TriageReport, error)
}

// RouteResult is the outcome of a triage turn.
type RouteResult struct {
	Reply         string        `json:"reply"`
	EmergencyType domain.Domain `json:"emergency_type,omitempty"`
	// SpecialistThread is the thread a handoff would continue in. Empty
	// until the emergency is classified.
	SpecialistThread string `json:"specialist_thread_id,omitempty"`
	Classified       bool   `json:"classified"`
	Version          int64  `json:"version"`
}

// Router runs triage turns and forwards classified users to specialists.
type Router struct {
	service *agent.Service
	reports ReportStore
	log     *logging.Logger
}

// NewRouter creates a router over a service that has a triage engine.
// reports may be nil.
func NewRouter(service *agent.Service, reports ReportStore, log *logging.Logger) *Router {
	return &Router{
		service: service,
		reports: reports,
		log:     log.Sub("routing"),
	}
}

// Route runs one triage turn for a user. When the turn classifies the
// emergency a triage report is stored.
func (r *Router) Route(ctx context.Context, userID, utterance string) (*RouteResult, error) {
	key, err := ResolveThreadKey(domain.DomainTriage, userID)
	if err != nil {
		return nil, err
	}
	res, err := r.service.Chat(ctx, domain.DomainTriage, key.UserID, utterance)
	if err != nil {
		return nil, err
	}

	out := &RouteResult{Reply: res.Reply, Version: res.Version}
	if s, ok := res.State[domain.StateEmergencyType].(string); ok && s != "" {
		d, err := domain.ParseDomain(s)
		if err == nil {
			out.EmergencyType = d
			out.SpecialistThread = domain.ThreadID(d, key.UserID)
		}
	}

	if res.Called(agent.ToolClassify) && out.EmergencyType != "" {
		out.Classified = true
		r.report(ctx, key.UserID, out.EmergencyType, utterance)
	}

	r.log.Info().
		Str("userId", key.UserID).
		Str("emergencyType", string(out.EmergencyType)).
		Bool("classified", out.Classified).
		Msg("triage turn routed")
	return out, nil
}

// Handoff forwards an utterance to the specialist chosen by triage.
func (r *Router) Handoff(ctx context.Context, userID, utterance string) (*agent.TurnResult, error) {
	d, err := r.Classification(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := ResolveThreadKey(d, userID)
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("userId", key.UserID).Str("domain", string(d)).Msg("handing off to specialist")
	return r.service.Chat(ctx, d, key.UserID, utterance)
}

// Classification returns the emergency type triage recorded for a user.
func (r *Router) Classification(ctx context.Context, userID string) (domain.Domain, error) {
	key, err := ResolveThreadKey(domain.DomainTriage, userID)
	if err != nil {
		return "", err
	}
	e, err := r.service.Engine(domain.DomainTriage)
	if err != nil {
		return "", err
	}
	cp, err := e.Checkpoint(ctx, key.ID())
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return "", ErrNotClassified
	}
	if err != nil {
		return "", fmt.Errorf("loading triage thread: %w", err)
	}
	s := cp.String(domain.StateEmergencyType)
	if s == "" {
		return "", ErrNotClassified
	}
	return domain.ParseDomain(s)
}

// report stores a classification. Failures are logged, not returned: the
// turn has already been committed.
func (r *Router) report(ctx context.Context, userID string, d domain.Domain, query string) {
	if r.reports == nil {
		return
	}
	if _, err := r.reports.Add(ctx, domain.TriageReport{
		UserID:        userID,
		EmergencyType: d,
		UserQuery:     query,
	}); err != nil {
		r.log.Error().Err(err).Str("userId", userID).Msg("failed to store triage report")
	}
}
