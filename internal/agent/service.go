package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/logging"
)

// Service fronts the per-domain engines.
type Service struct {
	engines map[domain.Domain]*Engine
	cases   domain.CaseStore
	log     *logging.Logger
}

// NewService creates a service over the given engines. cases is used to
// load the case a follow-up conversation is about.
func NewService(cases domain.CaseStore, log *logging.Logger, engines ...*Engine) *Service {
	s := &Service{
		engines: make(map[domain.Domain]*Engine, len(engines)),
		cases:   cases,
		log:     log.Sub("service"),
	}
	for _, e := range engines {
		s.engines[e.Domain()] = e
	}
	return s
}

// Engine returns the engine of a domain.
func (s *Service) Engine(d domain.Domain) (*Engine, error) {
	e, ok := s.engines[d]
	if !ok {
		return nil, fmt.Errorf("no engine for domain %q", d)
	}
	return e, nil
}

// Domains lists the domains with an engine.
func (s *Service) Domains() []domain.Domain {
	var out []domain.Domain
	for _, d := range domain.AllDomains {
		if _, ok := s.engines[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// SubmitTurn runs one turn on threadID in domain d. The user id is taken
// from the thread id.
func (s *Service) SubmitTurn(ctx context.Context, threadID string, d domain.Domain, utterance string) (*TurnResult, error) {
	e, err := s.Engine(d)
	if err != nil {
		return nil, err
	}
	return e.SubmitTurn(ctx, TurnRequest{
		ThreadID:  threadID,
		UserID:    userFromThread(threadID, d),
		Utterance: utterance,
	})
}

// Chat runs one turn on a user's thread in a domain.
func (s *Service) Chat(ctx context.Context, d domain.Domain, userID, utterance string) (*TurnResult, error) {
	e, err := s.Engine(d)
	if err != nil {
		return nil, err
	}
	return e.SubmitTurn(ctx, TurnRequest{
		ThreadID:  domain.ThreadID(d, userID),
		UserID:    userID,
		Utterance: utterance,
	})
}

// FollowupRequest is a user's message about one of their cases.
type FollowupRequest struct {
	UserID  string        `json:"user_id"`
	CaseID  string        `json:"case_id"`
	Domain  domain.Domain `json:"domain"`
	Message string        `json:"message"`
}

// Followup runs a turn of the follow-up conversation about a case. The
// case is reloaded every turn so the model sees its current status. Only
// the user who reported the case may follow up on it.
func (s *Service) Followup(ctx context.Context, req FollowupRequest) (*TurnResult, error) {
	e, err := s.Engine(domain.DomainFollowup)
	if err != nil {
		return nil, err
	}
	if s.cases == nil {
		return nil, fmt.Errorf("follow-up needs a case store")
	}
	c, err := s.cases.Get(ctx, req.CaseID, req.Domain)
	if err != nil {
		return nil, fmt.Errorf("loading case %s: %w", req.CaseID, err)
	}
	if c.UserID != req.UserID {
		s.log.Warn().Str("caseId", c.ID).Str("userId", req.UserID).Msg("follow-up on another user's case")
		return nil, fmt.Errorf("case %s: %w", req.CaseID, domain.ErrCaseNotOwned)
	}
	return e.SubmitTurn(ctx, TurnRequest{
		ThreadID:  domain.FollowupThreadID(req.CaseID, req.UserID),
		UserID:    req.UserID,
		Utterance: req.Message,
		Context:   CaseContext(c),
		Case:      &CaseRef{ID: c.ID, Domain: c.Domain},
	})
}

// userFromThread strips the domain prefix from a thread id.
func userFromThread(threadID string, d domain.Domain) string {
	if rest, ok := strings.CutPrefix(threadID, d.Slug()+"_"); ok {
		return rest
	}
	return threadID
}
