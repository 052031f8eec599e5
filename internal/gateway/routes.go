package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"gopkg.in/yaml.v3"
)

// safeConfigPrefixes lists config path prefixes that can be read via RPC.
// All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"llm.provider",
	"llm.model",
	"llm.fallbacks",
	"embedding.provider",
	"embedding.model",
	"knowledge",
	"conversation",
	"checkpoint.backend",
	"cases.backend",
	"gateway.port",
	"gateway.bind",
	"logging",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("turn.submit", s.rpcTurnSubmit)
	s.Handle("triage.submit", s.rpcTriageSubmit)
	s.Handle("thread.history", s.rpcThreadHistory)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	if s.service != nil {
		for _, d := range s.service.Domains() {
			resp.Domains = append(resp.Domains, d.Slug())
		}
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil || p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "config path not readable: "+p.Key)
		return
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	raw, err := configTree(s.cfg)
	if err != nil {
		rc.RespondError("internal_error", err.Error())
		return
	}
	val, ok := config.GetValueAtPath(raw, path)
	if !ok {
		rc.RespondError("not_found", "config key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// configTree renders the effective config as the nested map its file form
// would decode to.
func configTree(cfg config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return raw, nil
}

type turnParams struct {
	Domain  string `json:"domain"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

// userFor returns the user a request acts for: the explicit id, or the
// user the connection was opened for.
func (rc *RequestContext) userFor(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return rc.Client.UserID()
}

func (s *Server) rpcTurnSubmit(rc *RequestContext) {
	var p turnParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", "invalid turn params")
		return
	}
	d, err := parseChatDomain(p.Domain)
	if err != nil {
		rc.Fail(err)
		return
	}
	res, err := s.chat(rc.Ctx, d, rc.userFor(p.UserID), p.Message)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcTriageSubmit(rc *RequestContext) {
	var p turnParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", "invalid triage params")
		return
	}
	if s.router == nil {
		rc.Fail(fmt.Errorf("triage: %w", errUnavailable))
		return
	}
	res, err := s.router.Route(rc.Ctx, rc.userFor(p.UserID), p.Message)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcThreadHistory(rc *RequestContext) {
	var p turnParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", "invalid history params")
		return
	}
	d, err := domain.ParseDomain(p.Domain)
	if err != nil {
		rc.Fail(fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	threadID, msgs, err := s.history(rc.Ctx, d, rc.userFor(p.UserID))
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(historyResponse{ThreadID: threadID, Messages: msgs})
}

// chat runs one turn with the service's engine for d.
func (s *Server) chat(ctx context.Context, d domain.Domain, userID, message string) (*agent.TurnResult, error) {
	if s.service == nil {
		return nil, fmt.Errorf("conversation service: %w", errUnavailable)
	}
	key, err := resolveKey(d, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.service.Engine(d); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotFound, err)
	}
	return s.service.Chat(ctx, d, key.UserID, message)
}

// parseChatDomain accepts the domains a user can chat with directly.
// Follow-ups need a case and have their own route.
func parseChatDomain(raw string) (domain.Domain, error) {
	d, err := domain.ParseDomain(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if d == domain.DomainFollowup {
		return "", fmt.Errorf("%w: follow-up conversations need a case", errBadRequest)
	}
	return d, nil
}
