package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/routing"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /v1/chat/{domain}", s.requireAuth(s.handleChat))
	mux.HandleFunc("GET /v1/chat/{domain}/{user_id}/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("DELETE /v1/chat/{domain}/{user_id}", s.requireAuth(s.handleReset))

	mux.HandleFunc("POST /v1/triage", s.requireAuth(s.handleTriage))
	mux.HandleFunc("POST /v1/triage/handoff", s.requireAuth(s.handleHandoff))
	mux.HandleFunc("POST /v1/followup", s.requireAuth(s.handleFollowup))

	mux.HandleFunc("GET /v1/cases/{domain}", s.requireAuth(s.handleListCases))
	mux.HandleFunc("GET /v1/cases/{domain}/{id}", s.requireAuth(s.handleGetCase))
	mux.HandleFunc("PUT /v1/cases/{domain}/{id}/status", s.requireAuth(s.handleSetStatus))

	mux.HandleFunc("GET /v1/notifications/{user_id}", s.requireAuth(s.handleNotifications))
	mux.HandleFunc("GET /v1/notifications/{user_id}/pending", s.requireAuth(s.handlePendingApprovals))
	mux.HandleFunc("GET /v1/notifications/{user_id}/unread/count", s.requireAuth(s.handleUnreadCount))
	mux.HandleFunc("POST /v1/notifications/{id}/read", s.requireAuth(s.handleMarkRead))
	mux.HandleFunc("POST /v1/notifications/{id}/approval", s.requireAuth(s.handleApproval))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// MessageRequest is the body of the chat and triage routes.
type MessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// StatusRequest is the body of a case status change.
type StatusRequest struct {
	Status string `json:"status"`
}

// ApprovalRequest is a user's answer to a resolution request.
type ApprovalRequest struct {
	UserID   string `json:"user_id"`
	Approved *bool  `json:"approved"`
}

type historyResponse struct {
	ThreadID string           `json:"threadId"`
	Messages []domain.Message `json:"messages"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPayload))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func resolveKey(d domain.Domain, userID string) (routing.ThreadKey, error) {
	return routing.ResolveThreadKey(d, userID)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	d, err := parseChatDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.chat(r.Context(), d, req.UserID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// history returns the visible messages of a user's thread in d.
func (s *Server) history(ctx context.Context, d domain.Domain, userID string) (string, []domain.Message, error) {
	if s.service == nil {
		return "", nil, fmt.Errorf("conversation service: %w", errUnavailable)
	}
	key, err := resolveKey(d, userID)
	if err != nil {
		return "", nil, err
	}
	e, err := s.service.Engine(d)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errNotFound, err)
	}
	msgs, err := e.History(ctx, key.ID())
	if err != nil {
		return "", nil, err
	}
	return key.ID(), msgs, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	threadID, msgs, err := s.history(r.Context(), d, r.PathValue("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{ThreadID: threadID, Messages: msgs})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if s.service == nil {
		s.writeError(w, r, fmt.Errorf("conversation service: %w", errUnavailable))
		return
	}
	key, err := resolveKey(d, r.PathValue("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.service.Engine(d)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errNotFound, err))
		return
	}
	if err := e.Reset(r.Context(), key.ID()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.writeError(w, r, fmt.Errorf("triage: %w", errUnavailable))
		return
	}
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.router.Route(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.writeError(w, r, fmt.Errorf("triage: %w", errUnavailable))
		return
	}
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.router.Handoff(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFollowup(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		s.writeError(w, r, fmt.Errorf("conversation service: %w", errUnavailable))
		return
	}
	var req agent.FollowupRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := parseCaseDomain(string(req.Domain))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := resolveKey(d, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CaseID == "" {
		s.writeError(w, r, fmt.Errorf("%w: case_id is required", errBadRequest))
		return
	}
	req.Domain = d
	req.UserID = key.UserID
	res, err := s.service.Followup(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseCaseDomain accepts the domains that own cases.
func parseCaseDomain(raw string) (domain.Domain, error) {
	d, err := domain.ParseDomain(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if !d.IsSpecialist() {
		return "", fmt.Errorf("%w: %s has no cases", errBadRequest, d)
	}
	return d, nil
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	if s.cases == nil {
		s.writeError(w, r, fmt.Errorf("case store: %w", errUnavailable))
		return
	}
	d, err := parseCaseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var status domain.CaseStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err = domain.ParseStatus(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	cases, err := s.cases.List(r.Context(), d, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	if s.cases == nil {
		s.writeError(w, r, fmt.Errorf("case store: %w", errUnavailable))
		return
	}
	d, err := parseCaseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.cases.Get(r.Context(), r.PathValue("id"), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleSetStatus moves a case forward. This is the operator side of the
// case lifecycle; the follow-up engine only ever resolves.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if s.cases == nil {
		s.writeError(w, r, fmt.Errorf("case store: %w", errUnavailable))
		return
	}
	d, err := parseCaseDomain(r.PathValue("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	id := r.PathValue("id")
	if err := s.cases.SetStatus(r.Context(), id, d, status); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.cases.Get(r.Context(), id, d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.Info().Str("caseId", id).Str("domain", string(d)).Str("status", string(status)).Msg("case status changed")
	if s.hooks != nil {
		s.hooks.Emit(r.Context(), hooks.EventCaseStatusChanged, map[string]any{
			"caseId": id,
			"domain": string(d),
			"userId": c.UserID,
			"status": string(status),
		})
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		s.writeError(w, r, fmt.Errorf("notifications: %w", errUnavailable))
		return
	}
	unread := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: unread must be a boolean", errBadRequest))
			return
		}
		unread = v
	}
	list, err := s.notifications.List(r.Context(), r.PathValue("user_id"), unread)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		s.writeError(w, r, fmt.Errorf("notifications: %w", errUnavailable))
		return
	}
	ok, err := s.notifications.MarkRead(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, fmt.Errorf("notification %s: %w", r.PathValue("id"), errNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		s.writeError(w, r, fmt.Errorf("notifications: %w", errUnavailable))
		return
	}
	list, err := s.notifications.Pending(r.Context(), r.PathValue("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		s.writeError(w, r, fmt.Errorf("notifications: %w", errUnavailable))
		return
	}
	userID := r.PathValue("user_id")
	n, err := s.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "unreadCount": n})
}

// handleApproval answers a resolution request. Approving it resolves the
// case.
func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	if s.approvals == nil {
		s.writeError(w, r, fmt.Errorf("approvals: %w", errUnavailable))
		return
	}
	var req ApprovalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == "" || req.Approved == nil {
		s.writeError(w, r, fmt.Errorf("%w: user_id and approved are required", errBadRequest))
		return
	}
	d, err := s.approvals.Decide(r.Context(), r.PathValue("id"), req.UserID, *req.Approved)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
