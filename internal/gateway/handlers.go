package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/routing"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	Clients int      `json:"clients,omitempty"`
	Domains []string `json:"domains,omitempty"`
	Uptime  string   `json:"uptime,omitempty"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// requireAuth rejects HTTP requests without a valid bearer credential.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
			return
		}
		res := AuthorizeRequest(s.auth, r)
		if !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="hotline"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: res.Reason})
			return
		}
		next(w, r)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("requestId", requestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Code:      code,
		Retryable: agent.IsRecoverable(err),
	})
}

// classifyError returns the HTTP status and wire code for an error.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, agent.ErrEmptyUtterance),
		errors.Is(err, routing.ErrInvalidUserID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrCaseNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, errNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrCaseNotOwned):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrNotApprovable):
		return http.StatusConflict, "not_approvable"
	case errors.Is(err, routing.ErrNotClassified):
		return http.StatusConflict, "not_classified"
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	case agent.IsRecoverable(err):
		return http.StatusServiceUnavailable, "retry"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

var (
	errBadRequest  = errors.New("bad request")
	errNotFound    = errors.New("not found")
	errUnavailable = errors.New("not configured")
)

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Fail sends an error response derived from a service error.
func (rc *RequestContext) Fail(err error) {
	_, code := classifyError(err)
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:      code,
		Message:   err.Error(),
		Retryable: agent.IsRecoverable(err),
	})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
