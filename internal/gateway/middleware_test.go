package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/soyeahso/hotline/internal/logging"
)

func dispatchServer(t *testing.T, origins ...string) *httptest.Server {
	t.Helper()
	cfg := testConfig()
	cfg.Gateway.AllowedOrigins = origins
	ts := httptest.NewServer(New(cfg, logging.New(nil, "silent")).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestRequestID_EchoedOnRoutes(t *testing.T) {
	ts := dispatchServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "call-0042")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "call-0042", resp.Header.Get(requestIDHeader))

	// Rejected requests still carry an id to quote when reporting a problem.
	resp = request(t, ts, http.MethodGet, "/v1/cases/medical", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, err = uuid.Parse(resp.Header.Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestRequestID_InContext(t *testing.T) {
	var seen string
	h := withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFrom(r.Context())
	}), logging.New(nil, "silent"), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/police", nil)
	req.Header.Set(requestIDHeader, "call-7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "call-7", seen)
}

func TestCORS_PreflightOnChatRoute(t *testing.T) {
	ts := dispatchServer(t, "https://dispatch.example")

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/chat/medical", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	// Preflights carry no credentials, so they are answered before auth.
	resp := preflight("https://dispatch.example")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://dispatch.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, requestIDHeader, resp.Header.Get("Access-Control-Expose-Headers"))

	resp = preflight("https://elsewhere.example")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_DeniedWithoutOrigins(t *testing.T) {
	ts := dispatchServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dispatch.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	h := withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil case store")
	}), logging.New(nil, "silent"), nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/cases/fire", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Code)
	assert.NotContains(t, body.Error, "nil case store")
}

func TestTracingMiddleware(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	before := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	})
	mux.HandleFunc("POST /v1/triage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "provider down", Code: "provider_error"})
	})
	h := withMiddleware(mux, logging.New(nil, "silent"), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "call-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/triage", nil))

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "gateway GET", spans[0].Name())
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String("http.path", "/health"))
	assert.Contains(t, attrs, attribute.String("hotline.request_id", "call-1"))
	assert.Contains(t, attrs, attribute.Int("http.status_code", http.StatusOK))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "gateway POST", spans[1].Name())
	assert.Contains(t, spans[1].Attributes(), attribute.Int("http.status_code", http.StatusBadGateway))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
