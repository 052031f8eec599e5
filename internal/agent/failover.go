package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/logging"
)

// FailoverClient wraps an LLM registry to try fallback providers on failure.
type FailoverClient struct {
	registry  *llm.Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries the primary provider first,
// then falls back through the list on retryable errors (401, 429, 5xx).
func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

// Name lists the providers in the order they are tried.
func (f *FailoverClient) Name() string {
	return "failover(" + strings.Join(f.order(), ",") + ")"
}

func (f *FailoverClient) order() []string {
	names := make([]string, 0, 1+len(f.fallbacks))
	seen := map[string]bool{}
	for _, n := range append([]string{f.primary}, f.fallbacks...) {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

// Complete tries the primary provider, falling back on retryable errors.
// Each provider answers with its own configured model unless the request
// names one and the primary is serving it.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	names := f.order()
	if len(names) == 0 {
		names = []string{req.Model}
	}

	var lastErr error
	for i, name := range names {
		client, err := f.registry.Resolve(name)
		if err != nil {
			f.log.Debug().Str("provider", name).Err(err).Msg("no provider, skipping")
			lastErr = err
			continue
		}

		attempt := req
		if i > 0 {
			attempt.Model = ""
		}
		resp, err := client.Complete(ctx, attempt)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}

		if isRetryable(err) {
			f.log.Warn().
				Str("provider", name).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}

		// Non-retryable errors stop the failover
		return nil, err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no LLM provider configured")
	}
	return nil, lastErr
}

// isRetryable checks if the error suggests trying another provider.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
