package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name/alias to a provider.
// e.g., Alias("gpt-4o-mini", "openai") means "gpt-4o-mini" resolves to the "openai" provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Direct provider name match
	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	// Alias lookup
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	// Fallback
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig registers the primary provider and its fallbacks
// from configuration. Providers without credentials are skipped, except
// ollama which needs none.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	names := append([]string{cfg.Provider}, cfg.Fallbacks...)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, exists := reg.clients[name]; exists {
			continue
		}
		entry := cfg.Entry(name)
		model := entry.Model
		if model == "" && name == strings.ToLower(cfg.Provider) {
			model = cfg.Model
		}

		var client Client
		switch name {
		case "openai":
			if entry.APIKey != "" {
				client = NewOpenAIClient(entry.APIKey, entry.BaseURL, model)
			}
		case "anthropic":
			if entry.APIKey != "" {
				client = NewAnthropicClient(entry.APIKey, entry.BaseURL, model)
			}
		case "ollama":
			client = NewOllamaClient(entry.BaseURL, model)
		}
		if client == nil {
			log.Warn().Str("provider", name).Msg("skipping LLM provider without credentials")
			continue
		}
		reg.Register(name, client)
		if reg.fallback == "" {
			reg.SetFallback(name)
		}
		if model != "" {
			reg.Alias(model, name)
		}
	}

	return reg
}

// Ordered returns the clients for the given provider names, skipping any
// that are not registered.
func (r *Registry) Ordered(names ...string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Client
	for _, n := range names {
		if c, ok := r.clients[strings.ToLower(strings.TrimSpace(n))]; ok {
			out = append(out, c)
		}
	}
	return out
}
