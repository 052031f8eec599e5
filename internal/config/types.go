package config

import "time"

// Config is the root configuration for hotline.
type Config struct {
	LLM          LLMConfig          `yaml:"llm,omitempty"`
	Embedding    EmbeddingConfig    `yaml:"embedding,omitempty"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge,omitempty"`
	Conversation ConversationConfig `yaml:"conversation,omitempty"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint,omitempty"`
	Cases        CasesConfig        `yaml:"cases,omitempty"`
	Gateway      GatewayConfig      `yaml:"gateway,omitempty"`
	Channels     ChannelsConfig     `yaml:"channels,omitempty"`
	Telemetry    TelemetryConfig    `yaml:"telemetry,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

// LLMConfig selects the generation provider and its fallbacks.
type LLMConfig struct {
	Provider    string                   `yaml:"provider,omitempty"`  // "openai" | "anthropic" | "ollama"
	Model       string                   `yaml:"model,omitempty"`
	Fallbacks   []string                 `yaml:"fallbacks,omitempty"` // provider names tried in order
	MaxTokens   int                      `yaml:"maxTokens,omitempty"`
	Temperature *float64                 `yaml:"temperature,omitempty"`
	Providers   map[string]ProviderEntry `yaml:"providers,omitempty"`
}

// ProviderEntry holds credentials and endpoint for one provider.
type ProviderEntry struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	Model   string `yaml:"model,omitempty"` // overrides llm.model for this provider
}

// EmbeddingConfig selects the embedding backend used by the knowledge index.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider,omitempty"` // "openai" | "gemini" | "ollama"
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"apiKey,omitempty"`
	BaseURL    string `yaml:"baseUrl,omitempty"`
}

// KnowledgeConfig locates the per-domain source documents.
type KnowledgeConfig struct {
	DataDir      string            `yaml:"dataDir,omitempty"`
	Documents    map[string]string `yaml:"documents,omitempty"` // domain slug -> file name under dataDir
	ChunkSize    int               `yaml:"chunkSize,omitempty"`
	ChunkOverlap int               `yaml:"chunkOverlap,omitempty"`
	TopK         int               `yaml:"topK,omitempty"`
	CacheEmbeds  *bool             `yaml:"cacheEmbeddings,omitempty"`
}

// ConversationConfig bounds a single turn.
type ConversationConfig struct {
	HistoryWindow  int `yaml:"historyWindow,omitempty"`
	MaxRoundTrips  int `yaml:"maxRoundTrips,omitempty"`
	TurnTimeout    int `yaml:"turnTimeout,omitempty"` // seconds
	CommitAttempts int `yaml:"commitAttempts,omitempty"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend    string `yaml:"backend,omitempty"` // "sqlite" | "mongo" | "redis" | "memory"
	URI        string `yaml:"uri,omitempty"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	KeyPrefix  string `yaml:"keyPrefix,omitempty"`
}

// CasesConfig selects the case-record store.
type CasesConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "postgres" | "memory"
	DSN     string `yaml:"dsn,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "none" | "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ChannelsConfig configures the operator messaging channels.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig connects the dispatch desk to IRC rooms where operators follow
// case events and move cases along.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
	OpOnly   *bool    `yaml:"opOnly,omitempty"` // status changes need channel operator rights; defaults to true
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"` // OTLP gRPC endpoint; stdout when empty
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// Document returns the configured file name for a domain slug.
func (k KnowledgeConfig) Document(slug string) string {
	return k.Documents[slug]
}

// CacheEnabled reports whether embeddings are cached in the local store.
func (k KnowledgeConfig) CacheEnabled() bool {
	return k.CacheEmbeds == nil || *k.CacheEmbeds
}

// Entry returns the settings for a named provider, zero when absent.
func (l LLMConfig) Entry(name string) ProviderEntry {
	return l.Providers[name]
}

// Timeout returns the per-turn deadline, zero when unbounded.
func (c ConversationConfig) Timeout() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}
