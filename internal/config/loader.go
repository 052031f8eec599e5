package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential and connection fields so they can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Embedding.APIKey = expandEnvVars(cfg.Embedding.APIKey)
	cfg.Checkpoint.URI = expandEnvVars(cfg.Checkpoint.URI)
	cfg.Cases.DSN = expandEnvVars(cfg.Cases.DSN)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	for name, provider := range cfg.LLM.Providers {
		provider.APIKey = expandEnvVars(provider.APIKey)
		provider.BaseURL = expandEnvVars(provider.BaseURL)
		cfg.LLM.Providers[name] = provider
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file, creating its
// directory when needed.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderEntry{}
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.Model = "text-embedding-004"
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		default:
			cfg.Embedding.Model = "text-embedding-3-large"
		}
	}

	if cfg.Knowledge.DataDir == "" {
		cfg.Knowledge.DataDir = "data"
	}
	if cfg.Knowledge.Documents == nil {
		cfg.Knowledge.Documents = map[string]string{}
	}
	for slug, file := range DefaultDocuments {
		if cfg.Knowledge.Documents[slug] == "" {
			cfg.Knowledge.Documents[slug] = file
		}
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 1000
	}
	if cfg.Knowledge.ChunkOverlap == 0 {
		cfg.Knowledge.ChunkOverlap = 150
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 3
	}

	if cfg.Conversation.HistoryWindow == 0 {
		cfg.Conversation.HistoryWindow = 6
	}
	if cfg.Conversation.MaxRoundTrips == 0 {
		cfg.Conversation.MaxRoundTrips = 8
	}
	if cfg.Conversation.TurnTimeout == 0 {
		cfg.Conversation.TurnTimeout = 120
	}
	if cfg.Conversation.CommitAttempts == 0 {
		cfg.Conversation.CommitAttempts = 3
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = "sqlite"
	}
	if cfg.Checkpoint.Database == "" {
		cfg.Checkpoint.Database = "hotline"
	}
	if cfg.Checkpoint.Collection == "" {
		cfg.Checkpoint.Collection = "checkpoints"
	}
	if cfg.Checkpoint.KeyPrefix == "" {
		cfg.Checkpoint.KeyPrefix = "hotline:checkpoint:"
	}

	if cfg.Cases.Backend == "" {
		cfg.Cases.Backend = "sqlite"
	}

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "hotline"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads HOTLINE_* environment variables and overrides config values.
// OPENAI_API_KEY, MONGODB_URI and POSTGRESQL_URL are honored when the
// corresponding setting is empty.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOTLINE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("HOTLINE_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("HOTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("HOTLINE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HOTLINE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("HOTLINE_CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoint.Backend = v
	}
	if v := os.Getenv("HOTLINE_CASES_BACKEND"); v != "" {
		cfg.Cases.Backend = v
	}
	if v := os.Getenv("HOTLINE_DATA_DIR"); v != "" {
		cfg.Knowledge.DataDir = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]ProviderEntry{}
		}
		p := cfg.LLM.Providers["openai"]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers["openai"] = p
		}
		if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]ProviderEntry{}
		}
		p := cfg.LLM.Providers["anthropic"]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers["anthropic"] = p
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Embedding.Provider == "gemini" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" && cfg.Checkpoint.Backend == "mongo" && cfg.Checkpoint.URI == "" {
		cfg.Checkpoint.URI = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" && cfg.Checkpoint.Backend == "redis" && cfg.Checkpoint.URI == "" {
		cfg.Checkpoint.URI = v
	}
	if v := os.Getenv("POSTGRESQL_URL"); v != "" && cfg.Cases.Backend == "postgres" && cfg.Cases.DSN == "" {
		cfg.Cases.DSN = v
	}
}
