package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
			})
		}
	}

	// LLM validation
	validProviders := []string{"openai", "anthropic", "ollama"}
	oneOf("llm.provider", cfg.LLM.Provider, validProviders)
	for i, fb := range cfg.LLM.Fallbacks {
		oneOf(fmt.Sprintf("llm.fallbacks[%d]", i), fb, validProviders)
	}
	if cfg.LLM.Provider != "ollama" && cfg.LLM.Entry(cfg.LLM.Provider).APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.providers." + cfg.LLM.Provider + ".apiKey",
			Message: "required for the primary provider (except ollama)",
		})
	}
	if cfg.LLM.Temperature != nil && (*cfg.LLM.Temperature < 0 || *cfg.LLM.Temperature > 2) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.temperature",
			Message: fmt.Sprintf("must be 0-2, got %g", *cfg.LLM.Temperature),
		})
	}

	// Embedding validation
	oneOf("embedding.provider", cfg.Embedding.Provider, []string{"openai", "gemini", "ollama"})

	// Knowledge validation
	if cfg.Knowledge.ChunkSize <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "knowledge.chunkSize",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Knowledge.ChunkSize),
		})
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		issues = append(issues, ValidationIssue{
			Path:    "knowledge.chunkOverlap",
			Message: fmt.Sprintf("must be in [0, chunkSize), got %d", cfg.Knowledge.ChunkOverlap),
		})
	}
	if cfg.Knowledge.TopK <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "knowledge.topK",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Knowledge.TopK),
		})
	}

	// Conversation validation
	if cfg.Conversation.HistoryWindow <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "conversation.historyWindow",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Conversation.HistoryWindow),
		})
	}
	if cfg.Conversation.MaxRoundTrips <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "conversation.maxRoundTrips",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Conversation.MaxRoundTrips),
		})
	}

	// Store validation
	oneOf("checkpoint.backend", cfg.Checkpoint.Backend, []string{"sqlite", "mongo", "redis", "memory"})
	if (cfg.Checkpoint.Backend == "mongo" || cfg.Checkpoint.Backend == "redis") && cfg.Checkpoint.URI == "" {
		issues = append(issues, ValidationIssue{
			Path:    "checkpoint.uri",
			Message: "required for the " + cfg.Checkpoint.Backend + " backend",
		})
	}
	oneOf("cases.backend", cfg.Cases.Backend, []string{"sqlite", "postgres", "memory"})
	if cfg.Cases.Backend == "postgres" && cfg.Cases.DSN == "" {
		issues = append(issues, ValidationIssue{
			Path:    "cases.dsn",
			Message: "required for the postgres backend",
		})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"none", "token", "password"})

	// Channel validation
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{Path: "channels.irc.server", Message: "required"})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{Path: "channels.irc.nick", Message: "required"})
		}
		if len(irc.Channels) == 0 {
			issues = append(issues, ValidationIssue{Path: "channels.irc.channels", Message: "at least one room is required"})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}
