package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultDocuments maps each domain slug to its knowledge source file.
var DefaultDocuments = map[string]string{
	"medical":     "medical_data.txt",
	"police":      "police_data.txt",
	"electricity": "electricity_data.txt",
	"fire":        "fire_data.txt",
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
