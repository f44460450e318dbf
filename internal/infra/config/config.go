// Package config provides application configuration: env vars first with
// safe defaults so the binary runs without any setup, plus an optional YAML
// file overlay for users who keep settings on disk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
)

// Config holds runtime configuration for kizuna.
type Config struct {
	HTTPAddr string `yaml:"httpAddr"` // KIZUNA_HTTP_ADDR, default "127.0.0.1:8970"
	DBPath   string `yaml:"dbPath"`   // KIZUNA_DB_PATH, default "kizuna.db"; "memory" disables persistence

	// Default provider, used when a request carries no provider config.
	Provider     string `yaml:"provider"`     // KIZUNA_PROVIDER: openai|claude|ollama|custom
	BaseURL      string `yaml:"baseUrl"`      // KIZUNA_BASE_URL
	APIKey       string `yaml:"apiKey"`       // KIZUNA_API_KEY; empty falls back to the mock adapter
	DefaultModel string `yaml:"defaultModel"` // KIZUNA_MODEL

	SystemPrompt       string `yaml:"systemPrompt"`       // KIZUNA_SYSTEM_PROMPT
	MaxContextMessages int    `yaml:"maxContextMessages"` // KIZUNA_MAX_CONTEXT
	RequestTimeoutSecs int    `yaml:"requestTimeoutSecs"` // KIZUNA_REQUEST_TIMEOUT
	MaxRetries         int    `yaml:"maxRetries"`         // KIZUNA_MAX_RETRIES
}

const (
	envKeyHTTPAddr       = "KIZUNA_HTTP_ADDR"
	envKeyDBPath         = "KIZUNA_DB_PATH"
	envKeyProvider       = "KIZUNA_PROVIDER"
	envKeyBaseURL        = "KIZUNA_BASE_URL"
	envKeyAPIKey         = "KIZUNA_API_KEY"
	envKeyModel          = "KIZUNA_MODEL"
	envKeySystemPrompt   = "KIZUNA_SYSTEM_PROMPT"
	envKeyMaxContext     = "KIZUNA_MAX_CONTEXT"
	envKeyRequestTimeout = "KIZUNA_REQUEST_TIMEOUT"
	envKeyMaxRetries     = "KIZUNA_MAX_RETRIES"
)

// Load reads configuration from environment variables, applying defaults
// for missing values.
func Load() Config {
	defaults := llm.DefaultProviderConfig()
	return Config{
		HTTPAddr:           envOr(envKeyHTTPAddr, "127.0.0.1:8970"),
		DBPath:             envOr(envKeyDBPath, "kizuna.db"),
		Provider:           envOr(envKeyProvider, string(defaults.Kind)),
		BaseURL:            envOr(envKeyBaseURL, defaults.BaseURL),
		APIKey:             envOr(envKeyAPIKey, ""),
		DefaultModel:       envOr(envKeyModel, defaults.DefaultModel),
		SystemPrompt:       envOr(envKeySystemPrompt, ""),
		MaxContextMessages: envIntOr(envKeyMaxContext, chat.DefaultMaxContextMessages),
		RequestTimeoutSecs: envIntOr(envKeyRequestTimeout, int(defaults.Timeout/time.Second)),
		MaxRetries:         envIntOr(envKeyMaxRetries, defaults.MaxRetries),
	}
}

// ApplyFile overlays values from a YAML file. Only keys present in the file
// override; a missing file is an error, so callers can treat the overlay as
// optional by checking for the path first.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}

	var overlay struct {
		HTTPAddr           *string `yaml:"httpAddr"`
		DBPath             *string `yaml:"dbPath"`
		Provider           *string `yaml:"provider"`
		BaseURL            *string `yaml:"baseUrl"`
		APIKey             *string `yaml:"apiKey"`
		DefaultModel       *string `yaml:"defaultModel"`
		SystemPrompt       *string `yaml:"systemPrompt"`
		MaxContextMessages *int    `yaml:"maxContextMessages"`
		RequestTimeoutSecs *int    `yaml:"requestTimeoutSecs"`
		MaxRetries         *int    `yaml:"maxRetries"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}

	setString(&c.HTTPAddr, overlay.HTTPAddr)
	setString(&c.DBPath, overlay.DBPath)
	setString(&c.Provider, overlay.Provider)
	setString(&c.BaseURL, overlay.BaseURL)
	setString(&c.APIKey, overlay.APIKey)
	setString(&c.DefaultModel, overlay.DefaultModel)
	setString(&c.SystemPrompt, overlay.SystemPrompt)
	setInt(&c.MaxContextMessages, overlay.MaxContextMessages)
	setInt(&c.RequestTimeoutSecs, overlay.RequestTimeoutSecs)
	setInt(&c.MaxRetries, overlay.MaxRetries)
	return nil
}

// ProviderConfig converts the default-provider settings into the shape the
// adapter registry consumes.
func (c Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		ID:           "default",
		Name:         "Default Provider",
		Kind:         llm.ProviderKind(c.Provider),
		BaseURL:      c.BaseURL,
		APIKey:       c.APIKey,
		DefaultModel: c.DefaultModel,
		Timeout:      time.Duration(c.RequestTimeoutSecs) * time.Second,
		MaxRetries:   c.MaxRetries,
	}
}

// InMemory reports whether persistence is disabled.
func (c Config) InMemory() bool {
	return c.DBPath == "memory" || c.DBPath == ":memory:"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
