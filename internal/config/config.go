// Package config provides the configuration schema, loader, and completion
// provider registry for the parley daemon.
package config

import "time"

// LogLevel controls log verbosity for the parley daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Composer ComposerConfig `yaml:"composer"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address for the /metrics and health endpoints
	// (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StoreConfig selects and configures the transcript store backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", or "postgres".
	Backend string `yaml:"backend"`

	// Addr is the Redis address (host:port) for the redis backend.
	Addr string `yaml:"addr"`

	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn"`

	// Key is the store key the monitor observes. Default: "transcript".
	Key string `yaml:"key"`
}

// ProviderEntry is the common configuration block shared by the analyzer and
// composer provider selections.
type ProviderEntry struct {
	// Provider selects the completion backend: "openai" or any backend
	// supported by the anyllm binding ("anthropic", "gemini", "ollama", …).
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`
}

// AnalyzerConfig tunes the decision engine.
type AnalyzerConfig struct {
	ProviderEntry `yaml:",inline"`

	// MinWords is the minimum word count gate. Default: 5.
	MinWords int `yaml:"min_words"`

	// MaxSilenceMs is the silence gate in milliseconds. Default: 1500.
	MaxSilenceMs int `yaml:"max_silence_ms"`
}

// MaxSilence returns the silence gate as a duration.
func (c AnalyzerConfig) MaxSilence() time.Duration {
	return time.Duration(c.MaxSilenceMs) * time.Millisecond
}

// ComposerConfig tunes response generation.
type ComposerConfig struct {
	ProviderEntry `yaml:",inline"`

	// SystemPrompt is the base system instruction.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is the sampling temperature passed to the provider.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens bounds generated responses.
	MaxTokens int `yaml:"max_tokens"`
}

// MonitorConfig tunes the orchestration loop and the identity triple.
type MonitorConfig struct {
	// DebounceMs is the debounce window in milliseconds. Default: 1000.
	DebounceMs int `yaml:"debounce_ms"`

	// PollingIntervalMs is the adaptive polling base in milliseconds.
	// Default: 500.
	PollingIntervalMs int `yaml:"polling_interval_ms"`

	// MaxPollingIntervalMs caps the adaptive polling backoff. Default: 5000.
	MaxPollingIntervalMs int `yaml:"max_polling_interval_ms"`

	// HistoryLimit caps the conversation buffer. Default: 20.
	HistoryLimit int `yaml:"history_limit"`

	// Name is the direct-address cue recognised in transcripts.
	Name string `yaml:"name"`

	// Role is a free-text persona description.
	Role string `yaml:"role"`

	// ContextFile is literal background text or a path to a file with it.
	ContextFile string `yaml:"context_file"`
}

// Debounce returns the debounce window as a duration.
func (c MonitorConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PollingInterval returns the polling base as a duration.
func (c MonitorConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// MaxPollingInterval returns the polling cap as a duration.
func (c MonitorConfig) MaxPollingInterval() time.Duration {
	return time.Duration(c.MaxPollingIntervalMs) * time.Millisecond
}
