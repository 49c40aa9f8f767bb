package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known completion provider names. Used by
// [Validate] to warn about unrecognised provider names before handing them
// to the registry.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// ValidStoreBackends lists known transcript store backends.
var ValidStoreBackends = []string{"memory", "redis", "postgres"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Store
	if cfg.Store.Backend != "" && !slices.Contains(ValidStoreBackends, cfg.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, redis, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == "redis" && cfg.Store.Addr == "" {
		errs = append(errs, fmt.Errorf("store.addr is required when store.backend is redis"))
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required when store.backend is postgres"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("analyzer", cfg.Analyzer.Provider)
	validateProviderName("composer", cfg.Composer.Provider)

	if cfg.Composer.Provider == "" {
		slog.Warn("composer.provider is not configured; responses cannot be generated without a custom composer")
	}
	if cfg.Analyzer.Provider == "" {
		slog.Info("analyzer.provider is not configured; decisions will use the rule cascade only")
	}

	// Analyzer
	if cfg.Analyzer.MinWords < 0 {
		errs = append(errs, fmt.Errorf("analyzer.min_words %d must not be negative", cfg.Analyzer.MinWords))
	}
	if cfg.Analyzer.MaxSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("analyzer.max_silence_ms %d must not be negative", cfg.Analyzer.MaxSilenceMs))
	}

	// Composer
	if cfg.Composer.Temperature < 0 || cfg.Composer.Temperature > 2 {
		errs = append(errs, fmt.Errorf("composer.temperature %.2f is out of range [0, 2]", cfg.Composer.Temperature))
	}
	if cfg.Composer.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("composer.max_tokens %d must not be negative", cfg.Composer.MaxTokens))
	}

	// Monitor
	if cfg.Monitor.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("monitor.debounce_ms %d must not be negative", cfg.Monitor.DebounceMs))
	}
	if cfg.Monitor.PollingIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("monitor.polling_interval_ms %d must not be negative", cfg.Monitor.PollingIntervalMs))
	}
	if cfg.Monitor.MaxPollingIntervalMs != 0 && cfg.Monitor.MaxPollingIntervalMs < cfg.Monitor.PollingIntervalMs {
		errs = append(errs, fmt.Errorf("monitor.max_polling_interval_ms %d must not be below monitor.polling_interval_ms %d",
			cfg.Monitor.MaxPollingIntervalMs, cfg.Monitor.PollingIntervalMs))
	}
	if cfg.Monitor.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("monitor.history_limit %d must not be negative", cfg.Monitor.HistoryLimit))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(section, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"section", section,
		"name", name,
		"known", ValidProviderNames,
	)
}
