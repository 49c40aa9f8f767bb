package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxlane/parley/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug

store:
  backend: redis
  addr: "localhost:6379"
  key: transcript

analyzer:
  provider: openai
  api_key: test-key
  model: gpt-4o-mini
  min_words: 3
  max_silence_ms: 2000

composer:
  provider: anthropic
  api_key: test-key
  model: claude-sonnet
  temperature: 0.7
  max_tokens: 256

monitor:
  debounce_ms: 500
  polling_interval_ms: 250
  max_polling_interval_ms: 4000
  history_limit: 10
  name: Aria
  role: meeting assistant
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	t.Run("valid config parses", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Fatalf("listen_addr = %q", cfg.Server.ListenAddr)
		}
		if cfg.Store.Backend != "redis" || cfg.Store.Addr != "localhost:6379" {
			t.Fatalf("store = %+v", cfg.Store)
		}
		if cfg.Analyzer.Provider != "openai" || cfg.Analyzer.MinWords != 3 {
			t.Fatalf("analyzer = %+v", cfg.Analyzer)
		}
		if cfg.Analyzer.MaxSilence() != 2*time.Second {
			t.Fatalf("max silence = %v", cfg.Analyzer.MaxSilence())
		}
		if cfg.Composer.Provider != "anthropic" || cfg.Composer.Temperature != 0.7 {
			t.Fatalf("composer = %+v", cfg.Composer)
		}
		if cfg.Monitor.Debounce() != 500*time.Millisecond {
			t.Fatalf("debounce = %v", cfg.Monitor.Debounce())
		}
		if cfg.Monitor.PollingInterval() != 250*time.Millisecond {
			t.Fatalf("polling interval = %v", cfg.Monitor.PollingInterval())
		}
		if cfg.Monitor.Name != "Aria" {
			t.Fatalf("name = %q", cfg.Monitor.Name)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		t.Parallel()
		_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
		if err == nil {
			t.Fatal("expected error for misspelled field")
		}
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		t.Parallel()
		_, err := config.LoadFromReader(strings.NewReader("server: [not a mapping"))
		if err == nil {
			t.Fatal("expected error for malformed yaml")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("reads file from disk", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Monitor.Role != "meeting assistant" {
			t.Fatalf("role = %q", cfg.Monitor.Role)
		}
	})

	t.Run("missing file wraps os.ErrNotExist", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("want os.ErrNotExist, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
		if err != nil {
			t.Fatalf("base config: %v", err)
		}
		return cfg
	}

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Server.LogLevel = "verbose"
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "server.log_level") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown store backend", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Store.Backend = "etcd"
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "store.backend") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("redis backend requires addr", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Store.Addr = ""
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "store.addr") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("postgres backend requires dsn", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Store.Backend = "postgres"
		cfg.Store.Addr = ""
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "store.dsn") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("temperature out of range", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Composer.Temperature = 3.5
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "composer.temperature") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("negative intervals rejected", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Monitor.DebounceMs = -1
		cfg.Analyzer.MinWords = -2
		err := config.Validate(cfg)
		if err == nil {
			t.Fatal("expected errors")
		}
		for _, want := range []string{"monitor.debounce_ms", "analyzer.min_words"} {
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("err %v missing %q", err, want)
			}
		}
	})

	t.Run("polling cap below base rejected", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.Monitor.PollingIntervalMs = 1000
		cfg.Monitor.MaxPollingIntervalMs = 500
		err := config.Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "max_polling_interval_ms") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("empty config is valid", func(t *testing.T) {
		t.Parallel()
		if err := config.Validate(&config.Config{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
