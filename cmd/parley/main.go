// Command parley is the transcript response-timing daemon. It watches a
// transcript store, decides when a response is warranted, generates one, and
// prints it to stdout. Transcript text can be fed on stdin, one snapshot per
// line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxlane/parley/internal/analyzer"
	"github.com/voxlane/parley/internal/composer"
	"github.com/voxlane/parley/internal/config"
	"github.com/voxlane/parley/internal/health"
	"github.com/voxlane/parley/internal/monitor"
	"github.com/voxlane/parley/internal/observe"
	"github.com/voxlane/parley/internal/resilience"
	"github.com/voxlane/parley/pkg/provider/llm"
	"github.com/voxlane/parley/pkg/provider/llm/anyllm"
	"github.com/voxlane/parley/pkg/provider/llm/openai"
	"github.com/voxlane/parley/pkg/store"
	"github.com/voxlane/parley/pkg/store/memstore"
	"github.com/voxlane/parley/pkg/store/pgstore"
	"github.com/voxlane/parley/pkg/store/redisstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"store", storeName(cfg.Store),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "parley",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Transcript store ──────────────────────────────────────────────────────
	st, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to build store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Analyzer ──────────────────────────────────────────────────────────────
	engine, err := buildAnalyzer(cfg.Analyzer, reg)
	if err != nil {
		slog.Error("failed to build analyzer", "err", err)
		return 1
	}

	// ── Composer ──────────────────────────────────────────────────────────────
	comp, err := buildComposer(cfg, reg)
	if err != nil {
		slog.Error("failed to build composer", "err", err)
		return 1
	}

	// ── Monitor ───────────────────────────────────────────────────────────────
	mon, err := monitor.New(monitor.Options{
		Store:           st,
		Analyzer:        engine,
		Composer:        comp,
		Key:             cfg.Store.Key,
		Debounce:        cfg.Monitor.Debounce(),
		PollInterval:    cfg.Monitor.PollingInterval(),
		MaxPollInterval: cfg.Monitor.MaxPollingInterval(),
		HistoryLimit:    cfg.Monitor.HistoryLimit,
		Name:            cfg.Monitor.Name,
		Role:            cfg.Monitor.Role,
		ContextRef:      cfg.Monitor.ContextFile,
		Metrics:         observe.DefaultMetrics(),
	})
	if err != nil {
		slog.Error("failed to create monitor", "err", err)
		return 1
	}

	mon.OnResponseGenerated(func(text string) {
		fmt.Println(text)
	})
	mon.OnAnalysisComplete(func(res analyzer.Result) {
		slog.Debug("analysis complete",
			"should_respond", res.ShouldRespond,
			"confidence", res.Confidence,
			"reason", res.Reason,
		)
	})
	mon.OnError(func(err error) {
		slog.Warn("monitor error", "err", err)
	})

	var running atomic.Bool
	if err := mon.Start(ctx); err != nil {
		slog.Error("failed to start monitor", "err", err)
		return 1
	}
	running.Store(true)
	defer func() {
		running.Store(false)
		mon.Stop()
	}()

	// ── HTTP server: /metrics, /healthz, /readyz ──────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		key := cfg.Store.Key
		if key == "" {
			key = monitor.DefaultKey
		}
		health.New(
			health.StoreChecker(st, key),
			health.RunningChecker("monitor", running.Load),
		).Register(mux)

		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Stdin transcript feed ─────────────────────────────────────────────────
	g.Go(func() error {
		feedTranscripts(gctx, mon, readLines())
		return nil
	})

	slog.Info("parley ready — feed transcript lines on stdin, Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// readLines reads stdin line by line into a channel. A dedicated goroutine
// owns the blocking reads so shutdown never waits on a stalled Scan.
func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("stdin read error", "err", err)
		}
	}()
	return lines
}

// feedTranscripts grows the observed transcript with each input line, the
// way a live transcription feed would. A blank line resets the transcript
// and the conversation history.
func feedTranscripts(ctx context.Context, mon *monitor.Monitor, lines <-chan string) {
	transcript := ""
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				transcript = ""
				mon.ClearHistory()
				continue
			}
			if transcript == "" {
				transcript = line
			} else {
				transcript += " " + line
			}
			if err := mon.UpdateTranscript(ctx, transcript); err != nil {
				slog.Warn("failed to update transcript", "err", err)
			}
		}
	}
}

// ── Component wiring ──────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in completion provider factories
// into reg. The openai name uses the native openai-go binding; every other
// backend goes through the any-llm bridge.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.Register(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.Register("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})
}

// buildStore constructs the transcript store named in cfg. The returned
// close function releases backend connections; for the in-memory store it is
// a no-op.
func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.New(), func() {}, nil

	case "redis":
		s, err := redisstore.Dial(cfg.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("redis store close error", "err", err)
			}
		}, nil

	case "postgres":
		s, err := pgstore.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildAnalyzer assembles the decision engine. Without a configured provider
// the deterministic rule cascade stands alone; with one, the model-assisted
// scorer runs first and falls back to the rules on any provider or
// validation failure.
func buildAnalyzer(cfg config.AnalyzerConfig, reg *config.Registry) (*analyzer.Engine, error) {
	gates := analyzer.Config{
		MinWords:   cfg.MinWords,
		MaxSilence: cfg.MaxSilence(),
	}

	if cfg.Provider == "" {
		return analyzer.New(gates, analyzer.NewRules()), nil
	}

	provider, err := reg.Create(cfg.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create analyzer provider %q: %w", cfg.Provider, err)
	}
	slog.Info("provider created", "component", "analyzer", "name", provider.Name())

	scorer := analyzer.NewAssisted(provider, analyzer.NewRules(), resilience.RetryConfig{Name: "analyzer"})
	return analyzer.New(gates, scorer), nil
}

// buildComposer assembles the response composer from the composer provider
// entry and the monitor identity triple.
func buildComposer(cfg *config.Config, reg *config.Registry) (composer.Composer, error) {
	if cfg.Composer.Provider == "" {
		return nil, errors.New("composer.provider is required")
	}

	provider, err := reg.Create(cfg.Composer.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create composer provider %q: %w", cfg.Composer.Provider, err)
	}
	slog.Info("provider created", "component", "composer", "name", provider.Name())

	return composer.NewLLM(provider, composer.Config{
		SystemPrompt: cfg.Composer.SystemPrompt,
		Temperature:  cfg.Composer.Temperature,
		MaxTokens:    cfg.Composer.MaxTokens,
		Identity: composer.Identity{
			Name:       cfg.Monitor.Name,
			Role:       cfg.Monitor.Role,
			ContextRef: cfg.Monitor.ContextFile,
		},
	})
}

func storeName(cfg config.StoreConfig) string {
	if cfg.Backend == "" {
		return "memory"
	}
	return cfg.Backend
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
