package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxlane/parley/internal/resilience"
	"github.com/voxlane/parley/pkg/provider/llm"
	"github.com/voxlane/parley/pkg/provider/llm/mock"
)

// fastRetry keeps provider-failure tests quick.
var fastRetry = resilience.RetryConfig{Attempts: 2, BaseDelay: time.Millisecond}

func verdictResponse(body string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: body}
}

// scorable is a context that clears every gate so the scorer decides.
var scorable = Context{
	Transcript: "so the deployment window moves to early next week then",
	Silence:    2 * time.Second,
	Name:       "Aria",
	Role:       "release coordinator",
}

// ── Valid verdicts ───────────────────────────────────────────────────────────

func TestAssistedValidVerdict(t *testing.T) {
	t.Parallel()

	t.Run("plain JSON verdict is used", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteResponse: verdictResponse(
			`{"shouldRespond": true, "confidence": 0.8, "reason": "speaker finished"}`,
		)}
		a := NewAssisted(p, nil, fastRetry)

		got, err := a.Score(context.Background(), scorable)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.ShouldRespond || got.Confidence != 0.8 || got.Reason != "speaker finished" {
			t.Fatalf("unexpected result: %+v", got)
		}
		if p.CallCount() != 1 {
			t.Fatalf("provider calls = %d, want 1", p.CallCount())
		}
	})

	t.Run("markdown-fenced JSON is accepted", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteResponse: verdictResponse(
			"```json\n{\"shouldRespond\": false, \"confidence\": 0.3, \"reason\": \"mid-sentence\"}\n```",
		)}
		a := NewAssisted(p, nil, fastRetry)

		got, err := a.Score(context.Background(), scorable)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ShouldRespond || got.Reason != "mid-sentence" {
			t.Fatalf("unexpected result: %+v", got)
		}
	})

	t.Run("out-of-range confidence is clamped not rejected", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteResponse: verdictResponse(
			`{"shouldRespond": true, "confidence": 1.4, "reason": "very sure"}`,
		)}
		a := NewAssisted(p, nil, fastRetry)

		got, err := a.Score(context.Background(), scorable)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Confidence != 1 {
			t.Fatalf("confidence = %v, want clamp to 1", got.Confidence)
		}
		if got.Reason != "very sure" {
			t.Fatalf("reason = %q", got.Reason)
		}
	})

	t.Run("prompt carries transcript and timing", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteResponse: verdictResponse(
			`{"shouldRespond": true, "confidence": 0.6, "reason": "ok"}`,
		)}
		a := NewAssisted(p, nil, fastRetry)

		if _, err := a.Score(context.Background(), scorable); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		req := p.LastRequest()
		if len(req.Messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(req.Messages))
		}
		prompt := req.Messages[0].Content
		if !strings.Contains(prompt, scorable.Transcript) {
			t.Fatal("prompt missing transcript")
		}
		if !strings.Contains(prompt, "2000ms") {
			t.Fatalf("prompt missing silence duration:\n%s", prompt)
		}
		if !strings.Contains(prompt, `"Aria"`) {
			t.Fatal("prompt missing the configured name")
		}
		if req.SystemPrompt == "" {
			t.Fatal("system prompt not set")
		}
	})
}

// ── Fallback behaviour ───────────────────────────────────────────────────────

func TestAssistedFallsBackToRules(t *testing.T) {
	t.Parallel()

	// The rule verdict for scorable: addressed? no ("Aria" absent from the
	// transcript), no question, role boost only → decline.
	rules := NewRules()
	want, err := rules.Score(context.Background(), scorable)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}

	malformed := []struct {
		name string
		body string
	}{
		{"not JSON at all", "I think you should respond now."},
		{"wrong shouldRespond type", `{"shouldRespond": "yes", "confidence": 0.8, "reason": "r"}`},
		{"missing confidence", `{"shouldRespond": true, "reason": "r"}`},
		{"missing reason", `{"shouldRespond": true, "confidence": 0.8}`},
		{"empty reason", `{"shouldRespond": true, "confidence": 0.8, "reason": ""}`},
		{"truncated JSON", `{"shouldRespond": true, "confi`},
	}

	for _, tc := range malformed {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{CompleteResponse: verdictResponse(tc.body)}
			a := NewAssisted(p, nil, fastRetry)

			got, err := a.Score(context.Background(), scorable)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != want {
				t.Fatalf("got %+v, want rule verdict %+v", got, want)
			}
		})
	}

	t.Run("provider failure after retries", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteErr: errors.New("boom")}
		a := NewAssisted(p, nil, fastRetry)

		got, err := a.Score(context.Background(), scorable)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("got %+v, want rule verdict %+v", got, want)
		}
		if p.CallCount() != 2 {
			t.Fatalf("provider calls = %d, want 2 (retry exhausted)", p.CallCount())
		}
	})

	t.Run("transient failure recovers within retries", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{
			CompleteErr:           errors.New("blip"),
			FailuresBeforeSuccess: 1,
			CompleteResponse: verdictResponse(
				`{"shouldRespond": true, "confidence": 0.7, "reason": "second attempt"}`,
			),
		}
		a := NewAssisted(p, nil, fastRetry)

		got, err := a.Score(context.Background(), scorable)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.ShouldRespond || got.Reason != "second attempt" {
			t.Fatalf("unexpected result: %+v", got)
		}
	})

	t.Run("cancelled context surfaces the error", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{CompleteErr: errors.New("boom")}
		a := NewAssisted(p, nil, fastRetry)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := a.Score(ctx, scorable); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})
}

// ── Full engine with assisted scorer ─────────────────────────────────────────

func TestEngineWithAssistedScorer(t *testing.T) {
	t.Parallel()

	t.Run("gates run before the provider is consulted", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{}
		e := New(Config{}, NewAssisted(p, nil, fastRetry))

		got, err := e.Analyze(context.Background(), Context{Transcript: "too short"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ShouldRespond {
			t.Fatal("want decline from the word gate")
		}
		if p.CallCount() != 0 {
			t.Fatalf("provider calls = %d, want 0 (gate short-circuits)", p.CallCount())
		}
	})

	t.Run("malformed verdict is indistinguishable from rules-only", func(t *testing.T) {
		t.Parallel()
		in := Context{
			Transcript: "that wraps up the planning discussion for today.",
			Silence:    3 * time.Second,
		}

		plain := New(Config{}, NewRules())
		want, err := plain.Analyze(context.Background(), in)
		if err != nil {
			t.Fatalf("rules-only analyze: %v", err)
		}

		p := &mock.Provider{CompleteResponse: verdictResponse("not valid json")}
		assisted := New(Config{}, NewAssisted(p, nil, fastRetry))
		got, err := assisted.Analyze(context.Background(), in)
		if err != nil {
			t.Fatalf("assisted analyze: %v", err)
		}

		if got != want {
			t.Fatalf("assisted fallback %+v differs from rules-only %+v", got, want)
		}
	})
}

// ── Verdict parsing ──────────────────────────────────────────────────────────

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	t.Run("fenced without language tag", func(t *testing.T) {
		t.Parallel()
		got, ok := parseVerdict("```\n{\"shouldRespond\": true, \"confidence\": 0.5, \"reason\": \"r\"}\n```")
		if !ok {
			t.Fatal("want valid verdict")
		}
		if !got.ShouldRespond {
			t.Fatalf("unexpected result: %+v", got)
		}
	})

	t.Run("surrounding whitespace tolerated", func(t *testing.T) {
		t.Parallel()
		_, ok := parseVerdict("  \n{\"shouldRespond\": false, \"confidence\": 0.2, \"reason\": \"r\"}\n  ")
		if !ok {
			t.Fatal("want valid verdict")
		}
	})

	t.Run("reason longer than the cap is truncated", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("a", 300)
		got, ok := parseVerdict(`{"shouldRespond": true, "confidence": 0.5, "reason": "` + long + `"}`)
		if !ok {
			t.Fatal("want valid verdict")
		}
		if len(got.Reason) != MaxReasonLen {
			t.Fatalf("len(reason) = %d, want %d", len(got.Reason), MaxReasonLen)
		}
	})
}
