// Package analyzer implements the decision engine: given a transcript
// snapshot and timing metadata, it produces a should-respond verdict with a
// confidence score and a short human-readable reason.
//
// The engine evaluates a strict cascade. Cheap deterministic gates (word
// count, question/greeting triggers, silence) run first and short-circuit;
// only when they are ambiguous does evaluation reach the configured scorer —
// a caller-supplied function, a model-assisted scorer, or the deterministic
// rule fallback. The engine never fails for content reasons: every input
// resolves to some verdict.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/voxlane/parley/pkg/provider/llm"
)

// MaxReasonLen caps the length of [Result.Reason] regardless of its source.
const MaxReasonLen = 200

// Default gate thresholds.
const (
	DefaultMinWords   = 5
	DefaultMaxSilence = 1500 * time.Millisecond
)

// Gate confidences. These mirror how decisive each short-circuit branch is.
const (
	confTooFewWords   = 0.2
	confTrigger       = 0.9
	confStillSpeaking = 0.5
)

// Result is the engine's verdict for one transcript snapshot.
type Result struct {
	// ShouldRespond reports whether the utterance warrants a response now.
	ShouldRespond bool

	// Confidence is in [0, 1]. Higher means the verdict is more certain.
	Confidence float64

	// Reason is a short human-readable explanation, at most MaxReasonLen
	// characters.
	Reason string
}

// normalize clamps Confidence into [0,1] and truncates Reason to
// MaxReasonLen. Applied to every result before it leaves the engine, no
// matter which path produced it.
func (r Result) normalize() Result {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if len(r.Reason) > MaxReasonLen {
		r.Reason = truncateReason(r.Reason)
	}
	return r
}

// truncateReason cuts s to at most MaxReasonLen bytes without splitting a
// multi-byte rune. Model-produced reasons are free text and may carry
// arbitrary UTF-8.
func truncateReason(s string) string {
	cut := MaxReasonLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Context bundles the per-invocation inputs to the engine. It is ephemeral:
// nothing retains it beyond the cycle that produced it.
type Context struct {
	// Transcript is the current transcript snapshot.
	Transcript string

	// Previous is the transcript as of the prior cycle. Empty on the first.
	Previous string

	// Silence is the elapsed time since the transcript last changed,
	// measured when the cycle actually runs.
	Silence time.Duration

	// History is a read-only view of the conversation so far.
	History []llm.Message

	// Name, when set, is treated as a direct-address cue: a transcript that
	// mentions it boosts the respond confidence.
	Name string

	// Role is a free-text persona description that nudges both decision and
	// generation.
	Role string

	// ContextRef is free text or a filesystem path with supplementary
	// background. The engine only uses its presence as a hint; resolution
	// to text happens in the composer.
	ContextRef string
}

// Config holds the gate thresholds, frozen at engine construction.
type Config struct {
	// MinWords is the minimum whitespace-separated word count below which
	// the engine always declines. Defaults to DefaultMinWords.
	MinWords int

	// MaxSilence is the silence duration below which the engine assumes the
	// speaker may still be talking. Defaults to DefaultMaxSilence.
	MaxSilence time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinWords <= 0 {
		c.MinWords = DefaultMinWords
	}
	if c.MaxSilence <= 0 {
		c.MaxSilence = DefaultMaxSilence
	}
	return c
}

// Scorer resolves the ambiguous middle ground left after the gates: the
// transcript is long enough, carries no immediate trigger, and the speaker
// has been silent past the threshold.
type Scorer interface {
	// Score produces a verdict for in. Content issues never produce an
	// error; the only error cause is context cancellation.
	Score(ctx context.Context, in Context) (Result, error)
}

// Func adapts a caller-supplied decision function to [Scorer]. The engine
// delegates to it entirely, bypassing the model-assisted and rule paths.
type Func func(ctx context.Context, in Context) (Result, error)

// Score implements [Scorer].
func (f Func) Score(ctx context.Context, in Context) (Result, error) {
	return f(ctx, in)
}

// Engine runs the gate cascade and delegates ambiguous inputs to its scorer.
// Engine is read-only after construction and safe for concurrent use.
type Engine struct {
	cfg    Config
	scorer Scorer
}

// New creates an Engine with the given gates and scorer. A nil scorer gets
// the deterministic [Rules] fallback.
func New(cfg Config, scorer Scorer) *Engine {
	if scorer == nil {
		scorer = NewRules()
	}
	return &Engine{cfg: cfg.withDefaults(), scorer: scorer}
}

// MinWords returns the configured word-count gate.
func (e *Engine) MinWords() int { return e.cfg.MinWords }

// Analyze evaluates the cascade for in and returns a verdict. The branches
// run in strict order and the first decisive one wins:
//
//  1. Word-count gate: too few words always declines, even for questions.
//  2. Immediate triggers: a question mark or a leading greeting responds
//     without waiting out the silence timer.
//  3. Silence gate: a short pause mid-thought should not be interrupted.
//  4. Scorer: custom, model-assisted, or rule-based resolution.
//
// The returned error is non-nil only on context cancellation.
func (e *Engine) Analyze(ctx context.Context, in Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	words := len(strings.Fields(in.Transcript))
	if words < e.cfg.MinWords {
		return Result{
			ShouldRespond: false,
			Confidence:    confTooFewWords,
			Reason:        "too few words",
		}.normalize(), nil
	}

	if strings.Contains(in.Transcript, "?") {
		return Result{
			ShouldRespond: true,
			Confidence:    confTrigger,
			Reason:        "transcript contains a question",
		}.normalize(), nil
	}
	if g, ok := leadingGreeting(in.Transcript); ok {
		return Result{
			ShouldRespond: true,
			Confidence:    confTrigger,
			Reason:        fmt.Sprintf("transcript opens with greeting %q", g),
		}.normalize(), nil
	}

	if in.Silence < e.cfg.MaxSilence {
		return Result{
			ShouldRespond: false,
			Confidence:    confStillSpeaking,
			Reason:        "user may still be speaking",
		}.normalize(), nil
	}

	result, err := e.scorer.Score(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return result.normalize(), nil
}

// greetings is the fixed set of greeting tokens recognised by the immediate
// trigger and by the rule-based boost. Matching is case-insensitive and only
// considers the first word of the transcript.
var greetings = []string{
	"hi", "hello", "hey", "howdy", "greetings",
	"good morning", "good afternoon", "good evening",
}

// leadingGreeting reports whether the transcript begins with a greeting
// token and returns the matched token.
func leadingGreeting(transcript string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(transcript))
	for _, g := range greetings {
		if !strings.HasPrefix(lower, g) {
			continue
		}
		// Require a word boundary so "history lesson" does not match "hi".
		rest := lower[len(g):]
		if rest == "" || !isWordChar(rest[0]) {
			return g, true
		}
	}
	return "", false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '\''
}
