package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxlane/parley/internal/resilience"
	"github.com/voxlane/parley/pkg/provider/llm"
)

// scoringTemperature keeps the verdict near-deterministic.
const scoringTemperature = 0.1

// scoringMaxTokens bounds the verdict JSON; anything longer is malformed
// output anyway.
const scoringMaxTokens = 256

const scoringSystemPrompt = `You decide whether a partially transcribed utterance is complete enough to answer now.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"shouldRespond": <true|false>, "confidence": <0.0-1.0>, "reason": "<short explanation>"}

Guidelines:
- Prefer waiting when the utterance reads like an unfinished thought.
- Longer silence after the last change means the speaker is more likely done.
- A direct question or request should be answered promptly.`

// Assisted is the model-assisted scorer. It asks a completion provider for a
// structured verdict and strictly validates the reply; any parse or schema
// failure silently falls back to the deterministic [Rules] scorer, so a
// malformed model response never wins.
//
// Assisted is read-only after construction and safe for concurrent use.
type Assisted struct {
	provider llm.Provider
	rules    *Rules
	retry    resilience.RetryConfig
}

// NewAssisted creates an Assisted scorer backed by provider, falling back to
// rules. A nil rules gets NewRules() defaults.
func NewAssisted(provider llm.Provider, rules *Rules, retry resilience.RetryConfig) *Assisted {
	if rules == nil {
		rules = NewRules()
	}
	retry.Name = "analyzer"
	return &Assisted{provider: provider, rules: rules, retry: retry}
}

// Score implements [Scorer]. The provider call is retried per the configured
// policy; exhausted retries and malformed verdicts both resolve via the rule
// fallback rather than surfacing an error.
func (a *Assisted) Score(ctx context.Context, in Context) (Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: scoringSystemPrompt,
		Temperature:  scoringTemperature,
		MaxTokens:    scoringMaxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: buildScoringPrompt(in)},
		},
	}

	resp, err := resilience.RetryWithResult(ctx, a.retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return a.provider.Complete(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("model-assisted scoring failed, using rule fallback",
			"provider", a.provider.Name(), "error", err)
		return a.rules.Score(ctx, in)
	}

	result, ok := parseVerdict(resp.Content)
	if !ok {
		slog.Debug("model verdict failed validation, using rule fallback",
			"provider", a.provider.Name())
		return a.rules.Score(ctx, in)
	}
	return result, nil
}

// buildScoringPrompt renders the per-invocation user message: the transcript
// and its timing context, plus identity hints when configured.
func buildScoringPrompt(in Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Transcript: %q\n", in.Transcript)
	fmt.Fprintf(&sb, "Silence since last change: %dms\n", in.Silence.Milliseconds())
	fmt.Fprintf(&sb, "Conversation turns so far: %d\n", len(in.History))

	if in.Name != "" {
		fmt.Fprintf(&sb, "If the user directly addresses %q, increase confidence.\n", in.Name)
	}
	if in.Role != "" {
		fmt.Fprintf(&sb, "Consider acting in the role of: %s\n", in.Role)
	}
	if in.ContextRef != "" {
		sb.WriteString("Supplementary background context is configured for this conversation.\n")
	}

	return sb.String()
}

// verdict is the expected JSON structure. Pointer fields distinguish a
// missing field from a zero value, and json.Unmarshal rejects wrong types.
type verdict struct {
	ShouldRespond *bool    `json:"shouldRespond"`
	Confidence    *float64 `json:"confidence"`
	Reason        *string  `json:"reason"`
}

// parseVerdict validates the model output against the verdict schema.
// shouldRespond must be a boolean and reason a non-empty string, or the
// verdict is rejected. An out-of-range confidence is clamped rather than
// rejected. Markdown code fences are stripped before parsing.
func parseVerdict(content string) (Result, bool) {
	cleaned := stripMarkdown(content)

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Result{}, false
	}
	if v.ShouldRespond == nil || v.Confidence == nil || v.Reason == nil || *v.Reason == "" {
		return Result{}, false
	}

	return Result{
		ShouldRespond: *v.ShouldRespond,
		Confidence:    *v.Confidence,
		Reason:        *v.Reason,
	}.normalize(), true
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

var _ Scorer = (*Assisted)(nil)
