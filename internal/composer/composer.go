// Package composer builds prompts from a transcript and the conversation so
// far, and invokes a completion provider to generate the response text.
//
// Two variants implement [Composer]: [LLM] forwards to a configured
// completion provider with an identity-aware system prompt, and [Func] wraps
// a caller-supplied generator. Provider and configuration failures propagate
// to the caller — unlike the decision engine, the composer's errors carry
// information the caller needs (e.g. "fix your API key").
package composer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/voxlane/parley/pkg/provider/llm"
)

// ErrNotConfigured is returned when the composer has neither a custom
// generator nor a completion provider to dispatch to.
var ErrNotConfigured = errors.New("composer: no generator function and no provider configured")

// DefaultSystemPrompt is the base system instruction when none is configured.
const DefaultSystemPrompt = "You are a helpful assistant responding to transcribed speech. Keep replies concise and conversational."

// Composer turns a transcript plus conversation history into response text.
type Composer interface {
	// Compose generates a response to transcript given the prior turns.
	Compose(ctx context.Context, transcript string, history []llm.Message) (string, error)
}

// Func adapts a caller-supplied generator to [Composer]. It receives the
// transcript and history only — identity fields are not passed to custom
// generators, since the caller already controls that logic.
type Func func(ctx context.Context, transcript string, history []llm.Message) (string, error)

// Compose implements [Composer].
func (f Func) Compose(ctx context.Context, transcript string, history []llm.Message) (string, error) {
	return f(ctx, transcript, history)
}

// Identity is the optional name/role/context triple that personalises
// generation.
type Identity struct {
	// Name is the token the assistant should recognise as direct address.
	Name string

	// Role is a free-text persona description.
	Role string

	// ContextRef is literal background text or a path to a file with it.
	ContextRef string
}

// Config tunes the [LLM] composer.
type Config struct {
	// SystemPrompt is the base system instruction. Empty selects
	// DefaultSystemPrompt.
	SystemPrompt string

	// Temperature is passed through to the provider. Zero uses the
	// provider default.
	Temperature float64

	// MaxTokens bounds the generated response. Zero uses the provider
	// default.
	MaxTokens int

	// Identity personalises the system prompt.
	Identity Identity
}

// LLM composes responses through a completion provider. It is read-only
// after construction and safe for concurrent use.
type LLM struct {
	provider     llm.Provider
	cfg          Config
	systemPrompt string
}

// NewLLM creates an LLM composer. The identity-dependent part of the system
// prompt is resolved once here — including reading the context file when
// ContextRef names one — so Compose does no filesystem work per cycle.
func NewLLM(provider llm.Provider, cfg Config) (*LLM, error) {
	if provider == nil {
		return nil, ErrNotConfigured
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &LLM{
		provider:     provider,
		cfg:          cfg,
		systemPrompt: buildSystemPrompt(cfg.SystemPrompt, cfg.Identity),
	}, nil
}

// Compose implements [Composer]. The message sequence is the system prompt,
// every history entry in order with its role preserved, then the transcript
// as the final user message. Provider failures are returned unwrapped enough
// for errors.As to find the *llm.ProviderError.
func (c *LLM) Compose(ctx context.Context, transcript string, history []llm.Message) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: transcript})

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: c.systemPrompt,
		Temperature:  c.cfg.Temperature,
		MaxTokens:    c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("composer: %w", err)
	}
	return resp.Content, nil
}

// buildSystemPrompt concatenates the base instruction with the identity
// lines: persona role, direct-address recognition, and resolved background
// context.
func buildSystemPrompt(base string, id Identity) string {
	var sb strings.Builder
	sb.WriteString(base)

	if id.Role != "" {
		sb.WriteString("\nYou are acting as: ")
		sb.WriteString(id.Role)
	}
	if id.Name != "" {
		fmt.Fprintf(&sb, "\nThe user may address you directly as %q; treat such mentions as speaking to you.", id.Name)
	}
	if id.ContextRef != "" {
		sb.WriteString("\n\nBackground context:\n")
		sb.WriteString(resolveContext(id.ContextRef))
	}
	return sb.String()
}

// resolveContext turns a context reference into text. A reference containing
// a newline or no path separator is literal text; otherwise it is read as a
// file path, falling back to the raw reference when the read fails. Context
// is best-effort: resolution never fails.
func resolveContext(ref string) string {
	if strings.ContainsRune(ref, '\n') || !strings.ContainsRune(ref, os.PathSeparator) {
		return ref
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return ref
	}
	return string(data)
}

var (
	_ Composer = (*LLM)(nil)
	_ Composer = (Func)(nil)
)
