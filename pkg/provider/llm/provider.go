// Package llm defines the completion-provider capability consumed by the
// parley decision and composition stages.
//
// A provider wraps a remote or local model API (e.g., OpenAI GPT-4o, Anthropic
// Claude via any-llm, or a local Ollama instance) and exposes a uniform
// interface for turning a message sequence into generated text without
// coupling callers to any specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message represents a single turn in a conversation handed to a provider.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend. All
// counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything a provider needs to produce text.
// A zero-value request is invalid; at minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Backend failures are returned as a [*ProviderError] so callers can
	// inspect the HTTP-style status.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns a short identifier for logs and metrics (e.g. "openai").
	Name() string
}

// Func adapts a plain function to the [Provider] interface. It is the
// "custom" binding: callers supply arbitrary generation logic (used heavily
// in tests) and bypass network calls entirely.
type Func func(ctx context.Context, req CompletionRequest) (string, error)

// Complete implements [Provider] by invoking the function.
func (f Func) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	content, err := f(ctx, req)
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{Content: content}, nil
}

// Name implements [Provider].
func (Func) Name() string { return "custom" }

var _ Provider = (Func)(nil)
