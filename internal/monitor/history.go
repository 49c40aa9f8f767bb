package monitor

import (
	"sync"
	"time"

	"github.com/voxlane/parley/pkg/provider/llm"
)

// Message is one recorded conversation turn.
type Message struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the turn's text.
	Content string

	// CreatedAt is the creation timestamp in epoch milliseconds.
	CreatedAt int64
}

// history is the bounded conversation buffer owned exclusively by the
// monitor. Turns are appended in user/assistant pairs; when the cap is
// exceeded the oldest entries are dropped (sliding window).
//
// All methods are safe for concurrent use.
type history struct {
	mu      sync.RWMutex
	entries []Message
	limit   int
}

func newHistory(limit int) *history {
	return &history{
		entries: make([]Message, 0, limit),
		limit:   limit,
	}
}

// appendPair atomically records a user turn and the assistant response to
// it, then trims to the cap from the head. A response is never recorded
// without its triggering user turn, and vice versa.
func (h *history) appendPair(userContent, assistantContent string) {
	now := time.Now().UnixMilli()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries,
		Message{Role: "user", Content: userContent, CreatedAt: now},
		Message{Role: "assistant", Content: assistantContent, CreatedAt: now},
	)

	if len(h.entries) > h.limit {
		keep := h.entries[len(h.entries)-h.limit:]
		// Fresh backing array so trimmed entries can be collected.
		fresh := make([]Message, len(keep), h.limit)
		copy(fresh, keep)
		h.entries = fresh
	}
}

// snapshot returns a defensive copy of the buffer.
func (h *history) snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// messages returns the buffer converted for provider calls.
func (h *history) messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]llm.Message, len(h.entries))
	for i, e := range h.entries {
		out[i] = llm.Message{Role: e.Role, Content: e.Content}
	}
	return out
}

// clear empties the buffer.
func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}

// len returns the current entry count.
func (h *history) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
