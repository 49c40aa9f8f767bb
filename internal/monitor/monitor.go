// Package monitor implements the stateful orchestration loop: it observes
// transcript changes (push or adaptive polling), coalesces bursts through a
// debounce window, serializes decide-then-generate cycles, records turns
// into a bounded conversation history, and emits lifecycle events.
//
// A Monitor owns its history buffer, debounce timer, and in-flight flag
// exclusively; callers interact only through the exported methods. Multiple
// Monitor instances are fully independent.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlane/parley/internal/analyzer"
	"github.com/voxlane/parley/internal/composer"
	"github.com/voxlane/parley/internal/observe"
	"github.com/voxlane/parley/internal/resilience"
	"github.com/voxlane/parley/pkg/store"
)

// ErrStopped is returned by Start after Stop has been called. A stopped
// monitor cannot be restarted; construct a new one instead.
var ErrStopped = errors.New("monitor: stopped")

// Defaults for [Options] fields left zero.
const (
	DefaultKey             = "transcript"
	DefaultDebounce        = time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxPollInterval = 5 * time.Second
	DefaultHistoryLimit    = 20
)

// monitor lifecycle states.
type state int

const (
	stateIdle state = iota
	stateListening
	stateProcessing
	stateStopped
)

// Options configures a [Monitor]. The set is frozen at construction.
type Options struct {
	// Store holds the transcript text. Required. When the store also
	// implements [store.Subscriber], the monitor takes the push path;
	// otherwise it falls back to adaptive polling.
	Store store.Store

	// Analyzer decides whether a snapshot warrants a response. Required.
	Analyzer *analyzer.Engine

	// Composer generates the response text for positive verdicts. Required.
	Composer composer.Composer

	// Key is the store key observed by this monitor. Default: "transcript".
	Key string

	// Debounce is the quiet period after the last change before a cycle
	// runs. Repeated changes inside the window collapse into a single
	// trailing invocation. Default: 1s.
	Debounce time.Duration

	// PollInterval is the adaptive polling base interval. Default: 500ms.
	PollInterval time.Duration

	// MaxPollInterval caps the adaptive polling backoff. Default: 5s.
	MaxPollInterval time.Duration

	// HistoryLimit caps the conversation buffer; the oldest entries are
	// dropped past it. Default: 20.
	HistoryLimit int

	// Name, Role and ContextRef form the optional identity triple passed
	// to the analyzer on every cycle.
	Name       string
	Role       string
	ContextRef string

	// Retry bounds the composer invocation per cycle.
	Retry resilience.RetryConfig

	// Metrics receives cycle instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

func (o Options) withDefaults() Options {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollInterval <= 0 {
		o.MaxPollInterval = DefaultMaxPollInterval
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	o.Retry.Name = "composer"
	return o
}

// Monitor watches one transcript key and drives the response pipeline.
// All exported methods are safe for concurrent use.
type Monitor struct {
	opts    Options
	events  events
	history *history

	mu             sync.Mutex
	state          state
	baseCtx        context.Context
	lastTranscript string
	prevTranscript string
	lastChange     time.Time
	debounce       *time.Timer
	inFlight       bool
	pushMode       bool
	unsubscribe    func()
	pollStop       context.CancelFunc
}

// New creates a Monitor in the idle state. Store, Analyzer and Composer are
// required; zero-valued option fields receive the documented defaults.
func New(opts Options) (*Monitor, error) {
	if opts.Store == nil {
		return nil, errors.New("monitor: Store is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("monitor: Analyzer is required")
	}
	if opts.Composer == nil {
		return nil, errors.New("monitor: Composer is required")
	}
	opts = opts.withDefaults()

	return &Monitor{
		opts:    opts,
		history: newHistory(opts.HistoryLimit),
		baseCtx: context.Background(),
	}, nil
}

// OnStarted registers a listener invoked once observation begins.
func (m *Monitor) OnStarted(fn func()) { m.events.onStarted(fn) }

// OnTranscriptChanged registers a listener for every observed change.
func (m *Monitor) OnTranscriptChanged(fn func(text string)) { m.events.onTranscriptChanged(fn) }

// OnAnalysisComplete registers a listener for every analyzer verdict.
func (m *Monitor) OnAnalysisComplete(fn func(result analyzer.Result)) {
	m.events.onAnalysisComplete(fn)
}

// OnResponseGenerated registers a listener for every generated response.
func (m *Monitor) OnResponseGenerated(fn func(text string)) { m.events.onResponseGenerated(fn) }

// OnError registers a listener for cycle and polling errors.
func (m *Monitor) OnError(fn func(err error)) { m.events.onError(fn) }

// Start begins observing the configured key. The observation strategy is
// chosen here: stores implementing [store.Subscriber] are subscribed to,
// everything else is polled adaptively. ctx bounds the lifetime of provider
// calls made by cycles; cancelling it does not replace calling Stop.
//
// Calling Start twice duplicates observers — avoiding that is the caller's
// responsibility. Start after Stop returns [ErrStopped].
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return ErrStopped
	}
	m.baseCtx = ctx

	if sub, ok := m.opts.Store.(store.Subscriber); ok {
		unsub, err := sub.Subscribe(m.opts.Key, m.observeChange)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("monitor: subscribe %q: %w", m.opts.Key, err)
		}
		m.unsubscribe = unsub
		m.pushMode = true
	} else {
		pollCtx, cancel := context.WithCancel(ctx)
		m.pollStop = cancel
		go m.poll(pollCtx)
	}
	m.state = stateListening
	mode := "poll"
	if m.pushMode {
		mode = "push"
	}
	m.mu.Unlock()

	m.opts.Metrics.MonitorStarted(ctx)
	slog.Info("monitor started", "key", m.opts.Key, "mode", mode)
	m.events.emitStarted()
	return nil
}

// Stop ends observation and releases all listeners. It is idempotent and
// terminal: the monitor cannot be restarted. A cycle already in flight runs
// to completion; Stop only prevents new cycles from being scheduled.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	wasStarted := m.state != stateIdle
	m.state = stateStopped
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	unsub := m.unsubscribe
	m.unsubscribe = nil
	cancel := m.pollStop
	m.pollStop = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.events.clear()
	if wasStarted {
		m.opts.Metrics.MonitorStopped(context.Background())
	}
	slog.Info("monitor stopped", "key", m.opts.Key)
}

// UpdateTranscript writes text to the store and triggers the same
// change-handling path as an observed external change. With a push-capable
// store the subscription callback delivers the change; in poll mode the
// change is injected directly instead of waiting for the next tick.
func (m *Monitor) UpdateTranscript(ctx context.Context, text string) error {
	if err := m.opts.Store.Set(ctx, m.opts.Key, text); err != nil {
		return fmt.Errorf("monitor: update transcript: %w", err)
	}

	m.mu.Lock()
	push := m.pushMode
	m.mu.Unlock()
	if !push {
		m.observeChange(text)
	}
	return nil
}

// History returns a snapshot copy of the conversation buffer.
func (m *Monitor) History() []Message {
	return m.history.snapshot()
}

// ClearHistory empties the conversation buffer.
func (m *Monitor) ClearHistory() {
	m.history.clear()
}

// observeChange is the single entry point for transcript changes from every
// source (push callback, poll tick, UpdateTranscript). The change event is
// emitted synchronously and unconditionally; the processing cycle itself is
// rescheduled through the debounce window using the latest value at fire
// time.
func (m *Monitor) observeChange(text string) {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	m.lastTranscript = text
	m.lastChange = time.Now()

	// Trailing-edge debounce: replace any pending fire.
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.opts.Debounce, m.debounceFired)
	ctx := m.baseCtx
	m.mu.Unlock()

	m.opts.Metrics.RecordChange(ctx)
	m.events.emitTranscriptChanged(text)
}

// debounceFired runs when the debounce window elapses without further
// changes. If a previous cycle is still in flight the fire is dropped
// entirely — cycles are never queued, so two overlapping analyses can never
// append to history out of order.
func (m *Monitor) debounceFired() {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	if m.inFlight {
		ctx := m.baseCtx
		m.mu.Unlock()
		m.opts.Metrics.RecordDropped(ctx)
		slog.Debug("cycle dropped, previous cycle in flight", "key", m.opts.Key)
		return
	}
	m.inFlight = true
	if m.state == stateListening {
		m.state = stateProcessing
	}
	ctx := m.baseCtx
	m.mu.Unlock()

	m.runCycle(ctx)
}

// runCycle executes one decide-then-optionally-generate pass. Any error is
// contained here: the cycle aborts without partial history mutation, the
// error event fires, and future cycles are unaffected.
func (m *Monitor) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		if m.state == stateProcessing {
			m.state = stateListening
		}
		m.mu.Unlock()
	}()

	ctx, span := observe.StartSpan(ctx, "monitor.cycle")
	defer span.End()

	// Snapshot inputs. Silence is measured now — at execution time — so the
	// debounce delay does not artificially shrink the apparent silence.
	m.mu.Lock()
	transcript := m.lastTranscript
	previous := m.prevTranscript
	silence := time.Since(m.lastChange)
	m.mu.Unlock()

	historyMsgs := m.history.messages()

	in := analyzer.Context{
		Transcript: transcript,
		Previous:   previous,
		Silence:    silence,
		History:    historyMsgs,
		Name:       m.opts.Name,
		Role:       m.opts.Role,
		ContextRef: m.opts.ContextRef,
	}

	result, err := m.opts.Analyzer.Analyze(ctx, in)
	if err != nil {
		m.failCycle(ctx, fmt.Errorf("monitor: analyze: %w", err))
		return
	}

	m.mu.Lock()
	m.prevTranscript = transcript
	m.mu.Unlock()

	m.opts.Metrics.RecordCycle(ctx, time.Since(start), result.ShouldRespond)
	m.events.emitAnalysisComplete(result)

	if !result.ShouldRespond {
		slog.Debug("holding back response",
			"key", m.opts.Key, "confidence", result.Confidence, "reason", result.Reason)
		return
	}

	text, err := resilience.RetryWithResult(ctx, m.opts.Retry, func(ctx context.Context) (string, error) {
		return m.opts.Composer.Compose(ctx, transcript, historyMsgs)
	})
	if err != nil {
		m.failCycle(ctx, fmt.Errorf("monitor: compose: %w", err))
		return
	}

	m.history.appendPair(transcript, text)
	m.opts.Metrics.RecordResponse(ctx)
	m.events.emitResponseGenerated(text)

	slog.Info("response generated",
		"key", m.opts.Key, "confidence", result.Confidence, "history_len", m.history.len())
}

// failCycle reports a cycle-level failure without mutating history.
func (m *Monitor) failCycle(ctx context.Context, err error) {
	m.opts.Metrics.RecordCycleError(ctx)
	slog.Warn("cycle failed", "key", m.opts.Key, "error", err)
	m.events.emitError(err)
}
