package monitor

import (
	"sync"

	"github.com/voxlane/parley/internal/analyzer"
)

// events fans lifecycle notifications out to registered listeners. Listeners
// of one kind are invoked synchronously in registration order at each
// emission point; no ordering is promised across kinds beyond the cycle
// sequence (changed → analysis-complete → response-generated).
//
// The zero value is ready to use. Safe for concurrent use.
type events struct {
	mu                sync.RWMutex
	started           []func()
	transcriptChanged []func(text string)
	analysisComplete  []func(result analyzer.Result)
	responseGenerated []func(text string)
	errors            []func(err error)
}

func (e *events) onStarted(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, fn)
}

func (e *events) onTranscriptChanged(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcriptChanged = append(e.transcriptChanged, fn)
}

func (e *events) onAnalysisComplete(fn func(analyzer.Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analysisComplete = append(e.analysisComplete, fn)
}

func (e *events) onResponseGenerated(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responseGenerated = append(e.responseGenerated, fn)
}

func (e *events) onError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, fn)
}

func (e *events) emitStarted() {
	e.mu.RLock()
	fns := e.started
	e.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *events) emitTranscriptChanged(text string) {
	e.mu.RLock()
	fns := e.transcriptChanged
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(text)
	}
}

func (e *events) emitAnalysisComplete(result analyzer.Result) {
	e.mu.RLock()
	fns := e.analysisComplete
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(result)
	}
}

func (e *events) emitResponseGenerated(text string) {
	e.mu.RLock()
	fns := e.responseGenerated
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(text)
	}
}

func (e *events) emitError(err error) {
	e.mu.RLock()
	fns := e.errors
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

// clear drops every registered listener. Called from Stop.
func (e *events) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = nil
	e.transcriptChanged = nil
	e.analysisComplete = nil
	e.responseGenerated = nil
	e.errors = nil
}
