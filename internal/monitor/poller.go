package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// pollBackoffFactor is the growth rate of the adaptive polling interval.
// Each tick without a change stretches the interval by this factor up to
// Options.MaxPollInterval; any detected change resets it to the base. This
// bounds wasted reads during long silences while staying responsive during
// active speech.
const pollBackoffFactor = 1.5

// poll is the adaptive polling loop used for stores without a subscription
// capability. It runs on its own goroutine until ctx is cancelled by Stop.
//
// A failed read is reported through the error event and polling continues on
// the next tick; a store hiccup never terminates observation.
func (m *Monitor) poll(ctx context.Context) {
	interval := m.opts.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		value, err := m.opts.Store.Get(ctx, m.opts.Key)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("transcript poll failed", "key", m.opts.Key, "error", err)
			m.events.emitError(fmt.Errorf("monitor: poll %q: %w", m.opts.Key, err))
			timer.Reset(interval)
			continue
		}

		m.mu.Lock()
		changed := value != m.lastTranscript
		m.mu.Unlock()

		if changed {
			interval = m.opts.PollInterval
			m.observeChange(value)
		} else {
			interval = time.Duration(float64(interval) * pollBackoffFactor)
			if interval > m.opts.MaxPollInterval {
				interval = m.opts.MaxPollInterval
			}
		}
		timer.Reset(interval)
	}
}
