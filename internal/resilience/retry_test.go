package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversWithinBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := RetryWithResult(context.Background(), RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBoom
		}
		return "third time", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "third time" {
		t.Fatalf("result = %q", got)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	t.Parallel()

	first := errors.New("first")
	last := errors.New("last")
	calls := 0
	err := Retry(context.Background(), RetryConfig{Attempts: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls == 1 {
			return first
		}
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("want last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryLinearBackoff(t *testing.T) {
	t.Parallel()

	base := 20 * time.Millisecond
	start := time.Now()
	_ = Retry(context.Background(), RetryConfig{Attempts: 3, BaseDelay: base}, func(context.Context) error {
		return errBoom
	})
	elapsed := time.Since(start)

	// Sleeps of base×1 and base×2 between the three attempts.
	if want := 3 * base; elapsed < want {
		t.Fatalf("elapsed = %v, want at least %v", elapsed, want)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	t.Parallel()

	t.Run("already cancelled skips the attempt", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := Retry(ctx, RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
			calls++
			return errBoom
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
		if calls != 0 {
			t.Fatalf("calls = %d, want 0", calls)
		}
	})

	t.Run("cancellation aborts the backoff sleep", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())

		start := time.Now()
		err := Retry(ctx, RetryConfig{Attempts: 2, BaseDelay: 10 * time.Second}, func(context.Context) error {
			cancel()
			return errBoom
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Fatal("backoff sleep was not interrupted")
		}
	})
}

func TestRetryDefaults(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{}.withDefaults()
	if cfg.Attempts != DefaultAttempts {
		t.Fatalf("attempts = %d, want %d", cfg.Attempts, DefaultAttempts)
	}
	if cfg.BaseDelay != DefaultBaseDelay {
		t.Fatalf("base delay = %v, want %v", cfg.BaseDelay, DefaultBaseDelay)
	}
}
