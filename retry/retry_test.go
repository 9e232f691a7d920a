package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errDown     = errors.New("connection refused")
	errBadInput = errors.New("bad input")
)

func onlyDown(err error) bool { return errors.Is(err, errDown) }

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   onlyDown,
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errDown
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected %q, got %q", "ok", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   onlyDown,
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", errBadInput
	})

	if !errors.Is(err, errBadInput) {
		t.Fatalf("expected errBadInput, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retries), got %d", calls)
	}
}

func TestDo_DefaultPredicateSkipsContextErrors(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxAttempts: 100,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	}

	_, err := Do(ctx, cfg, func(_ context.Context) (int, error) {
		return 0, errDown
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	var retries []int
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		OnRetry:     func(attempt int, _ error) { retries = append(retries, attempt) },
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", errDown
	})

	if !errors.Is(err, errDown) {
		t.Fatalf("expected errDown after exhausting attempts, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", retries)
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (int, error) {
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}

	d0 := backoff(cfg, 0) // 100ms
	d1 := backoff(cfg, 1) // 200ms
	d2 := backoff(cfg, 2) // 400ms
	d3 := backoff(cfg, 3) // 800ms → capped at 500ms

	if d0 != 100*time.Millisecond {
		t.Fatalf("attempt 0: expected 100ms, got %v", d0)
	}
	if d1 != 200*time.Millisecond {
		t.Fatalf("attempt 1: expected 200ms, got %v", d1)
	}
	if d2 != 400*time.Millisecond {
		t.Fatalf("attempt 2: expected 400ms, got %v", d2)
	}
	if d3 != 500*time.Millisecond {
		t.Fatalf("attempt 3: expected 500ms (capped), got %v", d3)
	}
}

func TestBackoff_NoCapWhenUnset(t *testing.T) {
	cfg := Config{BaseDelay: time.Second}
	if d := backoff(cfg, 3); d != 8*time.Second {
		t.Fatalf("expected 8s, got %v", d)
	}
}
