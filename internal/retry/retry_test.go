package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instantPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
		Rand:        func() float64 { return 0.5 },
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), instantPolicy(5), nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	cause := errors.New("always failing")
	calls := 0
	err := Do(context.Background(), instantPolicy(4), nil, func(ctx context.Context) error {
		calls++
		return cause
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("exhausted error must wrap the cause")
	}
	if calls != 4 || exhausted.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d / %d", calls, exhausted.Attempts)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, instantPolicy(5), nil, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("cancelled context must prevent attempts, got %d", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := withDefaults(Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2})

	if d := p.backoffDelay(1); d != 100*time.Millisecond {
		t.Fatalf("first delay: %v", d)
	}
	if d := p.backoffDelay(2); d != 200*time.Millisecond {
		t.Fatalf("second delay: %v", d)
	}
	if d := p.backoffDelay(10); d != 500*time.Millisecond {
		t.Fatalf("delay must cap at MaxDelay, got %v", d)
	}
}
