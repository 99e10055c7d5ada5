package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"farmguard/internal/infra"
)

func fastRetry() infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	want := errors.New("down")
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error: got %v, want %v", err, want)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_PermanentStops(t *testing.T) {
	calls := 0
	want := errors.New("not found")
	err := infra.WithRetry(context.Background(), fastRetry(), func() error {
		calls++
		return infra.Permanent(want)
	})
	if !errors.Is(err, want) {
		t.Fatalf("error: got %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	tests := map[int]bool{
		200: false,
		404: false,
		429: true,
		500: true,
		503: true,
	}
	for code, want := range tests {
		if got := infra.IsRetryableHTTPStatus(code); got != want {
			t.Errorf("%d: got %v, want %v", code, got, want)
		}
	}
}
