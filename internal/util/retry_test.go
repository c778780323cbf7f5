package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result, err := Retry(3, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 99 {
		t.Fatalf("expected 99, got %d", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_MaxTriesZeroOrNegative(t *testing.T) {
	for _, n := range []int{0, -2} {
		calls := 0
		_, err := Retry(n, func() (int, error) {
			calls++
			return 0, errors.New("fail")
		})
		if calls != 1 {
			t.Fatalf("maxTries=%d: expected 1 call, got %d", n, calls)
		}
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	}
}

func TestRetryWithContext_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithContext(ctx, 3, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_StopsOnContextError(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 5, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

var errConflict = errors.New("conflict")

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		maxTries  int
		retryable func(error) bool
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds after transient failures", failures: 2, maxTries: 4, wantCalls: 3},
		{name: "gives up after max tries", failures: 10, maxTries: 3, wantCalls: 3, wantErr: errConflict},
		{
			name:      "non retryable stops immediately",
			failures:  10,
			maxTries:  5,
			retryable: func(err error) bool { return false },
			wantCalls: 1,
			wantErr:   errConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retries := 0
			got, err := RetryWithBackoff(context.Background(), BackoffParams{
				MaxTries:        tt.maxTries,
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
				Retryable:       tt.retryable,
				OnRetry:         func(error, time.Duration) { retries++ },
			}, func(ctx context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errConflict
				}
				return "done", nil
			})
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != "done" {
				t.Fatalf("got (%q, %v)", got, err)
			}
			if retries != tt.failures {
				t.Fatalf("retries = %d, want %d", retries, tt.failures)
			}
		})
	}
}
