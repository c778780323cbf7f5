package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry calls fn up to maxTries times until it returns a nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for range maxTries {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryWithContext is Retry that stops as soon as ctx is done or fn returns a
// context error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for range maxTries {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if isContextErr(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// BackoffParams bounds an exponential backoff loop.
type BackoffParams struct {
	MaxTries        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether an error is transient. Nil retries everything
	// except context errors.
	Retryable func(error) bool
	// OnRetry is called before sleeping after a failed attempt.
	OnRetry func(err error, wait time.Duration)
}

// RetryWithBackoff runs fn with exponential backoff and jitter until it
// succeeds, a non-retryable error is returned, MaxTries is exhausted or ctx
// is done. The last error is returned unwrapped.
func RetryWithBackoff[T any](ctx context.Context, params BackoffParams, fn func(context.Context) (T, error)) (T, error) {
	if params.MaxTries <= 0 {
		params.MaxTries = 1
	}
	b := backoff.NewExponentialBackOff()
	if params.InitialInterval > 0 {
		b.InitialInterval = params.InitialInterval
	}
	if params.MaxInterval > 0 {
		b.MaxInterval = params.MaxInterval
	}
	b.MaxElapsedTime = 0

	var result T
	op := func() error {
		r, err := fn(ctx)
		if err == nil {
			result = r
			return nil
		}
		if isContextErr(err) {
			return backoff.Permanent(err)
		}
		if params.Retryable != nil && !params.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(params.MaxTries-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		if params.OnRetry != nil {
			params.OnRetry(err, wait)
		}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
