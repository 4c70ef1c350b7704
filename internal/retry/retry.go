package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrMaxRetriesExceeded is returned when the executor gave up without ever
// observing an error from the operation.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Backoff computes how long to wait after a failed attempt (1-indexed)
// before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential waits Base * 2^attempt: 2s, 4s, 8s with the default base.
type Exponential struct {
	Base time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	base := e.Base
	if base <= 0 {
		base = time.Second
	}
	return base * time.Duration(1<<attempt)
}

// Linear waits the same fixed delay after every failed attempt.
type Linear struct {
	Wait time.Duration
}

func (l Linear) Delay(attempt int) time.Duration {
	if l.Wait <= 0 {
		return time.Second
	}
	return l.Wait
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs an operation up to a bounded number of sequential attempts.
type Executor struct {
	Backoff Backoff
	// Retryable classifies an error as transient. Defaults to IsTransient.
	Retryable func(error) bool
	// FailFast returns non-transient errors immediately instead of retrying them.
	FailFast bool
	Sleep    SleepFunc
}

// NewExecutor creates an Executor with the default classifier and a
// context-aware sleep. A nil backoff means exponential.
func NewExecutor(backoff Backoff) *Executor {
	if backoff == nil {
		backoff = Exponential{}
	}
	return &Executor{
		Backoff:   backoff,
		Retryable: IsTransient,
		Sleep:     sleep,
	}
}

// Do executes op until it succeeds or maxAttempts attempts have failed, in
// which case the last error is returned.
func Do[T any](ctx context.Context, e *Executor, maxAttempts int, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	retryable := e.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	wait := e.Sleep
	if wait == nil {
		wait = sleep
	}
	backoff := e.Backoff
	if backoff == nil {
		backoff = Exponential{}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		transient := retryable(err)
		if !transient && e.FailFast {
			slog.Warn("Attempt failed with non-retryable error",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err,
			)
			return zero, err
		}

		delay := backoff.Delay(attempt)
		slog.Warn("Attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retryable", transient,
			"delay", delay,
			"error", err,
		)
		if err := wait(ctx, delay); err != nil {
			return zero, errors.Join(lastErr, err)
		}
	}

	if lastErr == nil {
		return zero, ErrMaxRetriesExceeded
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
