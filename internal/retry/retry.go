// Package retry runs an operation a bounded number of times with a backoff
// between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrExhausted is matched by the error returned once every attempt failed.
	ErrExhausted = errors.New("retries exhausted")

	// ErrUnacceptable marks an attempt whose result was rejected by the
	// acceptance check.
	ErrUnacceptable = errors.New("unacceptable result")
)

// BackoffFunc returns how long to wait after the given failed attempt.
// Attempts are numbered from 1.
type BackoffFunc func(attempt int) time.Duration

// Constant waits d after every attempt.
func Constant(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Linear waits initial after the first attempt and step longer after each
// following one.
func Linear(initial, step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return initial + time.Duration(attempt-1)*step
	}
}

// Exponential multiplies the wait by factor after each attempt, capped at max.
func Exponential(initial time.Duration, factor float64, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := float64(initial) * math.Pow(factor, float64(attempt-1))
		if max > 0 && d > float64(max) {
			return max
		}
		return time.Duration(d)
	}
}

// Policy bounds the attempts of Do.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// DefaultPolicy makes three attempts, waiting 2s then 4s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: Linear(2*time.Second, 2*time.Second)}
}

// Operation produces a result or an error.
type Operation[T any] func(ctx context.Context) (T, error)

// AcceptFunc rejects a result that came back without an error but cannot be
// used. A nil AcceptFunc accepts everything.
type AcceptFunc[T any] func(T) bool

// Notify is called after each failed attempt, before the wait.
type Notify func(attempt int, err error, wait time.Duration)

// ExhaustedError is returned when the last attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes both ErrExhausted and the cause of the last attempt.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// Do runs op until it returns an accepted result or the policy runs out of
// attempts. Context cancellation stops the loop immediately.
func Do[T any](ctx context.Context, p Policy, op Operation[T], accept AcceptFunc[T], notify Notify) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			if accept == nil || accept(result) {
				return result, nil
			}
			err = ErrUnacceptable
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		last = err

		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if notify != nil {
			notify(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
