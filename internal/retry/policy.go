// Package retry provides the attempt loop shared by platform queries,
// mutations and post-write verification.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"time"
)

// Policy describes how an operation is retried
type Policy struct {
	MaxAttempts int
	// InitialDelay is waited before the first attempt.
	InitialDelay time.Duration
	// Backoff returns the delay after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error may be retried; nil retries everything.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ErrExhausted wraps the last error once every attempt has failed
var ErrExhausted = errors.New("retry budget exhausted")

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget runs out. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	if p.InitialDelay > 0 {
		if err := p.sleep(ctx, p.InitialDelay); err != nil {
			return 0, err
		}
	}

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == max {
			break
		}
		if p.Backoff != nil {
			if serr := p.sleep(ctx, p.Backoff(attempt)); serr != nil {
				return attempt, serr
			}
		}
	}
	return max, &ExhaustedError{Attempts: max, Err: err}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return e.Err.Error()
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Sleep waits for d or until ctx is cancelled
func Sleep(ctx context.Context, d time.Duration) error {
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

// Exponential doubles base after every failed attempt: base, 2*base, 4*base...
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(1<<(attempt-1))
	}
}

// Constant waits d after every failed attempt
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// MatchMessage retries errors whose message matches any of the patterns
func MatchMessage(patterns ...*regexp.Regexp) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := err.Error()
		for _, p := range patterns {
			if p.MatchString(msg) {
				return true
			}
		}
		return false
	}
}

// Jitter returns a random duration in [0, max)
func Jitter(r *rand.Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if r == nil {
		return time.Duration(rand.Int63n(int64(max)))
	}
	return time.Duration(r.Int63n(int64(max)))
}
