// Package retry provides bounded exponential backoff retry logic with
// per-attempt outcome notification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy holds retry configuration.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// JitterFraction is the fraction of the delay used for jitter (0.0-1.0).
	JitterFraction float64
}

// DefaultPolicy returns the standard failover schedule: five attempts with
// delays of 1s, 2s, 4s, 8s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// Kind classifies the final outcome of a failed Do call.
type Kind int

const (
	// Exhausted means every attempt failed with a transient error.
	Exhausted Kind = iota
	// Terminal means an attempt failed with a definitive rejection and
	// remaining attempts were not consumed.
	Terminal
	// Canceled means the context was canceled between attempts.
	Canceled
)

// String returns the kind name for log output.
func (k Kind) String() string {
	switch k {
	case Exhausted:
		return "exhausted"
	case Terminal:
		return "terminal"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Error is returned by Do when the operation does not succeed.
// Use errors.As to extract it and inspect the kind and last cause.
type Error struct {
	// Kind is the final outcome classification.
	Kind Kind
	// Attempts is the number of attempts actually made.
	Attempts int
	// Cause is the error from the last attempt.
	Cause error
}

// Error returns a string representation of the retry error.
func (e *Error) Error() string {
	return fmt.Sprintf("retry: %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Cause)
}

// Unwrap returns the last attempt's error for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// IsExhausted reports whether err is a retry error that ran out of attempts.
func IsExhausted(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == Exhausted
}

// IsTerminal reports whether err is a retry error that short-circuited on a
// definitive rejection.
func IsTerminal(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == Terminal
}

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// TransientByDefault treats everything except context errors as transient.
// Callers with richer error information should supply their own classifier.
func TransientByDefault(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Attempt describes the outcome of a single attempt. Err is nil on success.
type Attempt struct {
	Number int
	Err    error
	At     time.Time
}

// Notify receives each individual attempt's outcome as it resolves, before
// any backoff sleep. It lets callers record progress durably mid-retry
// instead of only at final resolution.
type Notify func(Attempt)

// Do executes fn up to policy.MaxAttempts times. The delay before attempt k
// (k >= 2) is BaseDelay * Multiplier^(k-2), capped at MaxDelay. Transient
// failures (per classify) are retried; anything else short-circuits with a
// Terminal error. A nil classify uses TransientByDefault; a nil notify is
// ignored.
func Do(ctx context.Context, policy Policy, classify Classifier, notify Notify, fn func(context.Context) error) error {
	if classify == nil {
		classify = TransientByDefault
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	delay := policy.BaseDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if notify != nil {
			notify(Attempt{Number: attempt, Err: err, At: time.Now()})
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !classify(err) {
			return &Error{Kind: Terminal, Attempts: attempt, Cause: err}
		}
		if attempt == policy.MaxAttempts {
			break
		}

		sleep := delay + jitter(delay, policy.JitterFraction)
		if policy.MaxDelay > 0 && sleep > policy.MaxDelay {
			sleep = policy.MaxDelay
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return &Error{Kind: Canceled, Attempts: attempt, Cause: ctx.Err()}
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return &Error{Kind: Exhausted, Attempts: policy.MaxAttempts, Cause: lastErr}
}

// jitter returns a random duration in range [-fraction*d, +fraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	jitterRange := float64(d) * fraction
	return time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
}
