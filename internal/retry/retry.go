// Package retry runs external calls under an explicit attempt and backoff policy.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Action int

const (
	// Fatal stops immediately and returns the error.
	Fatal Action = iota
	// Retry consumes an attempt and backs off.
	Retry
	// Wait sleeps for Decision.Delay and tries again without consuming an attempt.
	Wait
)

type Decision struct {
	Action Action
	Delay  time.Duration
}

// Classifier maps a failed call to what the policy should do next.
type Classifier func(err error) Decision

type SleepFunc func(ctx context.Context, d time.Duration) error

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	// MaxWaits bounds rate-limit waits; once spent, a Wait decision counts as a Retry.
	MaxWaits int
	Classify Classifier
	Sleep    SleepFunc
}

// Default is 4 attempts with 0.5s doubling backoff, retrying every error.
func Default() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2,
		MaxWaits:       5,
		Classify:       RetryAll,
		Sleep:          SleepContext,
	}
}

func RetryAll(error) Decision {
	return Decision{Action: Retry}
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds, the classifier says Fatal, or the attempts run out.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = RetryAll
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := p.InitialBackoff
	waits := 0
	var lastErr error

	for attempt := 0; attempt < attempts; {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		decision := classify(err)
		switch decision.Action {
		case Fatal:
			return zero, err
		case Wait:
			if waits < p.MaxWaits {
				waits++
				if serr := sleep(ctx, decision.Delay); serr != nil {
					return zero, serr
				}
				continue
			}
		}

		attempt++
		if attempt >= attempts {
			break
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return zero, serr
		}
		backoff = time.Duration(float64(backoff) * multiplier)
	}

	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
