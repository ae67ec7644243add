package gptbatch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Defaults for RetryPolicy.
const (
	DefaultInitialDelay = time.Second
	DefaultBase         = 2.0
	DefaultMaxRetries   = 10
)

// RetryPolicy describes how a single chat completion is retried on transient errors.
//
// The delay before retry n (counting from 1) is InitialDelay * Base^n. With
// Jitter set, each delay is multiplied by a fresh factor in [1, 2). Jitter is
// applied to the delay being slept only, never carried into the next one.
type RetryPolicy struct {
	InitialDelay time.Duration
	Base         float64
	Jitter       bool
	MaxRetries   int
	// MaxDelay caps a single delay. Zero leaves delays uncapped.
	MaxDelay time.Duration
	// OnRetry is called before sleeping ahead of retry number attempt.
	OnRetry func(err error, attempt int, delay time.Duration)

	timer backoff.Timer
	rand  func() float64
}

// DefaultRetryPolicy returns a jittered policy starting at one second, doubling, with ten retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: DefaultInitialDelay,
		Base:         DefaultBase,
		Jitter:       true,
		MaxRetries:   DefaultMaxRetries,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Base < 1 {
		p.Base = DefaultBase
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.rand == nil {
		p.rand = rand.Float64
	}
	return p
}

// exponentialJitter is a backoff.BackOff producing InitialDelay * Base^n * (1 + jitter*rand).
type exponentialJitter struct {
	policy  RetryPolicy
	current float64
}

func (e *exponentialJitter) Reset() {
	e.current = float64(e.policy.InitialDelay)
}

// maxDelay is the float form of the longest time.Duration. Converting
// anything at or above it to a Duration overflows.
const maxDelay = float64(math.MaxInt64)

func (e *exponentialJitter) NextBackOff() time.Duration {
	if e.current < maxDelay {
		e.current *= e.policy.Base
	}
	delay := e.current
	if e.policy.Jitter {
		delay *= 1 + e.policy.rand()
	}
	if e.policy.MaxDelay > 0 && delay > float64(e.policy.MaxDelay) {
		return e.policy.MaxDelay
	}
	if delay >= maxDelay {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// BackOff returns the policy as a backoff.BackOff limited to MaxRetries retries.
func (p RetryPolicy) BackOff() backoff.BackOff {
	p = p.withDefaults()
	b := &exponentialJitter{policy: p}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}

// Retry calls op until it succeeds, fails with an error IsRetryable rejects,
// or the retry budget runs out. It returns the value, the number of attempts
// made, and the final error. Running out of retries yields an error wrapping
// both ErrRetriesExhausted and the last transient error.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, int, error) {
	p = p.withDefaults()

	var result T
	attempts := 0

	//backoff.Retry contract only permits returning an error.
	operation := func() error {
		attempts++
		res, err := op(ctx)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, attempts, delay)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(p.BackOff(), ctx), notify, p.timer)
	if err != nil && IsRetryable(err) && ctx.Err() == nil {
		err = fmt.Errorf("%w (%d): %w", ErrRetriesExhausted, p.MaxRetries, err)
	}
	return result, attempts, err
}
