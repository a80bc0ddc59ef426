// Package resilience provides executors that run an operation under a retry or
// circuit breaking policy. The bus Policy middlewares delegate to them.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v3"
)

// Executor runs fn under a policy
type Executor interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
}

// Func adapts a function to an Executor
type Func func(ctx context.Context, fn func(context.Context) error) error

func (f Func) Execute(ctx context.Context, fn func(context.Context) error) error {
	return f(ctx, fn)
}

// Chain composes executors, the first one outermost
func Chain(executors ...Executor) Executor {
	return Func(func(ctx context.Context, fn func(context.Context) error) error {
		run := fn
		for i := len(executors) - 1; i >= 0; i-- {
			e, next := executors[i], run
			run = func(ctx context.Context) error {
				return e.Execute(ctx, next)
			}
		}
		return run(ctx)
	})
}

// Backoff retries an operation following a backoff policy. A fresh policy is built
// for every execution, as backoff policies carry state.
type Backoff struct {
	policy func() backoff.BackOff
	notify backoff.Notify
}

// NewBackoff retries with the policies built by policy
func NewBackoff(policy func() backoff.BackOff) *Backoff {
	return &Backoff{policy: policy}
}

// Retries retries up to n times, waiting interval between attempts
func Retries(n int, interval time.Duration) *Backoff {
	return NewBackoff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(n))
	})
}

// Exponential retries up to n times with exponentially growing, jittered waits
func Exponential(n int, initial time.Duration) *Backoff {
	return NewBackoff(func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxElapsedTime = 0
		return backoff.WithMaxRetries(b, uint64(n))
	})
}

// OnRetry registers fn to be called with each failure that is retried, and the
// wait before the next attempt
func (b *Backoff) OnRetry(fn func(err error, wait time.Duration)) *Backoff {
	b.notify = fn
	return b
}

func (b *Backoff) Execute(ctx context.Context, fn func(context.Context) error) error {
	policy := backoff.WithContext(b.policy(), ctx)
	return backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, b.notify)
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}
