package loopkit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOptions configures RunThreadedWithRetry's exponential backoff,
// generalizing the console service's dispatch retry loop (initial interval
// grows exponentially to a capped max, resets to zero after a success).
type RetryOptions struct {
	// InitialInterval is the delay before the first retry. Zero selects
	// backoff's own default (500ms).
	InitialInterval time.Duration
	// MaxInterval caps how large the backoff can grow. Zero selects
	// backoff's own default (60s).
	MaxInterval time.Duration
	// MaxRetries bounds the number of retries after the first attempt.
	// Zero means unlimited (bounded only by ctx).
	MaxRetries int
	// ShouldRetry decides whether a failed attempt is retried. Nil retries
	// every non-nil error.
	ShouldRetry func(error) bool
}

func (o RetryOptions) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval > 0 {
		b.MaxInterval = o.MaxInterval
	}
	return b
}

// RunThreadedWithRetry is RunThreaded with retry: fn is resubmitted to pool on
// failure, waiting out an exponentially growing backoff between attempts,
// until it succeeds, ctx is done, or MaxRetries is exhausted. The returned
// Promise[R] settles on the main loop exactly once, same as RunThreaded.
func RunThreadedWithRetry[R any](ctx context.Context, rt *Runtime, pool *NamedWorkerPool, fn any, opts RetryOptions) (*Promise[R], error) {
	adapted, err := newThreadedFunc[R](fn)
	if err != nil {
		return nil, err
	}
	return runRetried(ctx, rt, pool, 0, adapted, opts), nil
}

// runRetried resubmits an already-adapted threadedFunc to pool at priority on
// failure, honoring opts' backoff/retry limit/predicate, shared by
// RunThreadedWithRetry and RunInThread's WithThreadRetry option.
func runRetried[R any](ctx context.Context, rt *Runtime, pool *NamedWorkerPool, priority int, adapted threadedFunc[R], opts RetryOptions) *Promise[R] {
	out := NewPromise[R]()
	b := opts.newBackOff()

	var attempt func()
	attempts := 0
	attempt = func() {
		pool.SubmitPriority(func(jobCtx context.Context) {
			result, runErr := adapted.runThreaded(jobCtx)
			if runErr == nil {
				rt.postVoid(func() { _ = out.Finish(result) })
				return
			}

			attempts++
			retryable := opts.ShouldRetry == nil || opts.ShouldRetry(runErr)
			exhausted := opts.MaxRetries > 0 && attempts > opts.MaxRetries
			if !retryable || exhausted || ctx.Err() != nil {
				rt.postVoid(func() { _ = out.Fail(runErr) })
				return
			}

			wait := b.NextBackOff()
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				attempt()
			case <-ctx.Done():
				timer.Stop()
				rt.postVoid(func() { _ = out.Fail(ctx.Err()) })
			}
		}, priority)
	}
	attempt()

	return out
}
