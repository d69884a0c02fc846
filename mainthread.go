package loopkit

import (
	"context"
	"errors"
	"fmt"
)

// threadConfig collects RunInThread's dispatch options, generalizing the
// arguments original_source/src/thread.py's threaded decorator takes
// (name, priority, async, progress).
type threadConfig struct {
	mainThread bool
	pool       *NamedWorkerPool
	priority   int
	async      bool
	progress   bool
	retry      *RetryOptions
}

func defaultThreadConfig() threadConfig {
	return threadConfig{async: true}
}

// ThreadOption configures RunInThread.
type ThreadOption func(*threadConfig)

// WithMainThread dispatches fn to run on rt's installed main-loop goroutine
// instead of a worker pool, mirroring threaded(name=MAINTHREAD). Combined
// with WithSync, a call already running on the main goroutine takes the
// inline fast path and never touches the queue at all.
func WithMainThread() ThreadOption {
	return func(c *threadConfig) { c.mainThread = true }
}

// WithPool dispatches fn onto pool at priority instead of the main thread,
// mirroring threaded(name=<pool name>, priority=...).
func WithPool(pool *NamedWorkerPool, priority int) ThreadOption {
	return func(c *threadConfig) {
		c.pool = pool
		c.priority = priority
	}
}

// WithSync blocks the calling goroutine until fn completes and is reflected
// in the returned, already-terminal Promise, mirroring async=False. Only the
// caller's goroutine blocks — the main loop keeps running.
func WithSync() ThreadOption {
	return func(c *threadConfig) { c.async = false }
}

// WithThreadProgress prepends a *Progress handle as fn's first argument and
// publishes it on the returned promise via Promise.WithProgress, mirroring
// the threaded decorator's progress=True argument.
func WithThreadProgress() ThreadOption {
	return func(c *threadConfig) { c.progress = true }
}

// WithThreadRetry retries fn's body per opts before settling the returned
// promise Failed — only meaningful combined with WithPool, since the
// MainThread and ad hoc dispatch paths run fn exactly once.
func WithThreadRetry(opts RetryOptions) ThreadOption {
	return func(c *threadConfig) { c.retry = &opts }
}

// progressResultError/progressResult/progressError adapt the three
// signatures RunInThread accepts when WithThreadProgress is set: the same
// shapes newThreadedFunc supports, each with a *Progress prepended.

type progressResultError[R any] struct {
	p  *Progress
	fn func(*Progress, context.Context) (R, error)
}

func (t *progressResultError[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	return t.fn(t.p, ctx)
}

type progressResult[R any] struct {
	p  *Progress
	fn func(*Progress, context.Context) R
}

func (t *progressResult[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	return t.fn(t.p, ctx), nil
}

type progressError[R any] struct {
	p  *Progress
	fn func(*Progress, context.Context) error
}

func (t *progressError[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	err = t.fn(t.p, ctx)
	return
}

func newProgressThreadedFunc[R any](fn any, p *Progress) (threadedFunc[R], error) {
	switch typed := fn.(type) {
	case func(*Progress, context.Context) (R, error):
		return &progressResultError[R]{p: p, fn: typed}, nil
	case func(*Progress, context.Context) R:
		return &progressResult[R]{p: p, fn: typed}, nil
	case func(*Progress, context.Context) error:
		return &progressError[R]{p: p, fn: typed}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported progress-threaded function signature %T", ErrInvalidTarget, fn)
	}
}

// RunInThread dispatches fn per opts and always returns a Promise[R],
// possibly already terminal. Dispatch rules, in order:
//
//  1. WithMainThread + WithSync, called from rt's main goroutine: fn runs
//     inline, synchronously, in the caller's frame — the fast path
//     original_source/src/thread.py's threaded(name=MAINTHREAD) takes when
//     async=False and is_mainthread() is already true.
//  2. WithMainThread alone (or WithSync from off the main goroutine): fn is
//     posted to the main loop and settles there.
//  3. WithPool(pool, priority): fn is submitted to pool at priority, with
//     WithThreadRetry layered in if set.
//  4. Neither WithMainThread nor WithPool: fn runs on its own ad hoc
//     goroutine, mirroring threaded(name=None)'s unnamed ThreadCallback.
//
// WithSync blocks the calling goroutine on the dispatched promise and
// returns it already terminal, without blocking the main loop itself. Called
// from the main-loop goroutine outside rule 1, WithSync cannot wait: the
// still-pending promise is returned together with ErrDeadlock.
func RunInThread[R any](rt *Runtime, fn any, opts ...ThreadOption) (*Promise[R], error) {
	cfg := defaultThreadConfig()
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	out := NewPromise[R]()
	var progress *Progress
	if cfg.progress {
		progress = out.WithProgress()
	}

	adapt := func() (threadedFunc[R], error) {
		if cfg.progress {
			return newProgressThreadedFunc[R](fn, progress)
		}
		return newThreadedFunc[R](fn)
	}

	settle := func(result R, runErr error) {
		if runErr != nil {
			_ = out.Fail(runErr)
		} else {
			_ = out.Finish(result)
		}
	}

	switch {
	case cfg.mainThread && !cfg.async && rt.IsMainThread():
		adapted, err := adapt()
		if err != nil {
			return nil, err
		}
		result, runErr := adapted.runThreaded(context.Background())
		settle(result, runErr)
		return out, nil

	case cfg.mainThread:
		adapted, err := adapt()
		if err != nil {
			return nil, err
		}
		rt.postVoid(func() {
			result, runErr := adapted.runThreaded(context.Background())
			settle(result, runErr)
		})

	case cfg.pool != nil:
		adapted, err := adapt()
		if err != nil {
			return nil, err
		}
		if cfg.retry != nil {
			retried := runRetried(context.Background(), rt, cfg.pool, cfg.priority, adapted, *cfg.retry)
			retried.ObserveBoth(
				func(v R) { _ = out.Finish(v) },
				func(err error) { _ = out.Fail(err) },
			)
		} else {
			cfg.pool.SubmitPriority(func(ctx context.Context) {
				result, runErr := adapted.runThreaded(ctx)
				if errors.Is(runErr, ErrHostFatal) {
					rt.ReportFatal(runErr)
				}
				rt.postVoid(func() { settle(result, runErr) })
			}, cfg.priority)
		}

	default:
		adapted, err := adapt()
		if err != nil {
			return nil, err
		}
		go func() {
			result, runErr := adapted.runThreaded(context.Background())
			rt.postVoid(func() { settle(result, runErr) })
		}()
	}

	if !cfg.async {
		// Block the caller until out settles; by the time Wait returns, out
		// is already terminal, so it can be returned directly.
		if _, err := out.Wait(context.Background()); errors.Is(err, ErrDeadlock) {
			return out, err
		}
	}
	return out, nil
}
