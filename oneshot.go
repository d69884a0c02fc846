package loopkit

import (
	"context"
	"errors"
	"fmt"
)

// threadedFunc is the set of signatures RunThreaded accepts for a one-shot
// worker thread call, generalizing ygrebnov/workers' newTask adapter
// (task.go) from a bulk-dispatch worker pool input to a single ad hoc call
// spawned onto a NamedWorkerPool.
type threadedFunc[R any] interface {
	runThreaded(ctx context.Context) (R, error)
}

// newThreadedFunc adapts fn into a threadedFunc[R], accepting the same three
// shapes ygrebnov/workers' Workers pool accepted for task functions.
func newThreadedFunc[R any](fn any) (threadedFunc[R], error) {
	switch typed := fn.(type) {
	case func(context.Context) (R, error):
		return &threadedResultError[R]{fn: typed}, nil
	case func(context.Context) R:
		return &threadedResult[R]{fn: typed}, nil
	case func(context.Context) error:
		return &threadedError[R]{fn: typed}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported threaded function signature %T", ErrInvalidTarget, fn)
	}
}

type threadedResultError[R any] struct {
	fn func(ctx context.Context) (R, error)
}

func (t *threadedResultError[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	return t.fn(ctx)
}

type threadedResult[R any] struct {
	fn func(ctx context.Context) R
}

func (t *threadedResult[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	return t.fn(ctx), nil
}

type threadedError[R any] struct {
	fn func(ctx context.Context) error
}

func (t *threadedError[R]) runThreaded(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: threaded call panicked: %v", ErrHostFatal, r)
		}
	}()
	err = t.fn(ctx)
	return
}

// RunThreaded dispatches fn onto the named pool,
// returning a Promise[R] that settles on the main loop once fn completes —
// the result and any error cross back via rt.postVoid, so observers registered on
// the returned promise always run serialized with the rest of the task
// engine, never concurrently with it.
func RunThreaded[R any](rt *Runtime, pool *NamedWorkerPool, fn any) (*Promise[R], error) {
	adapted, err := newThreadedFunc[R](fn)
	if err != nil {
		return nil, err
	}

	out := NewPromise[R]()
	pool.submit(func(ctx context.Context) {
		result, runErr := adapted.runThreaded(ctx)
		if errors.Is(runErr, ErrHostFatal) {
			rt.ReportFatal(runErr)
		}
		rt.postVoid(func() {
			if runErr != nil {
				_ = out.Fail(runErr)
			} else {
				_ = out.Finish(result)
			}
		})
	})
	return out, nil
}
