package loopkit

import (
	"context"
	"errors"
	"sync"
)

// MapThreaded fans items out across pool's worker goroutines and collects
// one result per item, preserving input order in the output slice —
// generalizing ygrebnov/workers' Map (map.go), which fanned items out
// across a Workers[R] pool and honored a WithPreserveOrder option; here
// input order is always preserved, since results are written directly into
// a pre-sized slice by index rather than replayed through a reorderer.
//
// If stopOnError is true, a context derived from ctx is cancelled on the
// first error and fn should observe it to abandon in-flight work early;
// every per-item error is still collected and returned joined.
func MapThreaded[T, R any](
	ctx context.Context,
	pool *NamedWorkerPool,
	items []T,
	fn func(context.Context, T) (R, error),
	stopOnError bool,
) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(items))
	for i := range items {
		i, item := i, items[i]
		pool.submit(func(workerCtx context.Context) {
			defer wg.Done()
			if cctx.Err() != nil {
				errs[i] = cctx.Err()
				return
			}
			r, err := fn(cctx, item)
			results[i] = r
			if err != nil {
				errs[i] = err
				if stopOnError {
					cancel()
				}
			}
		})
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

// ForEachThreaded is MapThreaded without a collected result, generalizing
// ygrebnov/workers' ForEach (foreach.go).
func ForEachThreaded[T any](
	ctx context.Context,
	pool *NamedWorkerPool,
	items []T,
	fn func(context.Context, T) error,
	stopOnError bool,
) error {
	_, err := MapThreaded(ctx, pool, items, func(c context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(c, item)
	}, stopOnError)
	return err
}
