package loopkit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime()
	require.NoError(t, err)
	rt.InstallMainThread()
	return rt
}

func TestDriver_ContinueNowReentersThroughTimerNotInline(t *testing.T) {
	rt := newTestRuntime(t)

	var calls int32
	step := func(in Injection) Directive[int] {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return ContinueNow[int]()
		}
		return Done[int](int(n))
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 5*time.Millisecond)
	d.start()

	// ContinueNow never loops inline — only the initial, synchronous advance
	// from start() has run so far.
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.False(t, result.IsFinished())

	ctx, cancel := context.WithCancel(context.Background())
	result.ObserveBoth(func(int) { cancel() }, func(error) { cancel() })

	done := make(chan struct{})
	go func() { rt.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not finish via timer-scheduled resumption")
	}

	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	v, err := result.Result()
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestDriver_AwaitResumesAfterDependencySettles(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[string]()

	fresh := true
	step := func(in Injection) Directive[int] {
		if fresh {
			fresh = false
			return AwaitDirective[int](dep)
		}
		require.Equal(t, "hello", in.Value)
		return Done[int](len(in.Value.(string)))
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 0)
	d.start()
	require.False(t, result.IsFinished())

	require.NoError(t, dep.Finish("hello"))
	rt.drainOnce()

	v, err := result.Result()
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestDriver_RaisedSettlesFailure(t *testing.T) {
	rt := newTestRuntime(t)
	boom := errors.New("boom")

	step := func(in Injection) Directive[int] {
		return Raised[int](boom)
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 0)
	d.start()

	_, err := result.Result()
	require.ErrorIs(t, err, boom)
}

func TestDriver_CloseInjectsErrorAndHonorsDone(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	step := func(in Injection) Directive[string] {
		if in.Fresh {
			return AwaitDirective[string](dep)
		}
		require.ErrorIs(t, in.Err, ErrCancelled)
		return Done[string]("cleaned up")
	}

	result := NewPromise[string]()
	d := newDriver(rt, step, result, 0)
	d.start()

	err := d.close(ErrCancelled)
	require.NoError(t, err)

	v, resErr := result.Result()
	require.NoError(t, resErr)
	require.Equal(t, "cleaned up", v)
	require.True(t, d.isClosed())
}

func TestDriver_CloseIgnoredWhenStepKeepsRunning(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	step := func(in Injection) Directive[string] {
		if in.Fresh {
			return AwaitDirective[string](dep)
		}
		// ignores the injected close reason, tries to keep going
		return ContinueNow[string]()
	}

	result := NewPromise[string]()
	d := newDriver(rt, step, result, 0)
	d.start()

	err := d.close(ErrCancelled)
	require.ErrorIs(t, err, ErrCloseIgnored)

	_, resErr := result.Result()
	require.ErrorIs(t, resErr, ErrCloseIgnored)
}

func TestDriver_AwaitOnGenuinelyPendingDependencyCrossesMainLoop(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	resumed := make(chan int64, 1)
	fresh := true
	step := func(in Injection) Directive[int] {
		if fresh {
			fresh = false
			return AwaitDirective[int](dep)
		}
		resumed <- 1
		return Done[int](in.Value.(int))
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 0)
	d.start()

	ctx, cancel := context.WithCancel(context.Background())
	result.ObserveBoth(
		func(int) { cancel() },
		func(error) { cancel() },
	)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = dep.Finish(99)
	}()

	done := make(chan struct{})
	go func() { rt.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop after result settled")
	}

	require.Len(t, resumed, 1)
	v, err := result.Result()
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

func TestDriver_AwaitOnAlreadyFinishedDependencyResumesInline(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()
	require.NoError(t, dep.Finish(42))

	step := func(in Injection) Directive[int] {
		if in.Fresh {
			return AwaitDirective[int](dep)
		}
		return Done[int](in.Value.(int))
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 0)
	d.start()

	// dep was already finished before the Await, so the driver must resolve
	// synchronously within start() — no postVoid hop, no drain required.
	require.True(t, result.IsFinished())
	v, err := result.Result()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestDriver_ChainedAlreadyFinishedAwaitsBatchWithoutMainLoopHops(t *testing.T) {
	rt := newTestRuntime(t)
	depA := NewPromise[int]()
	depB := NewPromise[int]()
	depC := NewPromise[int]()
	require.NoError(t, depA.Finish(1))
	require.NoError(t, depB.Finish(2))
	require.NoError(t, depC.Finish(3))

	stage := 0
	step := func(in Injection) Directive[int] {
		switch stage {
		case 0:
			stage++
			return AwaitDirective[int](depA)
		case 1:
			stage++
			require.Equal(t, 1, in.Value)
			return AwaitDirective[int](depB)
		case 2:
			stage++
			require.Equal(t, 2, in.Value)
			return AwaitDirective[int](depC)
		default:
			require.Equal(t, 3, in.Value)
			return Done[int](in.Value.(int))
		}
	}

	result := NewPromise[int]()
	d := newDriver(rt, step, result, 0)
	d.start()

	// all three dependencies were already finished: the whole chain resolves
	// in one synchronous advance call, with no drain in between.
	require.True(t, result.IsFinished())
	v, err := result.Result()
	require.NoError(t, err)
	require.Equal(t, 3, v)
}
