package loopkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnTask_RunsToCompletion(t *testing.T) {
	rt := newTestRuntime(t)

	task := SpawnTask[int](rt, func(in Injection) Directive[int] {
		return Done[int](7)
	})

	require.NotEmpty(t, task.ID)
	v, err := task.Result()
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 0, rt.live.len())
}

func TestSpawnTask_Cancel(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	cleanedUp := false
	task := SpawnTask[int](rt, func(in Injection) Directive[int] {
		if in.Fresh {
			return AwaitDirective[int](dep)
		}
		require.ErrorIs(t, in.Err, ErrCancelled)
		cleanedUp = true
		return Done[int](-1)
	})

	require.NoError(t, task.Cancel())
	require.True(t, cleanedUp)
	v, err := task.Result()
	require.NoError(t, err)
	require.Equal(t, -1, v)

	// cancelling again is a no-op
	require.NoError(t, task.Cancel())
}

func TestSpawnTask_SingletonPolicySharesInFlightTask(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	starts := 0
	step := func(in Injection) Directive[int] {
		if in.Fresh {
			starts++
			return AwaitDirective[int](dep)
		}
		return Done[int](in.Value.(int))
	}

	opts := WithPolicy(PolicyOptions{Policy: PolicySingleton, Key: "shared"})
	t1 := SpawnTask[int](rt, step, opts)
	t2 := SpawnTask[int](rt, step, opts)

	require.Same(t, t1, t2)
	require.Equal(t, 1, starts)

	require.NoError(t, dep.Finish(3))
	rt.drainOnce()
	v, err := t1.Result()
	require.NoError(t, err)
	require.Equal(t, 3, v)

	// once finished, a new spawn starts a fresh task
	dep2 := NewPromise[int]()
	step2 := func(in Injection) Directive[int] {
		if in.Fresh {
			starts++
			return AwaitDirective[int](dep2)
		}
		return Done[int](in.Value.(int))
	}
	t3 := SpawnTask[int](rt, step2, opts)
	require.NotSame(t, t1, t3)
}

func TestSpawnTask_SynchronizedPolicySerializesByKey(t *testing.T) {
	rt := newTestRuntime(t)

	var order []int
	dep1 := NewPromise[int]()
	dep2 := NewPromise[int]()

	mk := func(id int, dep *Promise[int]) StepFunc[int] {
		return func(in Injection) Directive[int] {
			if in.Fresh {
				order = append(order, id)
				return AwaitDirective[int](dep)
			}
			return Done[int](id)
		}
	}

	opts := WithPolicy(PolicyOptions{Policy: PolicySynchronized, Key: "group"})
	SpawnTask[int](rt, mk(1, dep1), opts)
	SpawnTask[int](rt, mk(2, dep2), opts)

	// task 2 must not have started yet: only task 1 is running
	require.Equal(t, []int{1}, order)

	require.NoError(t, dep1.Finish(1))
	rt.drainOnce()
	require.Equal(t, []int{1, 2}, order)

	require.NoError(t, dep2.Finish(2))
	rt.drainOnce()
}

func TestSpawnTask_PassLastPolicyStartsImmediatelyAndPassesPredecessor(t *testing.T) {
	rt := newTestRuntime(t)

	var lasts []any
	mk := func(id int) StepFunc[int] {
		return func(in Injection) Directive[int] {
			lasts = append(lasts, in.Last)
			return Done[int](id)
		}
	}

	opts := WithPolicy(PolicyOptions{Policy: PolicyPassLast, Key: "pl"})
	t1 := SpawnTask[int](rt, mk(1), opts)

	// t1 is the very first invocation: no predecessor yet.
	require.Nil(t, lasts[0])
	v1, err := t1.Result()
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	// t1 finished synchronously above and already cleared itself, so t2 also
	// sees no live predecessor.
	t2 := SpawnTask[int](rt, mk(2), opts)
	require.Nil(t, lasts[1])
	v2, err := t2.Result()
	require.NoError(t, err)
	require.Equal(t, 2, v2)
}

func TestSpawnTask_PassLastPolicyPassesStillLivePredecessor(t *testing.T) {
	rt := newTestRuntime(t)
	dep := NewPromise[int]()

	var secondStarted bool
	var secondSawLast any

	first := func(in Injection) Directive[int] {
		if in.Fresh {
			return AwaitDirective[int](dep)
		}
		return Done[int](in.Value.(int))
	}

	opts := WithPolicy(PolicyOptions{Policy: PolicyPassLast, Key: "chain"})
	t1 := SpawnTask[int](rt, first, opts)
	require.False(t, t1.IsFinished())

	second := func(in Injection) Directive[int] {
		secondStarted = true
		secondSawLast = in.Last
		return Done[int](2)
	}
	// t1 is still pending (awaiting dep): a second invocation under the same
	// key must start immediately anyway, receiving t1 as its predecessor.
	t2 := SpawnTask[int](rt, second, opts)

	require.True(t, secondStarted)
	require.Same(t, t1, secondSawLast)
	v2, err := t2.Result()
	require.NoError(t, err)
	require.Equal(t, 2, v2)

	require.NoError(t, dep.Finish(1))
	rt.drainOnce()
	v1, err := t1.Result()
	require.NoError(t, err)
	require.Equal(t, 1, v1)
}

func TestSetInterval_RepeatsUntilFalse(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	done := make(chan struct{})
	h := SetInterval(rt, time.Millisecond, func() bool {
		calls++
		if calls >= 3 {
			close(done)
			return false
		}
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go rt.Run(ctx)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("interval did not fire enough times")
	}
	require.False(t, h.IsActive())
	require.GreaterOrEqual(t, calls, 3)
}
