package loopkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMainLoopTimer_FiresOnMainLoop(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go rt.Run(ctx)

	fired := make(chan struct{})
	tm := newMainLoopTimer(rt, func() bool {
		close(fired)
		return false
	})
	tm.Start(5 * time.Millisecond)
	require.True(t, tm.IsActive())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(10 * time.Millisecond) // let postVoid callback clear active
	require.False(t, tm.IsActive())
}

func TestMainLoopTimer_Reschedules(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go rt.Run(ctx)

	fires := make(chan struct{}, 3)
	count := 0
	tm := newMainLoopTimer(rt, func() bool {
		count++
		fires <- struct{}{}
		return count < 3
	})
	tm.Start(2 * time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case <-fires:
		case <-time.After(time.Second):
			t.Fatal("timer stopped rescheduling early")
		}
	}
	time.Sleep(10 * time.Millisecond)
	require.False(t, tm.IsActive())
}

func TestMainLoopTimer_StopPreventsFire(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go rt.Run(ctx)

	fired := false
	tm := newMainLoopTimer(rt, func() bool {
		fired = true
		return false
	})
	tm.Start(20 * time.Millisecond)
	tm.Stop()
	require.False(t, tm.IsActive())

	time.Sleep(40 * time.Millisecond)
	require.False(t, fired)
}

func TestMainLoopTimer_RestartReplacesPending(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go rt.Run(ctx)

	calls := 0
	tm := newMainLoopTimer(rt, func() bool {
		calls++
		return false
	})
	tm.Start(50 * time.Millisecond)
	tm.Start(5 * time.Millisecond) // supersedes the first schedule

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, calls)
}
