package loopkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNamedWorkerPool_RunsSubmittedJobs(t *testing.T) {
	p := NewNamedWorkerPool("p1", 2, nil)
	defer p.stop()

	done := make(chan struct{})
	p.submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestNamedWorkerPool_HigherPriorityRunsFirst(t *testing.T) {
	p := NewNamedWorkerPool("p2", 1, nil) // single worker, deterministic order
	defer p.stop()

	block := make(chan struct{})
	started := make(chan struct{})
	p.submit(func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started // the single worker is now busy, subsequent jobs queue

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(2)
	p.SubmitPriority(func(ctx context.Context) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		wg.Done()
	}, 1)
	p.SubmitPriority(func(ctx context.Context) {
		mu.Lock()
		order = append(order, 5)
		mu.Unlock()
		wg.Done()
	}, 5)

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{5, 1}, order)
}

func TestNamedWorkerPool_PanicIsRecoveredAndPoolKeepsRunning(t *testing.T) {
	p := NewNamedWorkerPool("p3", 1, nil)
	defer p.stop()

	p.submit(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	p.submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not recover from panicking job")
	}
}

func TestNamedWorkerPool_StopDropsFutureSubmits(t *testing.T) {
	p := NewNamedWorkerPool("p4", 1, nil)
	p.stop()
	require.True(t, p.join(time.Second))

	ran := false
	p.submit(func(ctx context.Context) { ran = true })
	time.Sleep(10 * time.Millisecond)
	require.False(t, ran)
	require.Equal(t, 0, p.Pending())
}

func TestRuntime_Named_ReturnsSameInstance(t *testing.T) {
	rt := newTestRuntime(t)
	p1 := rt.Named("shared", 1)
	p2 := rt.Named("shared", 4) // size ignored on second call
	require.Same(t, p1, p2)
	p1.stop()
}
