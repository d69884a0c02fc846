package loopkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ygrebnov/loopkit/metrics"
	"github.com/ygrebnov/loopkit/pool"
)

// jobScratch is a reusable scratch buffer for the structured-log fields a
// worker goroutine builds when a job panics. Checked out from a pool.Pool
// per job instead of allocated fresh, the same Get/Put-around-one-unit-of-
// work shape as ygrebnov/workers' dispatch() (workers.go), just recycling a
// log-field buffer instead of a *worker[R].
type jobScratch struct {
	fields []zap.Field
}

// job is one unit of work queued on a NamedWorkerPool.
type job struct {
	priority int
	seq      uint64 // insertion order, breaks priority ties FIFO
	run      func(ctx context.Context)
}

// NamedWorkerPool is a fixed set of worker goroutines draining a single
// priority-ordered job list, generalizing original_source/src/thread.py's
// _JobServer (a priority-sorted job list guarded by a Condition, shared by
// every NamedThreadCallback registered under the same name) to Go. The
// goroutines themselves are long-lived, unlike ygrebnov/workers' per-dispatch
// pool.Get/Put of *worker[R]; slots, below, reuses that same Get/Put shape
// for the one thing that is still allocated per job: the panic-log scratch
// buffer.
type NamedWorkerPool struct {
	name string

	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []job
	nextSeq  uint64
	stopping bool

	wg    sync.WaitGroup
	slots pool.Pool

	active  metrics.UpDownCounter
	pending metrics.UpDownCounter
	done    metrics.Counter
}

// NewNamedWorkerPool starts size worker goroutines pulling jobs from a
// shared priority queue. Higher priority values run first; equal priority
// runs FIFO. provider may be nil, in which case pool metrics are not
// recorded.
func NewNamedWorkerPool(name string, size int, provider metrics.Provider) *NamedWorkerPool {
	if size < 1 {
		size = 1
	}
	p := &NamedWorkerPool{name: name}
	p.cond = sync.NewCond(&p.mu)
	p.slots = pool.NewFixed(uint(size), func() interface{} {
		return &jobScratch{fields: make([]zap.Field, 0, 4)}
	})
	if provider != nil {
		attrs := metrics.WithAttributes(map[string]string{"pool": name})
		p.active = provider.UpDownCounter("loopkit.pool.active", attrs)
		p.pending = provider.UpDownCounter("loopkit.pool.pending", attrs)
		p.done = provider.Counter("loopkit.pool.completed", attrs)
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

// Named registers (or returns, if already registered) the pool under name
// on rt, so RunThreaded callers can address it without holding a direct
// reference.
func (rt *Runtime) Named(name string, size int) *NamedWorkerPool {
	rt.poolsMu.Lock()
	defer rt.poolsMu.Unlock()
	if p, ok := rt.pools[name]; ok {
		return p
	}
	p := NewNamedWorkerPool(name, size, rt.metrics)
	rt.pools[name] = p
	return p
}

// submit enqueues run at priority 0, waking exactly one idle worker.
func (p *NamedWorkerPool) submit(run func(ctx context.Context)) {
	p.submitPriority(run, 0)
}

// SubmitPriority enqueues run with an explicit priority — higher values are
// serviced first; equal priorities are serviced FIFO.
func (p *NamedWorkerPool) SubmitPriority(run func(ctx context.Context), priority int) {
	p.submitPriority(run, priority)
}

func (p *NamedWorkerPool) submitPriority(run func(ctx context.Context), priority int) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	p.nextSeq++
	p.jobs = append(p.jobs, job{priority: priority, seq: p.nextSeq, run: run})
	sort.SliceStable(p.jobs, func(i, j int) bool {
		if p.jobs[i].priority != p.jobs[j].priority {
			return p.jobs[i].priority > p.jobs[j].priority
		}
		return p.jobs[i].seq < p.jobs[j].seq
	})
	p.mu.Unlock()
	if p.pending != nil {
		p.pending.Add(1)
	}
	p.cond.Signal()
}

func (p *NamedWorkerPool) loop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.jobs) == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping && len(p.jobs) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.mu.Unlock()

		if p.pending != nil {
			p.pending.Add(-1)
		}
		if p.active != nil {
			p.active.Add(1)
		}
		scratch := p.slots.Get().(*jobScratch)
		func() {
			defer func() {
				if p.active != nil {
					p.active.Add(-1)
				}
				if p.done != nil {
					p.done.Add(1)
				}
				if r := recover(); r != nil {
					scratch.fields = append(scratch.fields[:0],
						anyField("pool", p.name), anyField("panic", r))
					diagnosticLogger().Error("named pool job panicked", scratch.fields...)
				}
				p.slots.Put(scratch)
			}()
			j.run(context.Background())
		}()
	}
}

// stop asks every worker goroutine to exit once the remaining queue drains,
// mirroring lifecycleCoordinator's "cancel, then let inflight work finish"
// ordering from ygrebnov/workers' shutdown sequence.
func (p *NamedWorkerPool) stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// join waits up to timeout for all worker goroutines to exit.
func (p *NamedWorkerPool) join(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Pending returns the number of jobs currently queued (not yet picked up by
// a worker).
func (p *NamedWorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}
