package loopkit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ygrebnov/loopkit/internal/goid"
	"github.com/ygrebnov/loopkit/metrics"
	"github.com/ygrebnov/loopkit/pool"
)

// drainScratch is a reusable scratch buffer for drainOnce's panic-log fields.
// Unlike NamedWorkerPool's fixed slot pool (bounded by a known worker count),
// any number of Runtimes may be draining concurrently in the same process,
// so this is backed by pool.NewDynamic (sync.Pool) instead of pool.NewFixed.
type drainScratch struct {
	fields []zap.Field
}

var drainScratchPool = pool.NewDynamic(func() interface{} {
	return &drainScratch{fields: make([]zap.Field, 0, 2)}
})

// queueEntry is a unit of main-thread work.
// Unlike the source's (callable, args, promise) tuple, run already closes
// over its own callable, arguments, and promise settlement — Go has no
// variadic-args tuple as convenient as Python's, so the closure plays that
// role.
type queueEntry struct {
	run func()
}

// Runtime is the process-wide main-loop coordinator: it owns the C5
// wake-queue bridge, the C4 LIVE task registry, and the named worker pools
// (C6). There is normally exactly one Runtime per process, installed via
// InstallMainThread, mirroring the source's single _thread_notifier_pipe /
// _active_coroutines / _threads globals — kept here as fields on one struct
// instead of package globals so tests can run multiple independent runtimes.
type Runtime struct {
	opts runtimeOptions

	mu    sync.Mutex
	queue []queueEntry
	wake  chan struct{}

	installed     bool
	mainGoroutine int64

	live     liveRegistry
	policies *policyRegistry

	poolsMu sync.Mutex
	pools   map[string]*NamedWorkerPool

	metrics metrics.Provider
	logger  Logger

	fatalMu       sync.Mutex
	fatalOnce     sync.Once
	fatalErr      error
	fatalObserved []func(error)
	fatalCancel   context.CancelFunc
}

// NewRuntime constructs a Runtime. It does not install itself as the main
// thread — call InstallMainThread (typically followed by Run) from the
// goroutine that will own the loop.
func NewRuntime(opts ...Option) (*Runtime, error) {
	o := defaultRuntimeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := validateRuntimeOptions(&o); err != nil {
		return nil, err
	}

	rt := &Runtime{
		opts:          o,
		queue:         make([]queueEntry, 0, o.WakeQueueBuffer),
		wake:          make(chan struct{}, 1),
		mainGoroutine: -1,
		pools:         make(map[string]*NamedWorkerPool),
		metrics:       o.Metrics,
		logger:        o.Logger,
	}
	rt.live.init()
	rt.policies = newPolicyRegistry()
	setDiagnosticLogger(o.Logger)
	return rt, nil
}

// InstallMainThread marks the calling goroutine as the main loop
// (source term: install_main_thread). It lazily creates the wake queue
// (already created by NewRuntime here, since Go has no equivalent to a
// reused process-wide pipe that predates the Runtime object).
func (rt *Runtime) InstallMainThread() {
	rt.mu.Lock()
	rt.installed = true
	rt.mainGoroutine = goid.Current()
	rt.mu.Unlock()
	setMainGoroutine(rt.mainGoroutine)
}

// IsMainThread reports whether the calling goroutine is this Runtime's
// installed main loop goroutine.
func (rt *Runtime) IsMainThread() bool {
	rt.mu.Lock()
	id := rt.mainGoroutine
	rt.mu.Unlock()
	return id != -1 && id == goid.Current()
}

// enqueue appends entry to the queue and kicks the wake channel exactly when
// the queue transitions from empty to non-empty — the "write one byte to
// the pipe" step of the wake mechanism below.
func (rt *Runtime) enqueue(entry queueEntry) {
	rt.mu.Lock()
	wasEmpty := len(rt.queue) == 0
	rt.queue = append(rt.queue, entry)
	rt.mu.Unlock()

	if wasEmpty {
		select {
		case rt.wake <- struct{}{}:
		default:
		}
	}
}

// postVoid enqueues fn with no promise attached; used internally by timers.
func (rt *Runtime) postVoid(fn func()) {
	rt.enqueue(queueEntry{run: fn})
}

// Post enqueues fn for execution on the main loop and returns a promise
// settled with its result. If the calling goroutine is already the main
// loop, RunInThread's WithMainThread+WithSync inline fast path applies
// instead — Post always goes through the queue, matching the "otherwise"
// branch of that contract.
func Post[T any](rt *Runtime, fn func() (T, error)) *Promise[T] {
	p := NewPromise[T]()
	rt.enqueue(queueEntry{run: func() {
		v, err := callRecovering(fn)
		if err != nil {
			_ = p.Fail(err)
		} else {
			_ = p.Finish(v)
		}
	}})
	return p
}

func callRecovering[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHostFatal, r)
		}
	}()
	return fn()
}

// Run drains the wake queue until ctx is done. Each wake drains the entire
// queue visible at that moment as one atomic batch (taken under the lock,
// then executed lock-free) so that a callback which itself calls Post does
// not deadlock re-acquiring the same mutex — a correctness fix over a literal
// "hold the lock across the whole drain loop" reading of the source, which
// would self-deadlock in Go since sync.Mutex is not re-entrant. FIFO order
// within a batch, and across batches, is preserved either way.
func (rt *Runtime) Run(ctx context.Context) {
	rt.InstallMainThread()
	defer func() {
		rt.mu.Lock()
		rt.mainGoroutine = -1
		rt.mu.Unlock()
		setMainGoroutine(-1)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rt.wake:
			rt.drainOnce()
		}
	}
}

func (rt *Runtime) drainOnce() {
	rt.mu.Lock()
	batch := rt.queue
	rt.queue = make([]queueEntry, 0, cap(batch))
	rt.mu.Unlock()

	for _, e := range batch {
		func() {
			scratch := drainScratchPool.Get().(*drainScratch)
			defer func() {
				if r := recover(); r != nil {
					scratch.fields = append(scratch.fields[:0], anyField("panic", r))
					rt.logger.Error("main loop callback panicked", scratch.fields...)
				}
				drainScratchPool.Put(scratch)
			}()
			e.run()
		}()
	}
}

// Recreate rebuilds the wake channel, simulating the fork-without-exec pipe
// rebuild in original_source/src/thread.py's create_thread_notifier_pipe. If
// purge is true the pending queue is cleared first; otherwise any entries
// still queued trigger an immediate kick of the new channel.
func (rt *Runtime) Recreate(purge bool) {
	rt.mu.Lock()
	if purge {
		rt.queue = rt.queue[:0]
	}
	pending := len(rt.queue) > 0
	rt.wake = make(chan struct{}, 1)
	rt.mu.Unlock()

	if pending {
		select {
		case rt.wake <- struct{}{}:
		default:
		}
	}
}

// OnFatal registers cb to run when ReportFatal is first called, generalizing
// ygrebnov/workers' errorForwarder (error_forwarder.go): the first fatal
// error observed wins, subsequent ones are dropped, and every registered
// observer is notified exactly once. Returns a disposer.
func (rt *Runtime) OnFatal(cb func(error)) (dispose func()) {
	rt.fatalMu.Lock()
	rt.fatalObserved = append(rt.fatalObserved, cb)
	idx := len(rt.fatalObserved) - 1
	rt.fatalMu.Unlock()
	return func() {
		rt.fatalMu.Lock()
		defer rt.fatalMu.Unlock()
		if idx < len(rt.fatalObserved) {
			rt.fatalObserved[idx] = nil
		}
	}
}

// ReportFatal records err as the runtime's terminal fatal error (typically
// wrapping ErrHostFatal), notifying OnFatal observers and, if RunUntilFatal
// installed a cancel func, stopping Run. Only the first call has any effect.
func (rt *Runtime) ReportFatal(err error) {
	rt.fatalOnce.Do(func() {
		rt.fatalMu.Lock()
		rt.fatalErr = err
		observers := append([]func(error){}, rt.fatalObserved...)
		cancel := rt.fatalCancel
		rt.fatalMu.Unlock()

		for _, o := range observers {
			if o != nil {
				safeInvokeError(o, err)
			}
		}
		if cancel != nil {
			cancel()
		}
	})
}

// FatalErr returns the error recorded by the first ReportFatal call, or nil.
func (rt *Runtime) FatalErr() error {
	rt.fatalMu.Lock()
	defer rt.fatalMu.Unlock()
	return rt.fatalErr
}

// RunUntilFatal behaves like Run, but also returns early if ReportFatal is
// called, returning the fatal error.
func (rt *Runtime) RunUntilFatal(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.fatalMu.Lock()
	rt.fatalCancel = cancel
	rt.fatalMu.Unlock()

	rt.Run(cctx)
	return rt.FatalErr()
}

// Shutdown stops all named worker pools and joins them, then releases the
// task engine's LIVE registry ("shutdown()"), generalizing
// ygrebnov/workers' lifecycleCoordinator sequencing (cancel -> wait inflight
// -> close -> wait forwarders -> drain -> close channels) to this runtime's
// shape.
func (rt *Runtime) Shutdown() {
	rt.poolsMu.Lock()
	pools := make([]*NamedWorkerPool, 0, len(rt.pools))
	for _, p := range rt.pools {
		pools = append(pools, p)
	}
	rt.poolsMu.Unlock()

	for _, p := range pools {
		p.stop()
	}
	for _, p := range pools {
		p.join(rt.opts.NamedPoolShutdownTimeout)
	}

	rt.live.clear()
}
