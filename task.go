package loopkit

import (
	"time"

	"github.com/google/uuid"
)

// Task is a resumable step function running under a Runtime (source term:
// coroutine). Embedding *Promise[T] means a Task is itself
// awaitable and satisfies awaitable, so one task can directly await another.
type Task[T any] struct {
	*Promise[T]
	rt     *Runtime
	driver *driver[T]
	liveID uint64

	// ID uniquely identifies the task for diagnostics and error correlation
	// (ExtractTaskID); generated with google/uuid at construction.
	ID string
}

type taskConfig struct {
	policy   PolicyOptions
	interval time.Duration
}

// TaskOption configures SpawnTask.
type TaskOption func(*taskConfig)

// WithPolicy attaches coordination to the spawned task ("policy-keyed task
// coordination", grounded on original_source/src/
// coroutine.py's POLICY_* constants).
func WithPolicy(p PolicyOptions) TaskOption {
	return func(c *taskConfig) { c.policy = p }
}

// WithInterval sets the delay the task's driver waits before re-entering the
// step function after it yields ContinueNow (the coroutine decorator's
// interval argument). d <= 0 falls back to the Runtime's DefaultInterval.
func WithInterval(d time.Duration) TaskOption {
	return func(c *taskConfig) { c.interval = d }
}

// SpawnTask constructs and eagerly advances a Task running step: construction
// always advances eagerly. Must be called from rt's main
// loop goroutine — before Run starts, or from within a callback already
// executing on it.
func SpawnTask[T any](rt *Runtime, step StepFunc[T], opts ...TaskOption) *Task[T] {
	cfg := taskConfig{}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	if cfg.policy.Policy != PolicyNone && cfg.policy.Key != nil {
		entry := rt.policies.entryFor(policyEntryKey{cfg.policy.Policy, cfg.policy.Key})
		switch cfg.policy.Policy {
		case PolicySingleton:
			if existing := entry.getSingleton(); existing != nil {
				if t, ok := existing.(*Task[T]); ok {
					return t
				}
			}
			t := newBareTask(rt, step, cfg.policy.Key, cfg.interval)
			entry.setSingleton(t)
			t.ObserveBoth(
				func(T) { entry.clearSingleton() },
				func(error) { entry.clearSingleton() },
			)
			t.start()
			return t
		case PolicySynchronized:
			t := newBareTask(rt, step, cfg.policy.Key, cfg.interval)
			t.ObserveBoth(
				func(T) { entry.release() },
				func(error) { entry.release() },
			)
			entry.acquire(func() { t.start() })
			return t
		case PolicyPassLast:
			// Every invocation starts immediately and is entered every time
			// (unlike PolicySynchronized), receiving the most recently
			// spawned still-live task for this key as Injection.Last —
			// original_source/src/coroutine.py's POLICY_PASS_LAST still
			// calls the decorated function right away, just threading the
			// previous CoroutineInProgress in as the 'last' kwarg.
			last := entry.lastLive()
			t := newBareTask(rt, withLast(step, last), cfg.policy.Key, cfg.interval)
			entry.setLastLive(t)
			t.ObserveBoth(
				func(T) { entry.clearLastLiveIfCurrent(t) },
				func(error) { entry.clearLastLiveIfCurrent(t) },
			)
			t.start()
			return t
		}
	}

	t := newBareTask(rt, step, nil, cfg.interval)
	t.start()
	return t
}

// withLast wraps step so every Injection it receives carries last as
// Injection.Last, mirroring how the source binds the 'last' kwarg once per
// invocation and keeps it available for the whole lifetime of the call.
func withLast[T any](step StepFunc[T], last any) StepFunc[T] {
	return func(in Injection) Directive[T] {
		in.Last = last
		return step(in)
	}
}

// policyEntryKey scopes a coordination key by policy kind, so the same Key
// value used under two different policies does not collide.
type policyEntryKey struct {
	policy Policy
	key    any
}

func newBareTask[T any](rt *Runtime, step StepFunc[T], policyKey any, interval time.Duration) *Task[T] {
	if interval <= 0 {
		interval = rt.opts.DefaultInterval
	}
	p := NewPromise[T]()
	id := uuid.NewString()
	t := &Task[T]{Promise: p, rt: rt, ID: id}
	t.driver = newDriver(rt, step, p, interval)
	t.driver.tagErr = func(err error) error { return taggedError(err, id, policyKey) }
	t.liveID = rt.live.add(t)
	p.ObserveBoth(
		func(T) { rt.live.remove(t.liveID) },
		func(error) { rt.live.remove(t.liveID) },
	)
	return t
}

func (t *Task[T]) start() { t.driver.start() }

// Interval returns the delay the task's driver waits before re-entering the
// step function after a ContinueNow directive.
func (t *Task[T]) Interval() time.Duration {
	t.driver.mu.Lock()
	defer t.driver.mu.Unlock()
	return t.driver.interval
}

// SetInterval changes the delay used for future ContinueNow resumptions.
// Takes effect starting with the next scheduled resumption.
func (t *Task[T]) SetInterval(d time.Duration) {
	t.driver.mu.Lock()
	t.driver.interval = d
	t.driver.mu.Unlock()
}

// Cancel tears the task down via the driver's close path, throwing
// ErrCancelled into the step function so it can run cleanup. A no-op once
// the task is already terminal.
func (t *Task[T]) Cancel() error {
	if t.IsFinished() {
		return nil
	}
	return t.driver.close(ErrCancelled)
}

// IntervalHandle is returned by SetInterval and controls a recurring,
// main-loop-serialized callback that is not itself a step function
// ("SetInterval", grounded on original_source/src/notifier/
// yieldfunc.py's repeated-yield pattern generalized to a plain callback).
type IntervalHandle struct {
	timer *mainLoopTimer
}

// SetInterval schedules cb to run on rt's main loop every d, starting after
// the first d elapses. cb returning false stops the interval; returning
// true reschedules it for another d.
func SetInterval(rt *Runtime, d time.Duration, cb func() bool) *IntervalHandle {
	h := &IntervalHandle{timer: newMainLoopTimer(rt, cb)}
	h.timer.Start(d)
	return h
}

// Stop cancels the interval; its callback will not fire again.
func (h *IntervalHandle) Stop() { h.timer.Stop() }

// IsActive reports whether another callback invocation is still scheduled.
func (h *IntervalHandle) IsActive() bool { return h.timer.IsActive() }
