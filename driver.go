package loopkit

import (
	"sync"
	"time"
)

// DirectiveKind tags the four shapes a step function may yield back to its
// driver, generalizing the four outcomes a Python generator
// step of original_source/src/coroutine.py's CoroutineInProgress._step can
// produce: re-enter immediately, suspend on a dependency, return, or raise.
type DirectiveKind int

const (
	DirectiveContinueNow DirectiveKind = iota
	DirectiveAwait
	DirectiveDone
	DirectiveRaised
)

// awaitable is the type-erased half of Promise[T] a driver needs: register a
// callback pair and get a disposer back. Promise[T] implements it via
// observeAny below, letting a StepFunc[T] await a promise of any other type.
type awaitable interface {
	observeAny(onValue func(any), onError func(error)) (dispose func())

	// isFinishedAny reports whether the dependency has already left Pending,
	// letting a driver decide whether resuming on it needs a main-loop hop at
	// all (see advance's DirectiveAwait case).
	isFinishedAny() bool
}

func (p *Promise[T]) observeAny(onValue func(any), onError func(error)) (dispose func()) {
	return p.ObserveBoth(
		func(v T) {
			if onValue != nil {
				onValue(v)
			}
		},
		onError,
	)
}

func (p *Promise[T]) isFinishedAny() bool { return p.IsFinished() }

// Directive is the tagged union a StepFunc returns. Construct one with
// ContinueNow, Await, Done, or Raised — never build the struct literal
// directly, since the zero value of `await`/`value`/`err` must stay
// consistent with kind.
type Directive[T any] struct {
	kind  DirectiveKind
	await awaitable
	value T
	err   error
}

// ContinueNow asks the driver to re-invoke the step function on a later
// main-loop pass: the driver arms its timer for the task's interval and
// returns instead of re-entering inline — the generalization of a coroutine
// yielding nothing.
func ContinueNow[T any]() Directive[T] { return Directive[T]{kind: DirectiveContinueNow} }

// AwaitDirective suspends the step function until dep settles, at which
// point its resolved value or error is delivered via the next Injection.
func AwaitDirective[T any](dep awaitable) Directive[T] {
	return Directive[T]{kind: DirectiveAwait, await: dep}
}

// Done terminates the step function successfully with value.
func Done[T any](value T) Directive[T] { return Directive[T]{kind: DirectiveDone, value: value} }

// Raised terminates the step function with err.
func Raised[T any](err error) Directive[T] { return Directive[T]{kind: DirectiveRaised, err: err} }

// Injection is what a StepFunc receives on each call: nothing on the very
// first call (Fresh), the resolved value of whatever it last awaited, or an
// error — either the awaited dependency's failure, or a cancellation/timeout
// error thrown in from Close, mirroring CoroutineInProgress.throw().
//
// Last carries the most recently spawned, still-live task sharing this
// task's PolicyPassLast key, or nil if there is none — the 'last' kwarg
// original_source/src/coroutine.py's POLICY_PASS_LAST threads into every
// invocation of the decorated function. It is set on every call a
// PolicyPassLast task receives, not just the Fresh one, since the original
// kwarg is bound once per invocation and stays available for its whole
// lifetime.
type Injection struct {
	Fresh bool
	Value any
	Err   error
	Last  any
}

// StepFunc is one resumable step of a task body. It is invoked repeatedly by
// a driver until it returns Done or Raised.
type StepFunc[T any] func(in Injection) Directive[T]

// driver advances a StepFunc[T] against a Runtime, always re-entering the
// step function and settling the result on the main loop, regardless of
// which goroutine settled an awaited dependency — this is what gives tasks
// their "advances never run concurrently" invariant.
type driver[T any] struct {
	rt   *Runtime
	step StepFunc[T]

	mu       sync.Mutex
	result   *Promise[T]
	dispose  func()
	closed   bool
	timer    Timer
	interval time.Duration

	// tagErr, if set, wraps a failing error with correlation metadata
	// (policy-keyed coordination) before it settles the
	// result promise. See errtag.go / task.go.
	tagErr func(error) error
}

// newDriver constructs a driver whose ContinueNow directives are rescheduled
// through a Timer after interval, instead of looping inline in Go — see
// scheduleContinue.
func newDriver[T any](rt *Runtime, step StepFunc[T], result *Promise[T], interval time.Duration) *driver[T] {
	return &driver[T]{rt: rt, step: step, result: result, interval: interval}
}

func (d *driver[T]) applyTag(err error) error {
	if d.tagErr == nil || err == nil {
		return err
	}
	return d.tagErr(err)
}

// start performs the initial, eager advance: construction always advances
// eagerly. Must be called on the main loop goroutine.
func (d *driver[T]) start() {
	d.advance(Injection{Fresh: true})
}

// advance is the single re-entry point. It only ever loops inline over a
// chain of Await directives whose dependency is already finished — the
// "batching" original_source/src/coroutine.py's _step performs when it steps
// back into an already-`finished` yielded InProgress without returning to
// the caller. A ContinueNow directive never loops inline: like _step
// returning True on a NotFinished yield, it always arms the driver's timer
// and returns, so the resumption goes through the main loop.
func (d *driver[T]) advance(in Injection) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	for {
		dir := d.step(in)
		switch dir.kind {
		case DirectiveContinueNow:
			d.scheduleContinue()
			return
		case DirectiveAwait:
			dep := dir.await
			if dep.isFinishedAny() {
				// Already-settled dependency: continue the loop synchronously,
				// the same "Blocking on prerequisites" fast path _step takes
				// when the yielded InProgress is already finished.
				var next Injection
				dep.observeAny(
					func(v any) { next = Injection{Value: v} },
					func(err error) { next = Injection{Err: err} },
				)
				in = next
				continue
			}

			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.dispose = dep.observeAny(
				func(v any) {
					d.rt.postVoid(func() { d.advance(Injection{Value: v}) })
				},
				func(err error) {
					d.rt.postVoid(func() { d.advance(Injection{Err: err}) })
				},
			)
			d.mu.Unlock()
			return
		case DirectiveDone:
			d.finish(func() { _ = d.result.Finish(dir.value) })
			return
		case DirectiveRaised:
			d.finish(func() { _ = d.result.Fail(d.applyTag(dir.err)) })
			return
		}
	}
}

// scheduleContinue arms the driver's timer to re-enter the step function
// after interval with a fresh (empty) Injection, lazily creating the timer
// on first use.
func (d *driver[T]) scheduleContinue() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.timer == nil {
		d.timer = newMainLoopTimer(d.rt, func() bool {
			d.advance(Injection{})
			return false
		})
	}
	timer := d.timer
	interval := d.interval
	d.mu.Unlock()
	timer.Start(interval)
}

func (d *driver[T]) finish(settle func()) {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	settle()
}

// close tears a still-running driver down out of band: it disposes any
// pending await subscription, then re-invokes the step function with reason
// injected as an error so it can run cleanup and terminate. If the step
// function yields anything other than Done/Raised in response, that is
// logged as a warning and surfaced to the caller as ErrCloseIgnored.
func (d *driver[T]) close(reason error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if d.dispose != nil {
		d.dispose()
		d.dispose = nil
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	dir := d.step(Injection{Err: reason})
	switch dir.kind {
	case DirectiveDone:
		d.finish(func() { _ = d.result.Finish(dir.value) })
		return nil
	case DirectiveRaised:
		d.finish(func() { _ = d.result.Fail(d.applyTag(dir.err)) })
		return nil
	default:
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.rt.logger.Warn("step function ignored close", errField("reason", reason))
		_ = d.result.Fail(d.applyTag(ErrCloseIgnored))
		return ErrCloseIgnored
	}
}

func (d *driver[T]) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
