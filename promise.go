package loopkit

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/loopkit/internal/goid"
)

// state is a promise's single-assignment lifecycle.
type state int32

const (
	statePending state = iota
	stateFinished
	stateFailed
)

// mainGoroutine holds the id of the goroutine running the process-wide main
// loop, or -1 if none has been installed yet. It is process-wide, mirroring
// LIVE and _active_coroutines in the source runtime: there is exactly one
// main loop per process.
var mainGoroutine int64 = -1

func setMainGoroutine(id int64)  { atomic.StoreInt64(&mainGoroutine, id) }
func isMainGoroutine(id int64) bool {
	return atomic.LoadInt64(&mainGoroutine) == id
}

// Promise is the single-assignment cell for "value not yet available"
// (source term: InProgress). It is the only async vocabulary the rest of
// the runtime uses: tasks, worker results, and timeouts all surface as a
// Promise[T].
type Promise[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state state
	value T
	err   error

	valueObservers []func(T)
	errorObservers []func(error)

	// unhandled tracks whether a Failed promise has ever had an exception
	// observer registered (before or after the transition). Checked by the
	// finalizer installed in NewPromise.
	unhandled bool

	progress *Progress
}

// NewPromise constructs a Pending promise. A finalizer is attached so that a
// Failed promise reclaimed by the garbage collector with no exception
// observer ever registered emits a logged diagnostic ("Unhandled
// failed promises").
func NewPromise[T any]() *Promise[T] {
	p := &Promise[T]{}
	p.cond = sync.NewCond(&p.mu)
	runtime.SetFinalizer(p, finalizePromise[T])
	return p
}

func finalizePromise[T any](p *Promise[T]) {
	p.mu.Lock()
	failed := p.state == stateFailed && p.unhandled
	err := p.err
	p.mu.Unlock()
	if failed {
		diagnosticLogger().Error("unhandled failed promise reclaimed",
			errField("error", err))
	}
}

// Finish transitions Pending -> Finished. Returns ErrAlreadySet if the
// promise is already terminal.
func (p *Promise[T]) Finish(value T) error {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return ErrAlreadySet
	}
	p.state = stateFinished
	p.value = value
	observers := p.valueObservers
	p.valueObservers = nil
	p.errorObservers = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, obs := range observers {
		safeInvokeValue(obs, value)
	}
	return nil
}

// Fail transitions Pending -> Failed and marks the failure unhandled until an
// exception observer is registered.
func (p *Promise[T]) Fail(err error) error {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return ErrAlreadySet
	}
	p.state = stateFailed
	p.err = err
	p.unhandled = len(p.errorObservers) == 0
	observers := p.errorObservers
	p.errorObservers = nil
	p.valueObservers = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if len(observers) > 0 {
		p.mu.Lock()
		p.unhandled = false
		p.mu.Unlock()
	}
	for _, obs := range observers {
		safeInvokeError(obs, err)
	}
	return nil
}

// IsFinished reports whether the promise has left Pending.
func (p *Promise[T]) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

// Result returns the stored value/error. It fails with ErrNotReady if the
// promise is still Pending.
func (p *Promise[T]) Result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateFinished:
		return p.value, nil
	case stateFailed:
		var zero T
		return zero, p.err
	default:
		var zero T
		return zero, ErrNotReady
	}
}

// ObserveValue registers cb to run with the value on Finished. If already
// Finished, cb fires synchronously with the stored value. Returns a disposer
// that removes the observer (a no-op once it has already fired).
func (p *Promise[T]) ObserveValue(cb func(T)) (dispose func()) {
	p.mu.Lock()
	switch p.state {
	case stateFinished:
		v := p.value
		p.mu.Unlock()
		safeInvokeValue(cb, v)
		return func() {}
	case stateFailed:
		p.mu.Unlock()
		return func() {}
	default:
		p.valueObservers = append(p.valueObservers, cb)
		idx := len(p.valueObservers) - 1
		p.mu.Unlock()
		return func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if idx < len(p.valueObservers) {
				p.valueObservers[idx] = nil
			}
		}
	}
}

// ObserveError registers cb to run with the error on Failed. If already
// Failed, cb fires synchronously and clears the unhandled flag.
func (p *Promise[T]) ObserveError(cb func(error)) (dispose func()) {
	p.mu.Lock()
	switch p.state {
	case stateFailed:
		err := p.err
		p.unhandled = false
		p.mu.Unlock()
		safeInvokeError(cb, err)
		return func() {}
	case stateFinished:
		p.mu.Unlock()
		return func() {}
	default:
		p.errorObservers = append(p.errorObservers, cb)
		idx := len(p.errorObservers) - 1
		p.mu.Unlock()
		return func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if idx < len(p.errorObservers) {
				p.errorObservers[idx] = nil
			}
		}
	}
}

// ObserveBoth registers both a value and an error observer at once, mirroring
// CoroutineInProgress's connect_both pattern (connect to both channels with
// the same callback shape, used pervasively to re-arm on either outcome).
func (p *Promise[T]) ObserveBoth(onValue func(T), onError func(error)) (dispose func()) {
	d1 := p.ObserveValue(onValue)
	d2 := p.ObserveError(onError)
	return func() { d1(); d2() }
}

// Wait blocks the calling goroutine until the promise is terminal or ctx is
// done. Calling Wait from the main-loop goroutine on a still-pending promise
// fails fast with ErrDeadlock: nothing else can run on the main loop to
// settle it while this goroutine is parked.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	p.mu.Lock()
	if p.state == statePending && isMainGoroutine(goid.Current()) {
		p.mu.Unlock()
		var zero T
		return zero, ErrDeadlock
	}

	for p.state == statePending {
		if ctx == nil || ctx.Err() == nil {
			waitCh := make(chan struct{})
			go func() {
				p.cond.L.Lock()
				p.cond.Wait()
				p.cond.L.Unlock()
				close(waitCh)
			}()
			p.mu.Unlock()

			if ctx == nil {
				<-waitCh
			} else {
				select {
				case <-waitCh:
				case <-ctx.Done():
					p.mu.Lock()
					if p.state == statePending {
						p.mu.Unlock()
						var zero T
						return zero, ctx.Err()
					}
					p.mu.Unlock()
				}
			}
			p.mu.Lock()
			continue
		}
		p.mu.Unlock()
		var zero T
		return zero, ctx.Err()
	}
	defer p.mu.Unlock()
	if p.state == stateFinished {
		return p.value, nil
	}
	return *new(T), p.err
}

// Timeout returns a new promise mirroring p that transitions to
// Failed(ErrTimedOut) after d if p is still pending when the timer fires. If
// onTimeout is non-nil it runs exactly once, on expiry (used by tasks to
// cancel themselves).
func (p *Promise[T]) Timeout(d time.Duration, onTimeout func()) *Promise[T] {
	out := NewPromise[T]()
	timer := time.AfterFunc(d, func() {
		if onTimeout != nil {
			onTimeout()
		}
		_ = out.Fail(ErrTimedOut)
	})
	p.ObserveBoth(
		func(v T) {
			timer.Stop()
			_ = out.Finish(v)
		},
		func(err error) {
			timer.Stop()
			_ = out.Fail(err)
		},
	)
	return out
}

// WithProgress lazily attaches a Progress sub-handle to the promise and
// returns it. Calling it repeatedly returns the same handle.
func (p *Promise[T]) WithProgress() *Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress == nil {
		p.progress = NewProgress()
	}
	return p.progress
}

// ProgressHandle returns the promise's progress sub-handle, or nil if none was
// ever requested via WithProgress.
func (p *Promise[T]) ProgressHandle() *Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func safeInvokeValue[T any](cb func(T), v T) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			diagnosticLogger().Warn("value observer panicked", anyField("panic", r))
		}
	}()
	cb(v)
}

func safeInvokeError(cb func(error), err error) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			diagnosticLogger().Warn("error observer panicked", anyField("panic", r))
		}
	}()
	cb(err)
}
