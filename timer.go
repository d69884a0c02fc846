package loopkit

import (
	"sync"
	"time"
)

// Timer is the one-shot/periodic callback contract the task engine consumes.
// It is deliberately minimal: Start schedules cb after d,
// cancelling any prior schedule; Stop cancels; IsActive reports whether a
// callback is currently scheduled. A truthy callback return reschedules with
// the last duration; a falsy return is one-shot.
type Timer interface {
	Start(d time.Duration)
	Stop()
	IsActive() bool
}

// mainLoopTimer implements Timer on top of time.AfterFunc, but never invokes
// cb directly from the AfterFunc goroutine: it posts cb onto the Runtime's
// C5 queue so the callback always runs serialized on the main-loop
// goroutine. This is the runtime's stand-in for the externally supplied
// event loop / timer collaborator this runtime keeps out of core scope.
type mainLoopTimer struct {
	rt *Runtime
	cb func() bool

	mu     sync.Mutex
	timer  *time.Timer
	active bool
	gen    uint64 // bumped on every Start/Stop to invalidate in-flight fires
}

// newMainLoopTimer constructs a Timer whose callback runs on rt's main loop.
func newMainLoopTimer(rt *Runtime, cb func() bool) *mainLoopTimer {
	return &mainLoopTimer{rt: rt, cb: cb}
}

func (t *mainLoopTimer) Start(d time.Duration) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.active = true
	t.timer = time.AfterFunc(d, func() { t.fire(gen, d) })
	t.mu.Unlock()
}

func (t *mainLoopTimer) fire(gen uint64, lastDuration time.Duration) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.rt.postVoid(func() {
		t.mu.Lock()
		if gen != t.gen {
			t.mu.Unlock()
			return
		}
		t.active = false
		t.mu.Unlock()

		if t.cb() {
			t.Start(lastDuration)
		}
	})
}

func (t *mainLoopTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	t.active = false
}

func (t *mainLoopTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
