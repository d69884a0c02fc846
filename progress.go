package loopkit

import "sync"

// Progress is a mutable (current, total) tuple attached to a promise for
// coarse progress reporting ("Progress sub-handle"), independent
// of the promise's terminal state. It generalizes the first positional
// argument original_source/src/coroutine.py prepends to a coroutine's args
// when progress=True, and the YieldCallback.get()/__call__ pairing in
// original_source/src/notifier/yieldfunc.py.
type Progress struct {
	mu        sync.Mutex
	current   int64
	total     int64
	observers []func(current, total int64)
}

// NewProgress constructs a zero-valued Progress handle.
func NewProgress() *Progress {
	return &Progress{}
}

// Set updates the (current, total) pair and notifies observers registered so
// far, in registration order.
func (p *Progress) Set(current, total int64) {
	p.mu.Lock()
	p.current, p.total = current, total
	obs := append([]func(int64, int64){}, p.observers...)
	p.mu.Unlock()

	for _, o := range obs {
		if o != nil {
			o(current, total)
		}
	}
}

// Get returns the current (current, total) pair.
func (p *Progress) Get() (current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.total
}

// Observe registers a callback invoked on every subsequent Set call. It does
// not fire synchronously with the current value (progress, unlike a promise,
// has no "already terminal" fast path to replay).
func (p *Progress) Observe(cb func(current, total int64)) (dispose func()) {
	p.mu.Lock()
	p.observers = append(p.observers, cb)
	idx := len(p.observers) - 1
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if idx < len(p.observers) {
			p.observers[idx] = nil
		}
	}
}
