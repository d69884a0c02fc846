package loopkit

import "sync"

// Policy selects how concurrent SpawnTask calls that share a coordination
// key interact, generalizing original_source/src/coroutine.py's
// POLICY_SYNCHRONIZED / POLICY_SINGLETON / POLICY_PASS_LAST constants passed
// to the @coroutine decorator.
type Policy int

const (
	// PolicyNone runs every call independently; no coordination (the
	// decorator's default / unset policy).
	PolicyNone Policy = iota
	// PolicySynchronized queues calls sharing a key so at most one of them
	// ever runs at a time, each still producing its own result.
	PolicySynchronized
	// PolicySingleton folds concurrent calls sharing a key into the single
	// in-flight Task, handing every caller the same *Task[T].
	PolicySingleton
	// PolicyPassLast starts every call immediately and hands it, as
	// Injection.Last, the most recently spawned still-live task sharing its
	// key (nil if there is none).
	PolicyPassLast
)

// PolicyOptions configures SpawnTask's coordination. Key identifies the
// coordination group; two calls with the same (Policy, Key) coordinate with
// each other. An untyped nil Key is treated as "no coordination" regardless
// of Policy.
type PolicyOptions struct {
	Policy Policy
	Key    any
}

// policyEntry is the coordination state for one key, shared by whichever
// Policy addresses it. Only the fields relevant to the active policy are
// used; the zero value is ready to use.
type policyEntry struct {
	mu   sync.Mutex
	busy bool

	// PolicySynchronized
	queue []func()

	// PolicyPassLast: the most recently spawned, still-live task for this
	// key, handed to the next invocation as Injection.Last. Unlike
	// PolicySynchronized's queue, nothing here is ever deferred or
	// cancelled — every invocation starts immediately.
	passLast any

	// PolicySingleton
	singleton any
}

// policyRegistry is keyed on policyEntryKey (the Policy together with
// PolicyOptions.Key). It is main-loop only, like
// liveRegistry: SpawnTask is only ever called from the main loop.
type policyRegistry struct {
	mu      sync.Mutex
	entries map[any]*policyEntry
}

func newPolicyRegistry() *policyRegistry {
	return &policyRegistry{entries: make(map[any]*policyEntry)}
}

func (r *policyRegistry) entryFor(key any) *policyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &policyEntry{}
		r.entries[key] = e
	}
	return e
}

// getSingleton returns the currently registered singleton value for the
// entry, or nil if none is in flight.
func (e *policyEntry) getSingleton() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.singleton
}

func (e *policyEntry) setSingleton(v any) {
	e.mu.Lock()
	e.singleton = v
	e.mu.Unlock()
}

func (e *policyEntry) clearSingleton() {
	e.mu.Lock()
	e.singleton = nil
	e.mu.Unlock()
}

// acquire runs start immediately if the entry is free, otherwise queues it
// FIFO behind whatever is already running (PolicySynchronized).
func (e *policyEntry) acquire(start func()) {
	e.mu.Lock()
	if !e.busy {
		e.busy = true
		e.mu.Unlock()
		start()
		return
	}
	e.queue = append(e.queue, start)
	e.mu.Unlock()
}

// release pops and runs the next queued start, or frees the entry if none
// remain (PolicySynchronized).
func (e *policyEntry) release() {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.busy = false
		e.mu.Unlock()
		return
	}
	next := e.queue[0]
	e.queue = e.queue[1:]
	e.mu.Unlock()
	next()
}

// lastLive returns the most recently registered still-live task for this
// key (PolicyPassLast), or nil if none is live.
func (e *policyEntry) lastLive() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passLast
}

// setLastLive registers v as the most recently spawned still-live task for
// this key.
func (e *policyEntry) setLastLive(v any) {
	e.mu.Lock()
	e.passLast = v
	e.mu.Unlock()
}

// clearLastLiveIfCurrent removes v from the entry only if it is still the
// registered last-live task — a newer invocation may already have replaced
// it, mirroring the source's list.remove(obj) which only ever removes the
// specific finished InProgress, not whatever is currently last in the list.
func (e *policyEntry) clearLastLiveIfCurrent(v any) {
	e.mu.Lock()
	if e.passLast == v {
		e.passLast = nil
	}
	e.mu.Unlock()
}
