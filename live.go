package loopkit

import "sync"

// liveRegistry is the runtime's analogue of original_source/src/coroutine.py's
// module-level _active_coroutines set: every Task that has been constructed
// but not yet finished is registered here until it finishes (or until
// Shutdown clears the registry), so it cannot be garbage collected mid-flight purely
// because nothing else holds a reference to it. Access is documented as
// main-loop-only, matching the invariant that tasks are only ever created
// and advanced on the main loop goroutine; it is not internally synchronized
// beyond what's needed to survive Shutdown running concurrently with a
// drain.
type liveRegistry struct {
	mu    sync.Mutex
	tasks map[uint64]any
	next  uint64
}

func (r *liveRegistry) init() {
	r.tasks = make(map[uint64]any)
}

// add registers v (a *Task[T]) and returns a handle used to remove it later.
func (r *liveRegistry) add(v any) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.tasks[id] = v
	return id
}

func (r *liveRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

func (r *liveRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// clear drops every registered task reference, allowing them to be collected.
// Called from Runtime.Shutdown.
func (r *liveRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[uint64]any)
}
