package loopkit

import "errors"

// Namespace prefixes every sentinel error in this package, the same
// namespace-prefixed-sentinel convention the ygrebnov/workers error group
// uses.
const Namespace = "loopkit"

// Error taxonomy. These are sentinels, not concrete types: callers
// use errors.Is against them. Where a failure needs to carry correlation
// metadata (which task, which policy key), it is additionally wrapped via
// errtag.go.
var (
	// ErrNotReady is returned by Promise.Result when the promise is still Pending.
	ErrNotReady = errors.New(Namespace + ": value requested from a pending promise")

	// ErrAlreadySet is returned by a second Finish/Fail call on a promise.
	ErrAlreadySet = errors.New(Namespace + ": promise already settled")

	// ErrTimedOut settles a Promise.Timeout-wrapped promise that did not finish in time.
	ErrTimedOut = errors.New(Namespace + ": promise timed out")

	// ErrCancelled settles a task aborted via Cancel.
	ErrCancelled = errors.New(Namespace + ": task cancelled")

	// ErrCloseIgnored is surfaced as a diagnostic when a step function does not
	// honor driver Close; the task still becomes terminal.
	ErrCloseIgnored = errors.New(Namespace + ": step function ignored close")

	// ErrInvalidTarget is returned when a value handed to an adapter (e.g. the
	// threaded function signatures RunThreaded accepts) has an unsupported
	// shape.
	ErrInvalidTarget = errors.New(Namespace + ": unsupported target signature")

	// ErrDeadlock is returned by Wait when called on the main-loop goroutine
	// for a promise that only the main loop itself can resolve.
	ErrDeadlock = errors.New(Namespace + ": wait on main loop goroutine would deadlock")

	// ErrHostFatal marks a host signal observed during advance or drain.
	ErrHostFatal = errors.New(Namespace + ": fatal host signal")

	// ErrInvalidConfig mirrors ygrebnov/workers' configuration validation error.
	ErrInvalidConfig = errors.New(Namespace + ": invalid runtime configuration")
)
