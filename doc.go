// Package loopkit is a cooperative concurrency runtime: a single main loop
// drives resumable step functions (Task[T]) through a Promise[T]/driver
// pair, bridged to worker-thread results via a main-thread wake queue
// (Runtime.Post/postVoid) so that no two task advances ever run
// concurrently, regardless of which goroutine produced the value a task was
// waiting on.
//
// Core vocabulary
//   - Promise[T]: a single-assignment future (Finish/Fail once, observed any
//     number of times).
//   - StepFunc[T] / Directive[T]: a resumable step of task body, and the
//     four things it can tell its driver to do next (ContinueNow, await a
//     dependency, finish, or fail).
//   - Task[T]: a StepFunc[T] under management — spawned via SpawnTask,
//     optionally coordinated across concurrent callers via a Policy.
//   - Runtime: owns the main loop's wake queue, the live task registry, and
//     the named worker pools jobs are dispatched onto with RunThreaded.
//
// Construct a Runtime with NewRuntime, install it as the main loop with
// Run or RunUntilFatal, and spawn tasks with SpawnTask from callbacks
// running on that loop.
package loopkit
