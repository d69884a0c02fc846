package loopkit

import (
	"time"

	"github.com/ygrebnov/loopkit/metrics"
)

// runtimeOptions holds Runtime-wide configuration, generalizing
// ygrebnov/workers' Config (config.go/defaults.go) from per-Workers-instance
// buffer sizing to per-Runtime knobs: the task engine, the main-loop bridge,
// and the named worker pools all read from this one struct.
type runtimeOptions struct {
	// DefaultInterval is used by SpawnTask callers that pass interval <= 0.
	DefaultInterval time.Duration

	// WakeQueueBuffer sizes the initial slice capacity of the C5 queue.
	// Advisory only (the queue is an unbounded slice); a non-zero value just
	// avoids early reallocation under burst load.
	WakeQueueBuffer int

	// NamedPoolShutdownTimeout bounds how long Shutdown waits for a named
	// worker pool's in-flight job to finish before abandoning the join.
	// Zero means wait indefinitely.
	NamedPoolShutdownTimeout time.Duration

	// Metrics is the Provider instruments are recorded against. Defaults to
	// metrics.NewNoopProvider().
	Metrics metrics.Provider

	// Logger receives runtime diagnostics. Defaults to a no-op.
	Logger Logger
}

func defaultRuntimeOptions() runtimeOptions {
	return runtimeOptions{
		DefaultInterval:          0,
		WakeQueueBuffer:          64,
		NamedPoolShutdownTimeout: 0,
		Metrics:                  metrics.NewNoopProvider(),
		Logger:                   defaultLogger(),
	}
}

// Option configures a Runtime. Use NewRuntime(opts...), mirroring
// ygrebnov/workers' NewOptions(ctx, opts...) builder.
type Option func(*runtimeOptions)

// WithDefaultInterval sets the resumption interval used when SpawnTask is
// called with interval <= 0.
func WithDefaultInterval(d time.Duration) Option {
	return func(o *runtimeOptions) { o.DefaultInterval = d }
}

// WithWakeQueueBuffer sets the advisory initial capacity for the main-loop queue.
func WithWakeQueueBuffer(n int) Option {
	return func(o *runtimeOptions) {
		if n > 0 {
			o.WakeQueueBuffer = n
		}
	}
}

// WithNamedPoolShutdownTimeout bounds Shutdown's wait on named worker pools.
func WithNamedPoolShutdownTimeout(d time.Duration) Option {
	return func(o *runtimeOptions) { o.NamedPoolShutdownTimeout = d }
}

// WithMetrics installs the metrics.Provider handed to named worker pools
// created via Runtime.Named. The task engine and the main-loop bridge record
// no metrics.
func WithMetrics(p metrics.Provider) Option {
	return func(o *runtimeOptions) {
		if p != nil {
			o.Metrics = p
		}
	}
}

// WithLogger installs the diagnostics sink.
func WithLogger(l Logger) Option {
	return func(o *runtimeOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

func validateRuntimeOptions(o *runtimeOptions) error {
	if o.DefaultInterval < 0 {
		return ErrInvalidConfig
	}
	if o.NamedPoolShutdownTimeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}
