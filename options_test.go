package loopkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/loopkit/metrics"
)

func TestDefaultRuntimeOptions_PassValidation(t *testing.T) {
	o := defaultRuntimeOptions()
	require.NoError(t, validateRuntimeOptions(&o))
	require.NotNil(t, o.Metrics)
	require.NotNil(t, o.Logger)
}

func TestValidateRuntimeOptions_RejectsNegativeDefaultInterval(t *testing.T) {
	o := defaultRuntimeOptions()
	o.DefaultInterval = -time.Second
	require.ErrorIs(t, validateRuntimeOptions(&o), ErrInvalidConfig)
}

func TestValidateRuntimeOptions_RejectsNegativeShutdownTimeout(t *testing.T) {
	o := defaultRuntimeOptions()
	o.NamedPoolShutdownTimeout = -time.Second
	require.ErrorIs(t, validateRuntimeOptions(&o), ErrInvalidConfig)
}

func TestWithWakeQueueBuffer_IgnoresNonPositive(t *testing.T) {
	o := defaultRuntimeOptions()
	original := o.WakeQueueBuffer
	WithWakeQueueBuffer(0)(&o)
	require.Equal(t, original, o.WakeQueueBuffer)

	WithWakeQueueBuffer(128)(&o)
	require.Equal(t, 128, o.WakeQueueBuffer)
}

func TestWithMetrics_IgnoresNil(t *testing.T) {
	o := defaultRuntimeOptions()
	original := o.Metrics
	WithMetrics(nil)(&o)
	require.Equal(t, original, o.Metrics)

	p := metrics.NewNoopProvider()
	WithMetrics(p)(&o)
	require.Equal(t, p, o.Metrics)
}

func TestWithLogger_IgnoresNil(t *testing.T) {
	o := defaultRuntimeOptions()
	original := o.Logger
	WithLogger(nil)(&o)
	require.Equal(t, original, o.Logger)
}

func TestNewRuntime_AppliesOptions(t *testing.T) {
	rt, err := NewRuntime(WithDefaultInterval(10 * time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 10*time.Millisecond, rt.opts.DefaultInterval)
}
