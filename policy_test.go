package loopkit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyRegistry_EntryForIsStableByKey(t *testing.T) {
	r := newPolicyRegistry()
	e1 := r.entryFor(policyEntryKey{PolicySynchronized, "a"})
	e2 := r.entryFor(policyEntryKey{PolicySynchronized, "a"})
	e3 := r.entryFor(policyEntryKey{PolicySynchronized, "b"})

	require.Same(t, e1, e2)
	require.NotSame(t, e1, e3)
}

func TestPolicyEntry_AcquireRelease_QueuesFIFO(t *testing.T) {
	e := &policyEntry{}

	var order []int
	e.acquire(func() { order = append(order, 1) })
	e.acquire(func() { order = append(order, 2) }) // queued, entry busy
	e.acquire(func() { order = append(order, 3) }) // queued behind 2

	require.Equal(t, []int{1}, order)

	e.release()
	require.Equal(t, []int{1, 2}, order)

	e.release()
	require.Equal(t, []int{1, 2, 3}, order)

	e.release()
	require.False(t, e.busy)
}

func TestPolicyEntry_PassLast_TracksMostRecentStillLive(t *testing.T) {
	e := &policyEntry{}
	require.Nil(t, e.lastLive())

	e.setLastLive("task-1")
	require.Equal(t, "task-1", e.lastLive())

	// a newer invocation replaces the tracked predecessor
	e.setLastLive("task-2")
	require.Equal(t, "task-2", e.lastLive())

	// clearing a stale value (already superseded) is a no-op
	e.clearLastLiveIfCurrent("task-1")
	require.Equal(t, "task-2", e.lastLive())

	// clearing the current value removes it
	e.clearLastLiveIfCurrent("task-2")
	require.Nil(t, e.lastLive())
}

func TestPolicyEntry_Singleton_GetSetClear(t *testing.T) {
	e := &policyEntry{}
	require.Nil(t, e.getSingleton())

	e.setSingleton("value")
	require.Equal(t, "value", e.getSingleton())

	e.clearSingleton()
	require.Nil(t, e.getSingleton())
}
