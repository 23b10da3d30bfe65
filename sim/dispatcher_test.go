package sim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdevietti/rcdcsim/sim/cache"
	"github.com/jdevietti/rcdcsim/sim/stat"
	"github.com/jdevietti/rcdcsim/sim/trace"
)

func newTestDispatcher(t *testing.T, cores int, policy Policy, quantumSize int64, ignoreStack bool) *Dispatcher {
	t.Helper()
	stat.ResetCounters()
	geom := cache.Geometry{BlockSize: 4, Size: 16, Assoc: 2}
	caches := make([]*cache.SMPCache, cores)
	for c := 0; c < cores; c++ {
		caches[c] = cache.NewSMPCache(c, geom, false, cache.Geometry{}, nil, policy != PolicyNondet)
	}
	for _, c := range caches {
		c.SetPeers(caches)
	}
	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	o := NewOrchestrator(cores, policy, quantumSize, false, caches, tr)
	o.SetLiveThreads(cores)
	return NewDispatcher(o, cores, ignoreStack, tr)
}

func encodeEvents(t *testing.T, events []Event) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	for _, e := range events {
		_, err := e.WriteTo(buf)
		require.NoError(t, err)
	}
	return buf
}

func TestRunAppliesBasicBlocksAndTerminatesOnMainThreadFinish(t *testing.T) {
	d := newTestDispatcher(t, 1, PolicyNondet, 1000, false)

	stream := encodeEvents(t, []Event{
		{Type: EventThreadStart, TID: 0},
		{Type: EventBasicBlock, TID: 0, InsnCount: 5},
		{Type: EventMemRead, TID: 0, Addr: 0, MemOpSize: 4},
		{Type: EventThreadFinish, TID: 0},
	})

	require.NoError(t, d.Run(stream))
	assert.EqualValues(t, 5, d.NumTotalInstructions.Value())
	assert.EqualValues(t, 1, d.MaxLiveThreads.Value())
}

func TestStackRefAccessSkipsStoreBufferWhenIgnored(t *testing.T) {
	d := newTestDispatcher(t, 1, PolicyDetTSO, 1000, true)

	stream := encodeEvents(t, []Event{
		{Type: EventThreadStart, TID: 0},
		{Type: EventMemWrite, TID: 0, Addr: 0, MemOpSize: 4, StackRef: true},
		{Type: EventThreadFinish, TID: 0},
	})

	require.NoError(t, d.Run(stream))
	assert.EqualValues(t, 1, d.NumStackAccesses.Value())
	assert.True(t, d.Orchestrator.Caches[0].StoreBufferEmpty, "a filtered stack write must not mark the store buffer non-empty")
}

// TestCausalOrderAppliesLifeLocksInPipeOrderDespiteTidInterleaving covers
// scenario E: two tids interleave their arrival, but every life-lock
// hb-event on the same sync-object must still apply in the order it was
// written to the pipe.
func TestCausalOrderAppliesLifeLocksInPipeOrderDespiteTidInterleaving(t *testing.T) {
	d := newTestDispatcher(t, 2, PolicyNondet, 1000, false)

	const syncObj = uint64(7)
	stream := encodeEvents(t, []Event{
		{Type: EventThreadStart, TID: 0},
		{Type: EventThreadStart, TID: 1},
		// tid 1 sources first in pipe order...
		{Type: EventHBSource, TID: 1, SyncObject: syncObj, IsLifeLock: true},
		// ...then tid 0 sinks against it.
		{Type: EventHBSink, TID: 0, SyncObject: syncObj, IsLifeLock: true, HBSourceThread: 1},
		{Type: EventThreadFinish, TID: 1},
		{Type: EventThreadFinish, TID: 0},
	})

	require.NoError(t, d.Run(stream))
	// both sync events applied: one source, one total sink, no unmatched sink.
	assert.EqualValues(t, 1, d.Orchestrator.Caches[1].SyncSources.Value())
	assert.EqualValues(t, 1, d.Orchestrator.Caches[0].SyncTotalSinks.Value())
	assert.EqualValues(t, 0, d.Orchestrator.Caches[0].SyncUnmatchedSinks.Value())
}

func TestTryApplyEnforcesCausalTotalOrder(t *testing.T) {
	d := newTestDispatcher(t, 1, PolicyNondet, 1000, false)
	const obj = uint64(3)

	first := Event{Type: EventHBSource, TID: 0, SyncObject: obj, IsLifeLock: true, LogicalTime: 1}
	require.Equal(t, applied, d.tryApply(first))
	assert.EqualValues(t, 2, d.activeLogicalTime[obj])

	second := Event{Type: EventHBSink, TID: 0, SyncObject: obj, IsLifeLock: true, LogicalTime: 2, HBSourceThread: 0}
	require.Equal(t, applied, d.tryApply(second))
	assert.EqualValues(t, 3, d.activeLogicalTime[obj])

	outOfOrder := Event{Type: EventHBSink, TID: 0, SyncObject: obj, IsLifeLock: true, LogicalTime: 5, HBSourceThread: 0}
	require.Equal(t, queuedCausality, d.tryApply(outOfOrder))
	assert.True(t, d.Orchestrator.waitingForCausality[0])
}

// TestRunTerminatesWhenStreamEndsWithoutMainThreadFinish covers the
// end-of-stream drain path: core 1 never receives any events, and core 0
// blocks without ever reaching a thread-finish for tid 0. Run must still
// return once the pipe is exhausted and every FIFO is empty, rather than
// spinning forever waiting for a commit condition that can never recur.
func TestRunTerminatesWhenStreamEndsWithoutMainThreadFinish(t *testing.T) {
	d := newTestDispatcher(t, 2, PolicyNondet, 1000, false)

	stream := encodeEvents(t, []Event{
		{Type: EventThreadStart, TID: 0},
		{Type: EventThreadBlocked, TID: 0},
	})

	require.NoError(t, d.Run(stream))
}
