package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdevietti/rcdcsim/sim/cache"
	"github.com/jdevietti/rcdcsim/sim/stat"
	"github.com/jdevietti/rcdcsim/sim/trace"
)

func newTestOrchestrator(t *testing.T, cores int, policy Policy, quantumSize int64) *Orchestrator {
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
	return o
}

func TestBasicBlockEndsQuantumAtBudget(t *testing.T) {
	o := newTestOrchestrator(t, 2, PolicyNondet, 10)

	o.BasicBlock(0, 5)
	assert.False(t, o.Stalled(0))

	o.BasicBlock(0, 5)
	assert.True(t, o.Stalled(0), "reaching the quantum budget at a basic-block boundary must end the quantum")
	assert.EqualValues(t, 1, o.TotalQuanta.Value())
}

func TestCacheAccessesDoNotCheckQuantumBudgetWithoutSmartQB(t *testing.T) {
	o := newTestOrchestrator(t, 1, PolicyNondet, 1)
	o.CacheRead(0, 0, 4, true)
	o.CacheRead(0, 16, 4, true)
	o.CacheRead(0, 32, 4, true)
	assert.False(t, o.Stalled(0), "the insn-count budget check fires only at basic-block events")
}

func TestDetTSOEndsQuantumOnEverySink(t *testing.T) {
	o := newTestOrchestrator(t, 2, PolicyDetTSO, 1000)

	o.SyncOp(1, false, false, InvalidTID, 42) // source from tid 1
	o.SyncOp(0, true, true, 1, 42)            // sink on tid 0

	assert.True(t, o.Stalled(0))
	assert.EqualValues(t, 1, o.SyncInducedRoundBoundaries.Value())
}

func TestDetHBOnlyEndsQuantumWhenSourceInCurrentRound(t *testing.T) {
	o := newTestOrchestrator(t, 2, PolicyDetHB, 1000)

	// source recorded in round 0 (before any round has finished).
	o.SyncOp(1, false, false, InvalidTID, 42)
	o.SyncOp(0, true, true, 1, 42)
	assert.True(t, o.Stalled(0), "a sink whose source occurred in the current round must end the quantum")
}

func TestDetHBDoesNotEndQuantumForStaleSource(t *testing.T) {
	o := newTestOrchestrator(t, 2, PolicyDetHB, 1000)

	o.SyncOp(1, false, false, InvalidTID, 42)
	// force round 0 to finish so the source now belongs to a prior round.
	o.endQuantum(1, trace.BoundaryInsnBudget)
	o.FinishQuantumRound()

	o.SyncOp(0, true, true, 1, 42)
	assert.False(t, o.Stalled(0), "a sink whose source occurred in an earlier round must not end the quantum")
}

func TestRoundDoneRequiresEveryCoreAccountedFor(t *testing.T) {
	o := newTestOrchestrator(t, 3, PolicyNondet, 1000)
	require.False(t, o.RoundDone())

	o.Block(0)
	require.False(t, o.RoundDone())

	o.Block(1)
	require.False(t, o.RoundDone())

	o.WaitForCausality(2)
	assert.True(t, o.RoundDone())
}

func TestFinishQuantumRoundResetsPerCoreState(t *testing.T) {
	o := newTestOrchestrator(t, 2, PolicyNondet, 10)
	o.BasicBlock(0, 10)
	require.True(t, o.Stalled(0))

	o.FinishQuantumRound()

	assert.False(t, o.Stalled(0))
	assert.EqualValues(t, 1, o.QuantumRounds.Value())
	assert.EqualValues(t, 1, o.QuantumRoundCommits.Value())
}

func TestStoreBufferOverflowEndsQuantum(t *testing.T) {
	o := newTestOrchestrator(t, 1, PolicyDetTSO, 1000)

	cacheSize := uint64(16)
	var i uint64
	for i = 0; i < 2; i++ {
		o.CacheWrite(0, cacheSize*i, 1, true)
	}
	require.False(t, o.Stalled(0))

	o.CacheWrite(0, cacheSize*i, 1, true)
	assert.True(t, o.Stalled(0))
	assert.EqualValues(t, 1, o.StoreBufferOverflowBoundaries.Value())
}
