// Package trace provides decision-trace recording for quantum-round analysis.
// This package does not import package sim (whose orchestrator and dispatcher
// record into it) — it stores pure data types.
package trace

// BoundaryCause names why a core's quantum ended.
type BoundaryCause string

const (
	// BoundaryStoreBufferOverflow: the core's last cache access overflowed its
	// deterministic store buffer.
	BoundaryStoreBufferOverflow BoundaryCause = "store_buffer_overflow"
	// BoundaryInsnBudget: the core's work counter reached the quantum-size budget
	// at a basic-block boundary.
	BoundaryInsnBudget BoundaryCause = "insn_budget"
	// BoundarySyncInduced: a Det-TSO sink, or a Det-HB sink whose source landed
	// in the current round, ended the quantum.
	BoundarySyncInduced BoundaryCause = "sync_induced"
)

// BoundaryRecord captures a single quantum-boundary decision made by the
// orchestrator for one core.
type BoundaryRecord struct {
	Core  int
	Round int64
	Cause BoundaryCause
}

// CausalityStallRecord captures a life-lock event that could not execute yet
// because earlier events on the same sync object have not applied.
type CausalityStallRecord struct {
	SyncObject        uint64
	TID               uint16
	LogicalTime       uint64
	ActiveLogicalTime uint64
}

// ForcedCommitRecord captures a dispatcher-initiated forced round commit,
// triggered after a spin budget elapsed with no progress.
type ForcedCommitRecord struct {
	Round             int64
	IterationsIdle    int64
	UnprocessedEvents int
}
