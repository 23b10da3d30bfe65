package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every quantum-boundary, causality-stall,
	// and forced-commit decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation run.
type SimulationTrace struct {
	Config        TraceConfig
	Boundaries    []BoundaryRecord
	Stalls        []CausalityStallRecord
	ForcedCommits []ForcedCommitRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:        config,
		Boundaries:    make([]BoundaryRecord, 0),
		Stalls:        make([]CausalityStallRecord, 0),
		ForcedCommits: make([]ForcedCommitRecord, 0),
	}
}

// enabled reports whether this trace should record anything.
func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

// RecordBoundary appends a quantum-boundary decision, a no-op unless tracing
// is enabled at TraceLevelDecisions.
func (st *SimulationTrace) RecordBoundary(record BoundaryRecord) {
	if !st.enabled() {
		return
	}
	st.Boundaries = append(st.Boundaries, record)
}

// RecordStall appends a causality-stall decision.
func (st *SimulationTrace) RecordStall(record CausalityStallRecord) {
	if !st.enabled() {
		return
	}
	st.Stalls = append(st.Stalls, record)
}

// RecordForcedCommit appends a forced-commit decision.
func (st *SimulationTrace) RecordForcedCommit(record ForcedCommitRecord) {
	if !st.enabled() {
		return
	}
	st.ForcedCommits = append(st.ForcedCommits, record)
}
