package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalBoundaries int
	CauseCounts     map[BoundaryCause]int
	TotalStalls     int
	UniqueSyncObjs  int
	TotalForced     int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		CauseCounts: make(map[BoundaryCause]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalBoundaries = len(st.Boundaries)
	for _, b := range st.Boundaries {
		summary.CauseCounts[b.Cause]++
	}

	uniqueObjs := make(map[uint64]bool)
	for _, s := range st.Stalls {
		uniqueObjs[s.SyncObject] = true
	}
	summary.TotalStalls = len(st.Stalls)
	summary.UniqueSyncObjs = len(uniqueObjs)

	summary.TotalForced = len(st.ForcedCommits)

	return summary
}
