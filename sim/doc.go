// Package sim provides the core deterministic relaxed-consistency cache
// simulator: the event record, the counter registry, the quantum
// scheduler/orchestrator, and the event dispatcher that drives it all.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: the fixed-width Event record and its binary wire codec
//   - orchestrator.go: per-core quantum/round bookkeeping and the three
//     execution policies (nondet, Det-TSO, Det-HB)
//   - dispatcher.go: the main loop — reads events, enforces the life-lock
//     causal order, routes to the orchestrator, forces commits on deadlock
//
// # Architecture
//
// Per-core memory hierarchies live in sim/cache (hierarchical cache engine
// plus the MESI+store-buffer SMP cache layered on top); sim/multiplex holds
// the pipe fan-out utility; sim/trace holds optional decision-trace
// recording for debugging nondeterminism; sim/stat holds the process-wide
// counter registry; config.go in this package holds the typed
// configuration loaded by cmd's CLI.
//
// # Key Invariants
//
// At most one peer cache holds a line in M or E (exclusive-or with any
// number of S copies); a line is dirty only while its write is buffered in
// the (implicit) deterministic store buffer; a quantum round commits only
// once every core is stalled, blocked, or causally waiting.
package sim
