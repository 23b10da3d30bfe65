package sim

import (
	"io"
	"os"

	"github.com/jdevietti/rcdcsim/sim/cache"
	"github.com/jdevietti/rcdcsim/sim/trace"
)

// Simulation wires together the per-core caches, the orchestrator, and the
// dispatcher for one run, per a RunConfig.
type Simulation struct {
	Config       RunConfig
	Caches       []*cache.SMPCache
	Orchestrator *Orchestrator
	Dispatcher   *Dispatcher
	Trace        *trace.SimulationTrace
}

// NewSimulation constructs every per-core cache (wired to a shared L3 when
// enabled), the orchestrator, and the dispatcher, ready to run.
func NewSimulation(cfg RunConfig) *Simulation {
	assertf(cfg.Cores > 0, "rcdcsim: cores must be positive, got %d", cfg.Cores)

	var l3 *cache.HierarchicalCache
	if cfg.Cache.UseL3 {
		l3 = cache.NewHierarchicalCache(3, toGeometry(cfg.Cache.L3), nil, nil)
	}

	policy := NewPolicy(cfg.Scheduler.Policy)
	useDetStoreBuffers := policy == PolicyDetTSO || policy == PolicyDetHB

	caches := make([]*cache.SMPCache, cfg.Cores)
	for c := 0; c < cfg.Cores; c++ {
		caches[c] = cache.NewSMPCache(
			c,
			toGeometry(cfg.Cache.L1),
			cfg.Cache.UseL2,
			toGeometry(cfg.Cache.L2),
			l3,
			useDetStoreBuffers,
		)
	}
	for _, c := range caches {
		c.SetPeers(caches)
	}

	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)})

	orch := NewOrchestrator(cfg.Cores, policy, cfg.Scheduler.QuantumSize, cfg.Scheduler.SmartQB, caches, tr)
	disp := NewDispatcher(orch, cfg.Cores, cfg.IgnoreStack, tr)

	return &Simulation{
		Config:       cfg,
		Caches:       caches,
		Orchestrator: orch,
		Dispatcher:   disp,
		Trace:        tr,
	}
}

func toGeometry(g GeometryConfig) cache.Geometry {
	return cache.Geometry{BlockSize: g.BlockSize, Size: g.Size, Assoc: g.Assoc}
}

// Run reads the event stream from r to completion.
func (s *Simulation) Run(r io.Reader) error {
	return s.Dispatcher.Run(r)
}

// DumpStats writes the aggregate and per-core counters to w.
func (s *Simulation) DumpStats(w io.Writer, prefix, suffix string) error {
	return s.Orchestrator.DumpStats(w, prefix, suffix)
}

// CreateStatsFile opens path for writing, appending ".1" repeatedly until
// it finds a name that does not already exist — mirroring the original
// tool's collision-avoidance behavior, so a repeated run never clobbers a
// prior one's output.
func CreateStatsFile(path string) (*os.File, error) {
	for fileExists(path) {
		path += ".1"
	}
	return os.Create(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
