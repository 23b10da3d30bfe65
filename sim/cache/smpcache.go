package cache

import (
	"github.com/jdevietti/rcdcsim/sim/stat"
)

// Per-access latency constants, in model cycles.
const (
	L1HitLatency        = 1
	L2HitLatency        = 10
	L3HitLatency        = 35
	RemoteHitLatency    = 15
	MemoryAccessLatency = 121
)

// DataAccess names a single memory reference to be applied to a core's
// cache hierarchy.
type DataAccess struct {
	Addr     uint64
	Size     uint32
	StackRef bool
}

// snoopResult is the outcome of probing peer caches for a block.
type snoopResult int

const (
	snoopNoData snoopResult = iota
	snoopSharedData
	snoopExclusiveData
)

// SMPCache is one core's private L1/L2 plus a borrowed pointer to the
// shared L3, implementing MESI across its peers and a deterministic store
// buffer modeled implicitly via each line's Dirty bit.
type SMPCache struct {
	CoreID int

	l1 *HierarchicalCache
	l2 *HierarchicalCache // nil if this configuration has no L2
	l3 *HierarchicalCache // shared across cores; nil if this configuration has no L3

	peers []*SMPCache // all caches in the system, including self

	UseDetStoreBuffers bool

	StoreBufferEmpty      bool
	StoreBufferOverflowed bool

	// real and deterministic cycle accounting. The orchestrator resets
	// TimeInMemoryHierarchy at each quantum-round boundary;
	// DetTimeInMemoryHierarchy is never reset and the orchestrator reads
	// per-access deltas of it.
	TimeInMemoryHierarchy    int64
	DetTimeInMemoryHierarchy int64

	// counters
	ReadHits            *stat.Counter
	ReadRemoteHits      *stat.Counter
	ReadMisses          *stat.Counter
	WriteHits           *stat.Counter
	WriteRemoteHits     *stat.Counter
	WriteMisses         *stat.Counter
	UpgradeMisses       *stat.Counter
	TotalMemoryAccesses *stat.Counter
	L1Evictions         *stat.Counter
	L2Evictions         *stat.Counter
	DirtyDataEvictions  *stat.Counter
	SyncSources         *stat.Counter
	SyncTotalSinks      *stat.Counter
	SyncSourcelessSinks *stat.Counter
	SyncUnmatchedSinks  *stat.Counter
}

// NewSMPCache constructs a core's private hierarchy. hasL2 false omits L2
// (l2Geom is then ignored and L1 falls through directly to l3). l3 is
// shared by every core in the system and is supplied by the caller, which
// owns its lifetime.
func NewSMPCache(coreID int, l1Geom Geometry, hasL2 bool, l2Geom Geometry, l3 *HierarchicalCache, useDetStoreBuffers bool) *SMPCache {
	sc := &SMPCache{
		CoreID:             coreID,
		l3:                 l3,
		UseDetStoreBuffers: useDetStoreBuffers,
		StoreBufferEmpty:   true,
	}

	next := l3
	if hasL2 {
		sc.l2 = NewHierarchicalCache(2, l2Geom, sc.l2EvictionPolicy, next)
		next = sc.l2
	}
	sc.l1 = NewHierarchicalCache(1, l1Geom, sc.l1EvictionPolicy, next)

	sc.registerCounters()
	return sc
}

func (sc *SMPCache) registerCounters() {
	c := sc.CoreID
	sc.ReadHits = stat.NewCounter(c, "numReadHits")
	sc.ReadRemoteHits = stat.NewCounter(c, "numReadRemoteHits")
	sc.ReadMisses = stat.NewCounter(c, "numReadMisses")
	sc.WriteHits = stat.NewCounter(c, "numWriteHits")
	sc.WriteRemoteHits = stat.NewCounter(c, "numWriteRemoteHits")
	sc.WriteMisses = stat.NewCounter(c, "numWriteMisses")
	sc.UpgradeMisses = stat.NewCounter(c, "numUpgradeMisses")
	sc.TotalMemoryAccesses = stat.NewCounter(c, "numTotalMemoryAccesses")
	sc.L1Evictions = stat.NewCounter(c, "numL1Evictions")
	sc.L2Evictions = stat.NewCounter(c, "numL2Evictions")
	sc.DirtyDataEvictions = stat.NewCounter(c, "numDirtyDataEvictions")
	sc.SyncSources = stat.NewCounter(c, "numSyncSources")
	sc.SyncTotalSinks = stat.NewCounter(c, "numSyncTotalSinks")
	sc.SyncSourcelessSinks = stat.NewCounter(c, "numSyncSourcelessSinks")
	sc.SyncUnmatchedSinks = stat.NewCounter(c, "numSyncUnmatchedSinks")
}

// SetPeers installs the full set of per-core caches in the system,
// including sc itself, for remote snooping.
func (sc *SMPCache) SetPeers(peers []*SMPCache) {
	sc.peers = peers
}

func (sc *SMPCache) hasL2() bool { return sc.l2 != nil }

// l1EvictionPolicy is installed on the L1 level. If there is no L2, L1
// evictions are store-buffer eligible and may overflow; otherwise L1
// evictions demote cleanly to L2 via plain LRU.
func (sc *SMPCache) l1EvictionPolicy(set []Line, level int) int {
	sc.L1Evictions.Inc()
	if sc.hasL2() {
		return LRUPolicy(set, level)
	}
	return sc.storeBufferAwarePolicy(set)
}

// l2EvictionPolicy is installed on the L2 level, when present. L2 is
// always the store-buffer-eligible level in a 2-level private hierarchy.
func (sc *SMPCache) l2EvictionPolicy(set []Line, level int) int {
	sc.L2Evictions.Inc()
	return sc.storeBufferAwarePolicy(set)
}

// storeBufferAwarePolicy prefers the least-recently-used clean line. If
// the entire set is dirty, it declares overflow: marks
// StoreBufferOverflowed, clears the chosen victim's dirty bit so a later
// re-fill is not mistaken for buffered data, and evicts it anyway.
func (sc *SMPCache) storeBufferAwarePolicy(set []Line) int {
	for i := len(set) - 1; i >= 0; i-- {
		if !set[i].Dirty {
			return i
		}
	}
	victim := len(set) - 1
	sc.StoreBufferOverflowed = true
	set[victim].Dirty = false
	sc.DirtyDataEvictions.Inc()
	return victim
}

func blockAddrOf(addr uint64) BlockAddr {
	return BlockAddr(addr)
}

// Read applies a load to the private hierarchy, accounting real and
// deterministic cycle latency and bringing the line into L1 on a miss. A
// hit is read-only: it never mutates the hierarchy (in particular, it
// must not strip a line out of a shared L3 the way a miss's subsequent
// install does).
func (sc *SMPCache) Read(access DataAccess) {
	sc.TotalMemoryAccesses.Inc()
	addr := blockAddrOf(access.Addr)

	var line Line
	hit := sc.l1.Search(addr, &line)
	if hit != MissedToMemory {
		sc.ReadHits.Inc()
		sc.TimeInMemoryHierarchy += int64(hitLatency(hit))
		if hit == HitL2 && line.Dirty {
			sc.DetTimeInMemoryHierarchy += L2HitLatency
		} else {
			sc.DetTimeInMemoryHierarchy += L1HitLatency
		}
		return
	}

	sc.DetTimeInMemoryHierarchy += L1HitLatency

	result := sc.snoopForRead(addr)
	switch result {
	case snoopExclusiveData, snoopSharedData:
		sc.ReadRemoteHits.Inc()
		sc.TimeInMemoryHierarchy += RemoteHitLatency
		line = Line{Valid: true, State: Shared}
	case snoopNoData:
		sc.ReadMisses.Inc()
		sc.TimeInMemoryHierarchy += MemoryAccessLatency - 1
		line = Line{Valid: true, State: Exclusive}
	}
	sc.installInL1(addr, line)
}

func hitLatency(h HitLevel) int {
	switch h {
	case HitL1:
		return L1HitLatency
	case HitL2:
		return L2HitLatency
	case HitL3:
		return L3HitLatency
	default:
		return MemoryAccessLatency
	}
}

// Write applies a store. useStoreBuffer gates whether a store-buffer-
// eligible hit marks the line dirty; the dispatcher passes false for
// stack-ref accesses when ignore-stack is enabled.
func (sc *SMPCache) Write(access DataAccess, useStoreBuffer bool) {
	sc.TotalMemoryAccesses.Inc()
	addr := blockAddrOf(access.Addr)

	var line Line
	hit := sc.l1.Access(addr, &line)
	if hit != MissedToMemory {
		sc.TimeInMemoryHierarchy += int64(hitLatency(hit))
		if hit == HitL2 && line.Dirty {
			sc.DetTimeInMemoryHierarchy += L2HitLatency
		} else {
			sc.DetTimeInMemoryHierarchy += L1HitLatency
		}

		switch line.State {
		case Shared:
			sc.UpgradeMisses.Inc()
			sc.invalidatePeers(addr)
			sc.TimeInMemoryHierarchy += RemoteHitLatency
		default: // Exclusive or Modified
			sc.WriteHits.Inc()
		}
		line.State = Modified
		if sc.UseDetStoreBuffers && useStoreBuffer {
			line.Dirty = true
			sc.StoreBufferEmpty = false
		}
		sc.installInL1(addr, line)
		return
	}

	sc.DetTimeInMemoryHierarchy += L1HitLatency
	wasAbsent := sc.invalidatePeers(addr)
	if wasAbsent {
		sc.WriteMisses.Inc()
		sc.TimeInMemoryHierarchy += MemoryAccessLatency
	} else {
		sc.WriteRemoteHits.Inc()
		sc.TimeInMemoryHierarchy += RemoteHitLatency
	}

	line = Line{Valid: true, State: Modified}
	if sc.UseDetStoreBuffers && useStoreBuffer {
		line.Dirty = true
		sc.StoreBufferEmpty = false
	}
	sc.installInL1(addr, line)
}

func (sc *SMPCache) installInL1(addr BlockAddr, line Line) {
	sc.l1.EvictedFromLowerCache(line, addr)
}

// snoopForRead iterates peers' L1s searching for addr. The first peer
// holding M or E wins: it is demoted to S and the result reports
// exclusive (not shared) data provided. Otherwise, if any peer holds S,
// the result reports shared data provided. If no peer has a valid copy,
// reports no data.
func (sc *SMPCache) snoopForRead(addr BlockAddr) snoopResult {
	foundShared := false
	for _, peer := range sc.peers {
		if peer == sc {
			continue
		}
		var line Line
		if peer.l1.Search(addr, &line) == MissedToMemory {
			continue
		}
		switch line.State {
		case Modified, Exclusive:
			peer.demoteToShared(addr)
			return snoopExclusiveData
		case Shared:
			foundShared = true
		}
	}
	if foundShared {
		return snoopSharedData
	}
	return snoopNoData
}

func (sc *SMPCache) demoteToShared(addr BlockAddr) {
	var line Line
	if sc.l1.Search(addr, &line) == MissedToMemory {
		return
	}
	line.State = Shared
	sc.l1.EvictedFromLowerCache(line, addr)
}

// invalidatePeers iterates every peer and invalidates any valid copy of
// addr, in any MESI state. Returns true if addr was absent from every
// peer.
func (sc *SMPCache) invalidatePeers(addr BlockAddr) bool {
	absent := true
	for _, peer := range sc.peers {
		if peer == sc {
			continue
		}
		var line Line
		if peer.l1.Search(addr, &line) != MissedToMemory {
			absent = false
			peer.invalidateLine(addr)
		}
	}
	return absent
}

func (sc *SMPCache) invalidateLine(addr BlockAddr) {
	sc.l1.Invalidate(addr)
	if sc.l2 != nil {
		sc.l2.Invalidate(addr)
	}
}

// DrainStoreBuffer clears the Dirty bit of every line in L1 and L2, and
// sets StoreBufferEmpty. MESI state is left unchanged — conceptually,
// buffered data is published to the coherent cache system.
func (sc *SMPCache) DrainStoreBuffer() {
	clean := func(line *Line) { line.Dirty = false }
	sc.l1.VisitAllLines(clean)
	if sc.l2 != nil {
		sc.l2.VisitAllLines(clean)
	}
	sc.StoreBufferEmpty = true
	sc.StoreBufferOverflowed = false
}
