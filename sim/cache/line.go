// Package cache implements the hierarchical set-associative cache engine
// and the per-core MESI cache with a deterministic store buffer layered on
// top of it.
package cache

// MESIState is a cache line's coherence state.
type MESIState uint8

const (
	Invalid MESIState = iota
	Shared
	Exclusive
	Modified
)

func (s MESIState) String() string {
	switch s {
	case Shared:
		return "S"
	case Exclusive:
		return "E"
	case Modified:
		return "M"
	default:
		return "I"
	}
}

// Line is one cache line: a tag, validity, MESI state, and a dirty bit
// modeling store-buffer occupancy. Dirty is independent of MESI state —
// a line is "in the store buffer" iff Dirty is true and the line lives in
// L1 or L2.
type Line struct {
	Valid bool
	Tag   uint64
	State MESIState
	Dirty bool
}

// BlockAddr is the cache-line-aligned address used to index and tag lines.
type BlockAddr uint64

// HitLevel names where (or whether) an access hit in the hierarchy.
type HitLevel int

const (
	MissedToMemory HitLevel = iota
	HitL1
	HitL2
	HitL3
)

func (h HitLevel) String() string {
	switch h {
	case HitL1:
		return "L1"
	case HitL2:
		return "L2"
	case HitL3:
		return "L3"
	default:
		return "memory"
	}
}
