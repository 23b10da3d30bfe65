package cache

import (
	"fmt"
	"math/bits"
)

// ReplacementPolicy picks a victim from a set, given the set in
// MRU-to-LRU order and the level the eviction is happening at (1, 2, or
// 3). It must return an index into the set.
type ReplacementPolicy func(set []Line, level int) int

// LRUPolicy evicts the line at the back of the set (least recently used).
func LRUPolicy(set []Line, level int) int {
	return len(set) - 1
}

// Geometry describes a single cache level's size parameters. BlockSize,
// Size, and Assoc must all be powers of two.
type Geometry struct {
	BlockSize int
	Size      int
	Assoc     int
}

func (g Geometry) numSets() int {
	return g.Size / (g.BlockSize * g.Assoc)
}

func (g Geometry) validate() {
	if !isPowerOfTwo(g.BlockSize) || !isPowerOfTwo(g.Size) || !isPowerOfTwo(g.Assoc) {
		panic(fmt.Sprintf("rcdcsim: cache geometry must be powers of two, got %+v", g))
	}
	if g.numSets()*g.BlockSize*g.Assoc != g.Size {
		panic(fmt.Sprintf("rcdcsim: cache size %d not evenly divided by blocksize %d * assoc %d", g.Size, g.BlockSize, g.Assoc))
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// HierarchicalCache is a single set-associative cache level with an
// optional pointer to the next-higher level it recurses misses to and
// accepts evictions from. Level 1 is the only level that allocates a line
// on a missed access; level 2+ only gains lines via EvictedFromLowerCache.
type HierarchicalCache struct {
	Level    int
	Geometry Geometry
	Policy   ReplacementPolicy

	sets [][]Line

	// next is the next-higher cache level (L1's next is L2, L2's next is
	// L3); nil at the top of the hierarchy, where a miss falls through to
	// main memory.
	next *HierarchicalCache

	indexShift, indexMask uint64
	tagShift              uint64
}

// NewHierarchicalCache constructs a cache level of the given geometry. next
// may be nil (this is the last level before memory).
func NewHierarchicalCache(level int, geom Geometry, policy ReplacementPolicy, next *HierarchicalCache) *HierarchicalCache {
	geom.validate()
	if policy == nil {
		policy = LRUPolicy
	}
	numSets := geom.numSets()
	sets := make([][]Line, numSets)
	for i := range sets {
		sets[i] = make([]Line, geom.Assoc)
	}
	blockOffsetBits := uint64(bits.TrailingZeros(uint(geom.BlockSize)))
	indexBits := uint64(bits.TrailingZeros(uint(numSets)))
	return &HierarchicalCache{
		Level:      level,
		Geometry:   geom,
		Policy:     policy,
		sets:       sets,
		next:       next,
		indexShift: blockOffsetBits,
		indexMask:  uint64(numSets) - 1,
		tagShift:   blockOffsetBits + indexBits,
	}
}

func (c *HierarchicalCache) indexOf(addr BlockAddr) uint64 {
	return (uint64(addr) >> c.indexShift) & c.indexMask
}

func (c *HierarchicalCache) tagOf(addr BlockAddr) uint64 {
	return uint64(addr) >> c.tagShift
}

func (c *HierarchicalCache) findInSet(set []Line, tag uint64) int {
	for i := range set {
		if set[i].Valid && set[i].Tag == tag {
			return i
		}
	}
	return -1
}

func (c *HierarchicalCache) moveToFront(set []Line, i int) {
	if i == 0 {
		return
	}
	line := set[i]
	copy(set[1:i+1], set[0:i])
	set[0] = line
}

// removeAndSinkToBack erases the line at i and sinks the freed slot to the
// tail (LRU position), shifting everything after i one step toward the
// front — the same effect as the original's vector erase()+push_back(new
// Line()). The freed slot must land at the tail, not the front, so the
// replacement policy (which picks victims from the LRU end) finds and
// reuses it before evicting a still-valid line.
func (c *HierarchicalCache) removeAndSinkToBack(set []Line, i int) {
	copy(set[i:], set[i+1:])
	set[len(set)-1] = Line{}
}

// Access searches this cache for addr. On a hit it reports the level the
// hit occurred at, updates LRU order (L1: MRU promotion; L2+: the hit line
// is removed and returned to the caller so it can be installed in L1 —
// only one copy is kept system-wide), and writes the line's contents into
// out. On a full miss it recurses to the next level, and on a miss at the
// top of the hierarchy returns MissedToMemory with a fresh line in state
// Invalid.
func (c *HierarchicalCache) Access(addr BlockAddr, out *Line) HitLevel {
	idx := c.indexOf(addr)
	tag := c.tagOf(addr)
	set := c.sets[idx]

	if i := c.findInSet(set, tag); i >= 0 {
		*out = set[i]
		if c.Level == 1 {
			c.moveToFront(set, i)
		} else {
			// L2+: the line moves down to L1. Remove it from this level,
			// sinking the freed slot to the tail rather than leaving it at
			// MRU, so it is the next victim picked instead of a valid line.
			c.removeAndSinkToBack(set, i)
		}
		return levelToHit(c.Level)
	}

	if c.next == nil {
		*out = Line{}
		return MissedToMemory
	}
	return c.next.Access(addr, out)
}

// Search is the read-only variant of Access: it reports the hit level and
// fills out, but never mutates LRU order or removes a line from L2+.
func (c *HierarchicalCache) Search(addr BlockAddr, out *Line) HitLevel {
	idx := c.indexOf(addr)
	tag := c.tagOf(addr)
	set := c.sets[idx]

	if i := c.findInSet(set, tag); i >= 0 {
		*out = set[i]
		return levelToHit(c.Level)
	}
	if c.next == nil {
		*out = Line{}
		return MissedToMemory
	}
	return c.next.Search(addr, out)
}

func levelToHit(level int) HitLevel {
	switch level {
	case 1:
		return HitL1
	case 2:
		return HitL2
	case 3:
		return HitL3
	default:
		return MissedToMemory
	}
}

// EvictedFromLowerCache inserts a line displaced from the level below,
// addressed by block-aligned blockAddr. If line is invalid the insert is a
// no-op — there is nothing to keep. The replacement policy chooses a
// victim in the target set; if the victim is itself valid, it is forwarded
// to the next-higher level, or destroyed if this is the last level.
func (c *HierarchicalCache) EvictedFromLowerCache(line Line, blockAddr BlockAddr) {
	if !line.Valid {
		return
	}
	idx := c.indexOf(blockAddr)
	set := c.sets[idx]
	line.Tag = c.tagOf(blockAddr)

	if i := c.findInSet(set, line.Tag); i >= 0 {
		set[i] = line
		c.moveToFront(set, i)
		return
	}

	victimIdx := c.Policy(set, c.Level)
	victim := set[victimIdx]
	set[victimIdx] = line
	c.moveToFront(set, victimIdx)

	if victim.Valid {
		victimAddr := c.reconstructAddr(idx, victim.Tag)
		if c.next != nil {
			c.next.EvictedFromLowerCache(victim, victimAddr)
		}
		// else: destroyed — this was the last level.
	}
}

func (c *HierarchicalCache) reconstructAddr(index uint64, tag uint64) BlockAddr {
	return BlockAddr((tag << c.tagShift) | (index << c.indexShift))
}

// Invalidate clears any line matching addr in this level. A no-op if addr
// is not present — unlike EvictedFromLowerCache, an invalid line here is
// the desired end state, not "nothing to insert".
func (c *HierarchicalCache) Invalidate(addr BlockAddr) {
	idx := c.indexOf(addr)
	tag := c.tagOf(addr)
	set := c.sets[idx]
	if i := c.findInSet(set, tag); i >= 0 {
		set[i] = Line{}
	}
}

// VisitAllLines calls fn on every valid line in this level, in no defined order,
// passing a pointer so fn may mutate state in place (used by the store
// buffer drain to clear Dirty bits).
func (c *HierarchicalCache) VisitAllLines(fn func(line *Line)) {
	for s := range c.sets {
		set := c.sets[s]
		for i := range set {
			if set[i].Valid {
				fn(&set[i])
			}
		}
	}
}
