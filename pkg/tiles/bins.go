package tiles

import "sync/atomic"

// DefaultMaxPerTile caps the triangle indices held by one tile bin.
const DefaultMaxPerTile = 512

// Bins holds one bin of triangle indices per tile in a single flat arena of
// tiles×perTile slots. Each bin has its own atomic count, so inserts into
// different tiles never contend.
type Bins struct {
	perTile   int
	slots     []int32
	counts    []atomic.Int32
	overflows atomic.Int64
}

// NewBins allocates bins for n tiles. A non-positive perTile selects
// DefaultMaxPerTile.
func NewBins(n, perTile int) *Bins {
	if perTile <= 0 {
		perTile = DefaultMaxPerTile
	}
	return &Bins{
		perTile: perTile,
		slots:   make([]int32, n*perTile),
		counts:  make([]atomic.Int32, n),
	}
}

// Len returns the number of bins.
func (b *Bins) Len() int { return len(b.counts) }

// PerTile returns the capacity of each bin.
func (b *Bins) PerTile() int { return b.perTile }

// Insert appends idx to the bin of tile. It reports false and counts an
// overflow when the bin is full.
func (b *Bins) Insert(tile int, idx int32) bool {
	slot := int(b.counts[tile].Add(1) - 1)
	if slot >= b.perTile {
		b.overflows.Add(1)
		return false
	}
	b.slots[tile*b.perTile+slot] = idx
	return true
}

// Count returns the number of indices stored for tile.
func (b *Bins) Count(tile int) int {
	return min(int(b.counts[tile].Load()), b.perTile)
}

// Tile returns the populated prefix of the bin for tile. The slice aliases
// the arena and is valid until the next Reset.
func (b *Bins) Tile(tile int) []int32 {
	start := tile * b.perTile
	return b.slots[start : start+b.Count(tile)]
}

// Overflows returns the number of rejected inserts since the last Reset.
func (b *Bins) Overflows() int { return int(b.overflows.Load()) }

// Reset empties every bin.
func (b *Bins) Reset() {
	for i := range b.counts {
		b.counts[i].Store(0)
	}
	b.overflows.Store(0)
}
