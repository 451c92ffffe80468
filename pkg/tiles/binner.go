package tiles

import "github.com/taigrr/tessel/pkg/render"

// Stats summarizes one frame of binning.
type Stats struct {
	Triangles     int // stored in the buffer
	Dropped       int // rejected by a full buffer
	BinOverflows  int // rejected by a full bin
	TilesWithWork int
}

// Binner routes screen triangles into the bins of every tile their
// bounding box overlaps. It is not safe for concurrent use: binning runs
// on one goroutine in submission order.
type Binner struct {
	grid *Grid
	buf  *Buffer
	bins *Bins
}

// NewBinner wires a grid, buffer and bins together. bins must hold at
// least grid.Len() tiles.
func NewBinner(grid *Grid, buf *Buffer, bins *Bins) *Binner {
	return &Binner{grid: grid, buf: buf, bins: bins}
}

// Grid returns the tile grid.
func (b *Binner) Grid() *Grid { return b.grid }

// Buffer returns the triangle buffer.
func (b *Binner) Buffer() *Buffer { return b.buf }

// Bins returns the tile bins.
func (b *Binner) Bins() *Bins { return b.bins }

// Bin stores tri and inserts its index into each overlapped tile. It
// returns the number of tiles that accepted it; zero means the buffer was
// full or the triangle lies outside the grid.
func (b *Binner) Bin(tri render.ScreenTriangle) int {
	c0, r0, c1, r1, ok := b.grid.Span(tri.Bounds())
	if !ok {
		return 0
	}
	idx, ok := b.buf.Push(tri)
	if !ok {
		return 0
	}
	n := 0
	for ty := r0; ty <= r1; ty++ {
		row := ty * b.grid.Cols
		for tx := c0; tx <= c1; tx++ {
			if b.bins.Insert(row+tx, int32(idx)) {
				n++
			}
		}
	}
	return n
}

// Reset clears the buffer and bins for a new frame.
func (b *Binner) Reset() {
	b.buf.Reset()
	b.bins.Reset()
}

// Stats reports the current frame's counters.
func (b *Binner) Stats() Stats {
	s := Stats{
		Triangles:    b.buf.Len(),
		Dropped:      b.buf.Dropped(),
		BinOverflows: b.bins.Overflows(),
	}
	for i := range b.grid.Len() {
		if b.bins.Count(i) > 0 {
			s.TilesWithWork++
		}
	}
	return s
}
