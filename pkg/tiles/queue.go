package tiles

import "sync/atomic"

// Queue hands out the tiles of a grid to concurrent workers. Claims are a
// single atomic increment; no tile is returned twice between Resets.
type Queue struct {
	grid *Grid
	next atomic.Int64
}

// NewQueue returns a queue over grid.
func NewQueue(grid *Grid) *Queue {
	return &Queue{grid: grid}
}

// Claim returns the next unclaimed tile, or false once all are taken.
func (q *Queue) Claim() (Tile, bool) {
	idx := int(q.next.Add(1) - 1)
	if idx >= q.grid.Len() {
		return Tile{}, false
	}
	return q.grid.Tile(idx), true
}

// Reset makes every tile claimable again. It must not race with Claim.
func (q *Queue) Reset() {
	q.next.Store(0)
}

// Len returns the number of tiles in the queue.
func (q *Queue) Len() int { return q.grid.Len() }
