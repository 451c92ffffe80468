package tiles

import (
	"sync/atomic"

	"github.com/taigrr/tessel/pkg/render"
)

// DefaultMaxTriangles caps the triangles accepted per frame.
const DefaultMaxTriangles = 32768

// Buffer is a fixed-capacity arena of screen triangles with an atomic write
// cursor. Pushes beyond capacity are dropped; the cursor keeps counting so
// the overflow is visible in Dropped.
type Buffer struct {
	tris   []render.ScreenTriangle
	cursor atomic.Int64
}

// NewBuffer allocates a buffer holding up to capacity triangles. A
// non-positive capacity selects DefaultMaxTriangles.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultMaxTriangles
	}
	return &Buffer{tris: make([]render.ScreenTriangle, capacity)}
}

// Push stores tri and returns its index. It reports false once the buffer
// is full.
func (b *Buffer) Push(tri render.ScreenTriangle) (int, bool) {
	idx := int(b.cursor.Add(1) - 1)
	if idx >= len(b.tris) {
		return 0, false
	}
	b.tris[idx] = tri
	return idx, true
}

// Len returns the number of stored triangles.
func (b *Buffer) Len() int {
	return min(int(b.cursor.Load()), len(b.tris))
}

// Cap returns the capacity.
func (b *Buffer) Cap() int { return len(b.tris) }

// Dropped returns how many pushes were rejected since the last Reset.
func (b *Buffer) Dropped() int {
	return max(int(b.cursor.Load())-len(b.tris), 0)
}

// Triangles returns the stored triangles. The slice aliases the arena and
// is valid until the next Reset.
func (b *Buffer) Triangles() []render.ScreenTriangle {
	return b.tris[:b.Len()]
}

// Reset empties the buffer for a new frame.
func (b *Buffer) Reset() {
	b.cursor.Store(0)
}
