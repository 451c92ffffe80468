// Package tiles splits the screen into fixed-size tiles and distributes
// per-frame triangles among them. Binning is single-threaded; the queue
// hands tiles to any number of rasterizing workers without locks.
package tiles

import "image"

// DefaultTileSize is the tile side in pixels. A 64x64 tile of color and
// depth fits in a typical L1 data cache.
const DefaultTileSize = 64

// Tile is one rectangle of the grid.
type Tile struct {
	Index int
	X, Y  int
	W, H  int
}

// Rect returns the tile as a half-open rectangle.
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.W, t.Y+t.H)
}

// Grid covers a Width×Height viewport with tiles of side Size, listed
// row-major. Tiles on the right and bottom edges shrink to fit.
type Grid struct {
	Width, Height int
	Size          int
	Cols, Rows    int

	tiles []Tile
}

// NewGrid builds the grid for a viewport. A non-positive size selects
// DefaultTileSize. Rebuild the grid whenever the resolution changes.
func NewGrid(width, height, size int) *Grid {
	if size <= 0 {
		size = DefaultTileSize
	}
	g := &Grid{
		Width:  width,
		Height: height,
		Size:   size,
		Cols:   (width + size - 1) / size,
		Rows:   (height + size - 1) / size,
	}
	g.tiles = make([]Tile, 0, g.Cols*g.Rows)
	for ty := range g.Rows {
		for tx := range g.Cols {
			x, y := tx*size, ty*size
			g.tiles = append(g.tiles, Tile{
				Index: len(g.tiles),
				X:     x,
				Y:     y,
				W:     min(size, width-x),
				H:     min(size, height-y),
			})
		}
	}
	return g
}

// Len returns the number of tiles.
func (g *Grid) Len() int { return len(g.tiles) }

// Tile returns tile i.
func (g *Grid) Tile(i int) Tile { return g.tiles[i] }

// Tiles returns every tile in row-major order. The slice must not be
// modified.
func (g *Grid) Tiles() []Tile { return g.tiles }

// TileAt returns the index of the tile containing pixel (x, y), or -1.
func (g *Grid) TileAt(x, y int) int {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return -1
	}
	return (y/g.Size)*g.Cols + x/g.Size
}

// Span returns the inclusive column and row range of tiles overlapped by
// the pixel rectangle r, clamped to the grid.
func (g *Grid) Span(r image.Rectangle) (c0, r0, c1, r1 int, ok bool) {
	r = r.Intersect(image.Rect(0, 0, g.Width, g.Height))
	if r.Empty() {
		return 0, 0, 0, 0, false
	}
	c0, r0 = r.Min.X/g.Size, r.Min.Y/g.Size
	c1 = min((r.Max.X-1)/g.Size, g.Cols-1)
	r1 = min((r.Max.Y-1)/g.Size, g.Rows-1)
	return c0, r0, c1, r1, true
}
