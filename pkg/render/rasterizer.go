package render

import "image"

// blockSize is the side of the square pixel blocks tested for trivial
// rejection before any per-pixel work.
const blockSize = 8

// RasterStats counts work done by one RasterizeTile call.
type RasterStats struct {
	Triangles     int
	PixelsTested  int
	PixelsWritten int
	BlocksSkipped int
}

// Add accumulates o into s.
func (s *RasterStats) Add(o RasterStats) {
	s.Triangles += o.Triangles
	s.PixelsTested += o.PixelsTested
	s.PixelsWritten += o.PixelsWritten
	s.BlocksSkipped += o.BlocksSkipped
}

// RasterizeTile draws the triangles referenced by bin into tile. Only pixels
// inside tile are touched, so callers rasterizing disjoint tiles may run
// concurrently on the same Target.
func RasterizeTile(t *Target, tile image.Rectangle, tris []ScreenTriangle, bin []int32) RasterStats {
	var st RasterStats
	tile = tile.Intersect(image.Rect(0, 0, t.Width, t.Height))
	if tile.Empty() {
		return st
	}
	for _, idx := range bin {
		if int(idx) >= len(tris) {
			continue
		}
		st.Add(Rasterize(t, tile, &tris[idx]))
	}
	return st
}

// Rasterize draws one triangle clipped to clip. A pixel is written only when
// its interpolated depth is strictly greater than the stored depth.
func Rasterize(t *Target, clip image.Rectangle, tri *ScreenTriangle) RasterStats {
	var st RasterStats
	r := tri.Bounds().Intersect(clip)
	if r.Empty() {
		return st
	}
	st.Triangles = 1

	e0, e1, e2 := tri.edges[0], tri.edges[1], tri.edges[2]
	step0, step1, step2 := e0.A*subpixelOne, e1.A*subpixelOne, e2.A*subpixelOne

	for by := r.Min.Y; by < r.Max.Y; by += blockSize {
		bye := min(by+blockSize, r.Max.Y)
		for bx := r.Min.X; bx < r.Max.X; bx += blockSize {
			bxe := min(bx+blockSize, r.Max.X)
			if tri.blockOutside(bx, by, bxe-1, bye-1) {
				st.BlocksSkipped++
				continue
			}
			for y := by; y < bye; y++ {
				cx, cy := center(bx), center(y)
				w0, w1, w2 := e0.at(cx, cy), e1.at(cx, cy), e2.at(cx, cy)
				row := y * t.Stride
				drow := y * t.Width
				for x := bx; x < bxe; x++ {
					st.PixelsTested++
					if w0|w1|w2 >= 0 {
						z := float32(tri.z.at(x, y))
						if z > t.Depth[drow+x] {
							t.Depth[drow+x] = z
							t.Color[row+x] = 0xFF000000 |
								uint32(channel(tri.r.at(x, y)))<<16 |
								uint32(channel(tri.g.at(x, y)))<<8 |
								uint32(channel(tri.b.at(x, y)))
							st.PixelsWritten++
						}
					}
					w0 += step0
					w1 += step1
					w2 += step2
				}
			}
		}
	}
	return st
}

// blockOutside reports whether the pixel centers of the block spanning
// (x0,y0)..(x1,y1) all lie outside one edge. Edges are linear, so testing
// the four corners is exact.
func (t *ScreenTriangle) blockOutside(x0, y0, x1, y1 int) bool {
	cx0, cy0, cx1, cy1 := center(x0), center(y0), center(x1), center(y1)
	for _, e := range t.edges {
		if e.at(cx0, cy0) < 0 && e.at(cx1, cy0) < 0 && e.at(cx0, cy1) < 0 && e.at(cx1, cy1) < 0 {
			return true
		}
	}
	return false
}

func channel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
