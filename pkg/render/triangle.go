package render

import (
	"image"
	"image/color"
	"math"
)

// Sub-pixel precision for edge setup. Coordinates are snapped to 1/16 pixel.
const (
	subpixelBits = 4
	subpixelOne  = 1 << subpixelBits
	subpixelHalf = subpixelOne / 2

	// guardBand bounds vertex coordinates so edge products stay far from
	// int64 overflow.
	guardBand = 1 << 22
)

// ScreenVertex is a projected vertex: pixel position, reciprocal depth and
// color.
type ScreenVertex struct {
	X, Y  float64
	Z     float64
	Color color.RGBA
}

// edge holds the line equation A*x + B*y + C in fixed-point units. It is
// non-negative on the inner side once a triangle is set up.
type edge struct {
	A, B, C int64
}

func (e edge) at(x, y int64) int64 {
	return e.A*x + e.B*y + e.C
}

// topLeft reports whether e is a left edge (interior to its right) or a
// horizontal top edge (interior below, y grows downwards). It assumes the
// inner side is non-negative.
func (e edge) topLeft() bool {
	return e.A > 0 || (e.A == 0 && e.B > 0)
}

// gradient is an attribute expressed as a linear function of the pixel
// coordinate: value(px, py) = Base + DX*px + DY*py.
type gradient struct {
	Base, DX, DY float64
}

func (g gradient) at(x, y int) float64 {
	return g.Base + g.DX*float64(x) + g.DY*float64(y)
}

// ScreenTriangle is a triangle ready for rasterization. It is built once
// per frame and never mutated afterwards.
type ScreenTriangle struct {
	V [3]ScreenVertex

	edges [3]edge
	area  int64

	// Pixel bounding box, inclusive, clamped to the viewport it was built for.
	MinX, MinY int
	MaxX, MaxY int

	z, r, g, b gradient
}

// NewScreenTriangle snaps v to fixed point and computes edge equations,
// bounding box and attribute gradients. It reports false for zero-area
// triangles and triangles entirely outside a width×height viewport.
// Either winding is accepted; backface culling happens earlier.
func NewScreenTriangle(v [3]ScreenVertex, width, height int) (ScreenTriangle, bool) {
	var fx, fy [3]int64
	for i := range v {
		if math.Abs(v[i].X) > guardBand || math.Abs(v[i].Y) > guardBand {
			return ScreenTriangle{}, false
		}
		fx[i] = snap(v[i].X)
		fy[i] = snap(v[i].Y)
	}

	t := ScreenTriangle{V: v}
	t.edges[0] = edgeFrom(fx[1], fy[1], fx[2], fy[2])
	t.edges[1] = edgeFrom(fx[2], fy[2], fx[0], fy[0])
	t.edges[2] = edgeFrom(fx[0], fy[0], fx[1], fy[1])

	// Edge 01 evaluated at vertex 2 is twice the signed area.
	t.area = t.edges[2].at(fx[2], fy[2])
	if t.area == 0 {
		return ScreenTriangle{}, false
	}
	if t.area < 0 {
		for i := range t.edges {
			t.edges[i] = edge{-t.edges[i].A, -t.edges[i].B, -t.edges[i].C}
		}
		t.area = -t.area
	}

	minFX := min(fx[0], fx[1], fx[2])
	maxFX := max(fx[0], fx[1], fx[2])
	minFY := min(fy[0], fy[1], fy[2])
	maxFY := max(fy[0], fy[1], fy[2])
	t.MinX = max(int(minFX>>subpixelBits), 0)
	t.MinY = max(int(minFY>>subpixelBits), 0)
	t.MaxX = min(int((maxFX+subpixelOne-1)>>subpixelBits), width-1)
	t.MaxY = min(int((maxFY+subpixelOne-1)>>subpixelBits), height-1)
	if t.MinX > t.MaxX || t.MinY > t.MaxY {
		return ScreenTriangle{}, false
	}

	t.z = t.gradientOf(v[0].Z, v[1].Z, v[2].Z)
	t.r = t.gradientOf(float64(v[0].Color.R), float64(v[1].Color.R), float64(v[2].Color.R))
	t.g = t.gradientOf(float64(v[0].Color.G), float64(v[1].Color.G), float64(v[2].Color.G))
	t.b = t.gradientOf(float64(v[0].Color.B), float64(v[1].Color.B), float64(v[2].Color.B))

	// Top-left fill rule: a pixel center exactly on an edge belongs to the
	// triangle only when that edge is a top or left edge. Sample points are
	// integers in fixed point, so biasing C by one turns >= 0 into > 0.
	for i := range t.edges {
		if !t.edges[i].topLeft() {
			t.edges[i].C--
		}
	}
	return t, true
}

// Bounds returns the pixel bounding box as a half-open rectangle.
func (t *ScreenTriangle) Bounds() image.Rectangle {
	return image.Rect(t.MinX, t.MinY, t.MaxX+1, t.MaxY+1)
}

// Area2 returns twice the triangle area in fixed-point units squared.
func (t *ScreenTriangle) Area2() int64 {
	return t.area
}

// DepthAt returns the interpolated depth at the center of pixel (x, y).
func (t *ScreenTriangle) DepthAt(x, y int) float64 {
	return t.z.at(x, y)
}

// Covers reports whether the center of pixel (x, y) is inside the triangle
// under the top-left fill rule.
func (t *ScreenTriangle) Covers(x, y int) bool {
	cx, cy := center(x), center(y)
	return t.edges[0].at(cx, cy)|t.edges[1].at(cx, cy)|t.edges[2].at(cx, cy) >= 0
}

// gradientOf builds the barycentric interpolation of a0, a1, a2 as a plane
// over pixel coordinates. Vertex i is weighted by the edge opposite it.
func (t *ScreenTriangle) gradientOf(a0, a1, a2 float64) gradient {
	e0, e1, e2 := t.edges[0], t.edges[1], t.edges[2]
	area := float64(t.area)
	base := a0*float64(e0.A*subpixelHalf+e0.B*subpixelHalf+e0.C) +
		a1*float64(e1.A*subpixelHalf+e1.B*subpixelHalf+e1.C) +
		a2*float64(e2.A*subpixelHalf+e2.B*subpixelHalf+e2.C)
	dx := a0*float64(e0.A) + a1*float64(e1.A) + a2*float64(e2.A)
	dy := a0*float64(e0.B) + a1*float64(e1.B) + a2*float64(e2.B)
	return gradient{
		Base: base / area,
		DX:   dx * subpixelOne / area,
		DY:   dy * subpixelOne / area,
	}
}

func edgeFrom(x0, y0, x1, y1 int64) edge {
	return edge{A: y0 - y1, B: x1 - x0, C: x0*y1 - x1*y0}
}

func snap(v float64) int64 {
	f := v * subpixelOne
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// center returns the fixed-point coordinate of a pixel center.
func center(p int) int64 {
	return int64(p)<<subpixelBits + subpixelHalf
}
