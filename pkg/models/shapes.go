package models

import (
	"image/color"

	"github.com/taigrr/tessel/pkg/math3d"
)

// addQuad appends a quad centered at c with half-extents along u and v. The
// face points along u × v and both triangles wind counter-clockwise when
// viewed from that side.
func (m *Mesh) addQuad(c, u, v math3d.Vec3, col color.RGBA) {
	n := u.Cross(v).Normalize()
	corners := [4]math3d.Vec3{
		c.Sub(u).Sub(v),
		c.Add(u).Sub(v),
		c.Add(u).Add(v),
		c.Sub(u).Add(v),
	}
	base := len(m.Vertices)
	for i, p := range corners {
		uv := math3d.V2(float64(i&1^i>>1), float64(i>>1))
		m.AddVertex(Vertex{Position: p, Normal: n, Color: col, UV: uv})
	}
	m.AddFace(base, base+1, base+2)
	m.AddFace(base, base+2, base+3)
}

// NewQuad returns a w×h rectangle in the XY plane facing +Z.
func NewQuad(w, h float64, col color.RGBA) *Mesh {
	m := NewMesh("quad")
	m.addQuad(math3d.Vec3{}, math3d.V3(w/2, 0, 0), math3d.V3(0, h/2, 0), col)
	m.CalculateBounds()
	return m
}

// NewCube returns an axis-aligned cube of the given edge length centered on
// the origin. Each face takes the next color from colors, cycling.
func NewCube(size float64, colors ...color.RGBA) *Mesh {
	if len(colors) == 0 {
		colors = []color.RGBA{{R: 255, G: 255, B: 255, A: 255}}
	}
	s := size / 2
	faces := [6][2]math3d.Vec3{
		{math3d.V3(0, 0, -s), math3d.V3(0, s, 0)}, // +X
		{math3d.V3(0, 0, s), math3d.V3(0, s, 0)},  // -X
		{math3d.V3(s, 0, 0), math3d.V3(0, 0, -s)}, // +Y
		{math3d.V3(s, 0, 0), math3d.V3(0, 0, s)},  // -Y
		{math3d.V3(s, 0, 0), math3d.V3(0, s, 0)},  // +Z
		{math3d.V3(-s, 0, 0), math3d.V3(0, s, 0)}, // -Z
	}
	m := NewMesh("cube")
	for i, f := range faces {
		n := f[0].Cross(f[1]).Normalize().Scale(s)
		m.addQuad(n, f[0], f[1], colors[i%len(colors)])
	}
	m.CalculateBounds()
	return m
}

// NewGrid returns an n×n checkerboard in the XZ plane facing +Y, each cell
// spacing wide, alternating between a and b.
func NewGrid(n int, spacing float64, a, b color.RGBA) *Mesh {
	m := NewMesh("grid")
	half := float64(n) * spacing / 2
	hs := spacing / 2
	for row := range n {
		for col := range n {
			c := math3d.V3(-half+(float64(col)+0.5)*spacing, 0, -half+(float64(row)+0.5)*spacing)
			clr := a
			if (row+col)%2 == 1 {
				clr = b
			}
			m.addQuad(c, math3d.V3(hs, 0, 0), math3d.V3(0, 0, -hs), clr)
		}
	}
	m.CalculateBounds()
	return m
}
