// Package render holds the software half of the tessel pipeline: surfaces,
// view culling, vertex transform, triangle setup and the tile rasterizer.
package render

import (
	"github.com/taigrr/tessel/pkg/math3d"
)

// planeEpsilon is the shortest normal a plane is normalized by.
const planeEpsilon = 1e-4

// Plane is Normal·p + D = 0, with the normal pointing into the frustum.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// Normalize scales the plane so its normal has unit length. Planes with a
// near-zero normal are left as they are.
func (p *Plane) Normalize() {
	l := p.Normal.Len()
	if l <= planeEpsilon {
		return
	}
	p.Normal = p.Normal.Scale(1 / l)
	p.D /= l
}

// Distance returns the signed distance from the plane to point. Positive is
// inside.
func (p Plane) Distance(point math3d.Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum plane indices.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum is the six clipping planes of a camera.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustumFromMatrix extracts the planes from a combined view-projection
// matrix (Gribb/Hartmann): the last row plus or minus each of the first
// three rows.
func NewFrustumFromMatrix(m math3d.Mat4) Frustum {
	var f Frustum
	w := m.Row(3)
	for i := range 3 {
		r := m.Row(i)
		f.Planes[2*i] = planeOf(w.Add(r))
		f.Planes[2*i+1] = planeOf(w.Sub(r))
	}
	for i := range f.Planes {
		f.Planes[i].Normalize()
	}
	return f
}

func planeOf(v math3d.Vec4) Plane {
	return Plane{Normal: v.XYZ(), D: v.W}
}

// IntersectsSphere reports whether any part of the sphere is inside.
func (f Frustum) IntersectsSphere(center math3d.Vec3, radius float64) bool {
	for _, p := range f.Planes {
		if p.Distance(center) < -radius {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether any part of the box is inside, testing the
// corner furthest along each plane normal.
func (f Frustum) IntersectsAABB(lo, hi math3d.Vec3) bool {
	for _, p := range f.Planes {
		v := math3d.V3(
			pick(p.Normal.X >= 0, hi.X, lo.X),
			pick(p.Normal.Y >= 0, hi.Y, lo.Y),
			pick(p.Normal.Z >= 0, hi.Z, lo.Z),
		)
		if p.Distance(v) < 0 {
			return false
		}
	}
	return true
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}
