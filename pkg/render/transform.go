package render

import (
	"math"

	"github.com/taigrr/tessel/pkg/math3d"
	"github.com/taigrr/tessel/pkg/models"
)

// wEpsilon is the smallest |w| the perspective divide is applied to.
const wEpsilon = 1e-4

// Viewport is the pixel size of the render target.
type Viewport struct {
	Width  int
	Height int
}

// ClipRange bounds the clip-space w (view distance for a perspective
// projection) a triangle may occupy.
type ClipRange struct {
	Near float64
	Far  float64
}

// DefaultClipRange matches the culling defaults.
var DefaultClipRange = ClipRange{Near: 0.1, Far: 1000}

// Project maps a clip-space position to the viewport. Depth is 1/w so nearer
// points get larger values.
func Project(c math3d.Vec4, vp Viewport) (x, y, depth float64) {
	inv := 1.0
	if math.Abs(c.W) >= wEpsilon {
		inv = 1 / c.W
	}
	nx, ny := c.X*inv, c.Y*inv
	x = (nx + 1) * 0.5 * float64(vp.Width)
	y = (1 - ny) * 0.5 * float64(vp.Height)
	return x, y, inv
}

// Cross2D returns the z component of (b-a) × (c-a) in screen space. Screen Y
// grows downward, so a triangle that winds counter-clockwise in the world
// and faces the camera yields a negative value.
func Cross2D(a, b, c ScreenVertex) float64 {
	e1x, e1y := b.X-a.X, b.Y-a.Y
	e2x, e2y := c.X-a.X, c.Y-a.Y
	return e1x*e2y - e1y*e2x
}

// TransformTriangle projects v through mvp into vp. It reports false when
// a vertex is nearer than clip.Near (or behind the camera), when every
// vertex is beyond clip.Far, when the triangle is back-facing or
// degenerate, or when it misses the viewport entirely.
func TransformTriangle(v [3]models.Vertex, mvp math3d.Mat4, vp Viewport, clip ClipRange) (ScreenTriangle, bool) {
	var c [3]math3d.Vec4
	beyond := 0
	for i := range v {
		c[i] = mvp.Clip(v[i].Position)
		if c[i].W < clip.Near {
			return ScreenTriangle{}, false
		}
		if c[i].W > clip.Far {
			beyond++
		}
	}
	if beyond == 3 {
		return ScreenTriangle{}, false
	}

	var sv [3]ScreenVertex
	for i := range c {
		x, y, z := Project(c[i], vp)
		sv[i] = ScreenVertex{X: x, Y: y, Z: z, Color: v[i].Color}
	}
	if Cross2D(sv[0], sv[1], sv[2]) >= 0 {
		return ScreenTriangle{}, false
	}
	return NewScreenTriangle(sv, vp.Width, vp.Height)
}
