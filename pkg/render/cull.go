package render

import (
	"fmt"
	"strings"

	"github.com/taigrr/tessel/pkg/math3d"
)

// CullPolicy selects which tests Culler.ShouldRender applies.
type CullPolicy int

const (
	// CullDistance rejects only objects beyond the far threshold. Frustum
	// rejection of objects straddling the screen edge caused visible
	// popping, so this is the default.
	CullDistance CullPolicy = iota
	// CullFrustumAndDistance also requires the bounding sphere to touch
	// the frustum.
	CullFrustumAndDistance
)

func (p CullPolicy) String() string {
	switch p {
	case CullDistance:
		return "distance"
	case CullFrustumAndDistance:
		return "frustum"
	default:
		return fmt.Sprintf("CullPolicy(%d)", int(p))
	}
}

// ParseCullPolicy maps a config value to a policy.
func ParseCullPolicy(s string) (CullPolicy, error) {
	switch strings.ToLower(s) {
	case "", "distance":
		return CullDistance, nil
	case "frustum", "frustum+distance":
		return CullFrustumAndDistance, nil
	default:
		return 0, fmt.Errorf("render: unknown cull policy %q", s)
	}
}

// Culler decides which objects reach the transform stage. Update it once per
// frame before querying.
type Culler struct {
	Policy CullPolicy
	Far    float64
	// Margin is added to the far threshold.
	Margin float64

	Frustum Frustum
	Eye     math3d.Vec3
}

// NewCuller returns a distance-only culler with far 500 and a margin of 100.
func NewCuller() *Culler {
	return &Culler{Policy: CullDistance, Far: 500, Margin: 100}
}

// Update rebuilds the frustum from the frame's camera.
func (c *Culler) Update(view, proj math3d.Mat4, eye math3d.Vec3) {
	c.Frustum = NewFrustumFromMatrix(proj.Mul(view))
	c.Eye = eye
}

// ShouldRender reports whether a sphere at center with radius may be visible.
func (c *Culler) ShouldRender(center math3d.Vec3, radius float64) bool {
	limit := c.Far + radius + c.Margin
	if center.Sub(c.Eye).LenSq() > limit*limit {
		return false
	}
	if c.Policy == CullFrustumAndDistance {
		return c.Frustum.IntersectsSphere(center, radius)
	}
	return true
}

// ShouldRenderAABB applies ShouldRender to the sphere enclosing the box.
func (c *Culler) ShouldRenderAABB(lo, hi math3d.Vec3) bool {
	center := lo.Add(hi).Scale(0.5)
	return c.ShouldRender(center, hi.Sub(lo).Scale(0.5).Len())
}
