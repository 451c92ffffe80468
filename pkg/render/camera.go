package render

import (
	"math"

	"github.com/taigrr/tessel/pkg/math3d"
)

// Camera orbits a target point. It stands in for the game layer that
// supplies view and projection matrices each frame.
type Camera struct {
	Target   math3d.Vec3
	Distance float64
	Yaw      float64 // around +Y, radians
	Pitch    float64 // elevation, radians

	FOV    float64 // vertical, radians
	Aspect float64
	Near   float64
	Far    float64
}

// NewCamera returns a camera 10 units from the origin looking slightly down.
func NewCamera(aspect float64) *Camera {
	return &Camera{
		Distance: 10,
		Pitch:    0.35,
		FOV:      math.Pi / 3,
		Aspect:   aspect,
		Near:     0.1,
		Far:      1000,
	}
}

// Orbit adds deltas to yaw and pitch, clamping pitch short of the poles.
func (c *Camera) Orbit(dYaw, dPitch float64) {
	const maxPitch = math.Pi/2 - 0.01
	c.Yaw += dYaw
	c.Pitch = math.Max(-maxPitch, math.Min(maxPitch, c.Pitch+dPitch))
}

// Eye returns the camera position.
func (c *Camera) Eye() math3d.Vec3 {
	cp := math.Cos(c.Pitch)
	off := math3d.V3(math.Sin(c.Yaw)*cp, math.Sin(c.Pitch), math.Cos(c.Yaw)*cp)
	return c.Target.Add(off.Scale(c.Distance))
}

// View returns the view matrix.
func (c *Camera) View() math3d.Mat4 {
	return math3d.LookAt(c.Eye(), c.Target, math3d.Up())
}

// Projection returns the perspective projection.
func (c *Camera) Projection() math3d.Mat4 {
	return math3d.Perspective(c.FOV, c.Aspect, c.Near, c.Far)
}

// ClipRange returns the w range matching the projection.
func (c *Camera) ClipRange() ClipRange {
	return ClipRange{Near: c.Near, Far: c.Far}
}
