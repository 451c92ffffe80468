package main

import (
	"math"

	"github.com/charmbracelet/harmonica"

	"github.com/taigrr/tessel/pkg/render"
)

const (
	minDistance = 2.0
	maxDistance = 60.0
)

// orbit animates the camera around its target. Yaw velocity decays to
// zero on a critically damped spring; distance chases a zoom target on a
// softer one.
type orbit struct {
	yaw       float64
	yawVel    float64
	yawAccel  float64
	velSpring harmonica.Spring

	dist       float64
	distVel    float64
	distTarget float64
	zoomSpring harmonica.Spring

	// spin is added to yaw every frame.
	spin float64
}

func newOrbit(fps int, dist float64) *orbit {
	return &orbit{
		velSpring:  harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
		zoomSpring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.8),
		dist:       dist,
		distTarget: dist,
	}
}

func (o *orbit) impulse(dYaw float64) {
	o.yawVel += dYaw
}

func (o *orbit) zoom(delta float64) {
	o.distTarget = math.Max(minDistance, math.Min(maxDistance, o.distTarget+delta))
}

func (o *orbit) reset(dist float64) {
	o.yaw, o.yawVel, o.yawAccel = 0, 0, 0
	o.distTarget = dist
}

// step advances one frame and writes the result into cam.
func (o *orbit) step(cam *render.Camera) {
	o.yaw += o.yawVel + o.spin
	o.yawVel, o.yawAccel = o.velSpring.Update(o.yawVel, o.yawAccel, 0)
	o.dist, o.distVel = o.zoomSpring.Update(o.dist, o.distVel, o.distTarget)
	cam.Yaw = o.yaw
	cam.Distance = o.dist
}
