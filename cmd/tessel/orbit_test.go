package main

import (
	"math"
	"testing"

	"github.com/taigrr/tessel/pkg/render"
)

func TestOrbitVelocityDecays(t *testing.T) {
	o := newOrbit(60, 10)
	cam := render.NewCamera(1)
	o.impulse(0.5)
	for range 600 {
		o.step(cam)
	}
	if math.Abs(o.yawVel) > 1e-3 {
		t.Errorf("yaw velocity = %v after 10s, want ~0", o.yawVel)
	}
	if cam.Yaw <= 0 {
		t.Errorf("camera yaw = %v, want positive after a positive impulse", cam.Yaw)
	}
}

func TestOrbitZoomClamps(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		want  float64
	}{
		{"in", -100, minDistance},
		{"out", 100, maxDistance},
		{"small", 3, 13},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrbit(60, 10)
			cam := render.NewCamera(1)
			o.zoom(tc.delta)
			for range 600 {
				o.step(cam)
			}
			if math.Abs(cam.Distance-tc.want) > 1e-2 {
				t.Errorf("distance = %v, want %v", cam.Distance, tc.want)
			}
		})
	}
}
