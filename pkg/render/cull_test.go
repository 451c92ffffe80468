package render

import (
	"math"
	"testing"

	"github.com/taigrr/tessel/pkg/math3d"
)

func newTestCuller(policy CullPolicy) *Culler {
	c := NewCuller()
	c.Policy = policy
	eye := math3d.V3(3, 2, 1)
	view := math3d.LookAt(eye, math3d.V3(3, 2, -10), math3d.Up())
	proj := math3d.Perspective(math.Pi/3, 1, 0.5, c.Far)
	c.Update(view, proj, eye)
	return c
}

func TestShouldRenderBeyondFarIsRejected(t *testing.T) {
	c := newTestCuller(CullDistance)
	dirs := []math3d.Vec3{
		math3d.V3(1, 0, 0), math3d.V3(0, 1, 0), math3d.V3(0, 0, -1),
		math3d.V3(1, 1, 1).Normalize(), math3d.V3(-2, 0, 5).Normalize(),
	}
	radii := []float64{0, 0.5, 10, 250}
	for _, dir := range dirs {
		for _, r := range radii {
			threshold := c.Far + r + c.Margin
			center := c.Eye.Add(dir.Scale(threshold + 1))
			if c.ShouldRender(center, r) {
				t.Errorf("ShouldRender(dir=%v, r=%v) beyond threshold = true, want false", dir, r)
			}
		}
	}
}

func TestShouldRenderCenteredOnCamera(t *testing.T) {
	for _, policy := range []CullPolicy{CullDistance, CullFrustumAndDistance} {
		t.Run(policy.String(), func(t *testing.T) {
			c := newTestCuller(policy)
			for _, r := range []float64{1, 50, c.Far} {
				if !c.ShouldRender(c.Eye, r) {
					t.Errorf("ShouldRender(eye, %v) = false, want true", r)
				}
			}
		})
	}
}

func TestShouldRenderPolicyDifference(t *testing.T) {
	// Directly behind the camera and well within range.
	behind := math3d.V3(3, 2, 40)

	if !newTestCuller(CullDistance).ShouldRender(behind, 1) {
		t.Error("distance policy rejected an object within range")
	}
	if newTestCuller(CullFrustumAndDistance).ShouldRender(behind, 1) {
		t.Error("frustum policy accepted an object behind the camera")
	}
}

func TestShouldRenderAABB(t *testing.T) {
	c := newTestCuller(CullDistance)
	if !c.ShouldRenderAABB(math3d.V3(0, 0, -20), math3d.V3(2, 2, -18)) {
		t.Error("nearby box rejected")
	}
	// A box whose enclosing sphere reaches back inside the threshold is kept.
	far := c.Far + c.Margin
	if !c.ShouldRenderAABB(math3d.V3(3, 2, 1-far-10), math3d.V3(3, 2, 1-far+10)) {
		t.Error("box straddling the threshold rejected")
	}
	if c.ShouldRenderAABB(math3d.V3(3, 2, 1-far-30), math3d.V3(3, 2, 1-far-20)) {
		t.Error("box beyond the threshold accepted")
	}
}

func TestParseCullPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CullPolicy
		wantErr bool
	}{
		{"", CullDistance, false},
		{"distance", CullDistance, false},
		{"Frustum", CullFrustumAndDistance, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCullPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCullPolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCullPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
