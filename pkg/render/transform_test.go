package render

import (
	"image/color"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/taigrr/tessel/pkg/math3d"
	"github.com/taigrr/tessel/pkg/models"
)

var testViewport = Viewport{Width: 320, Height: 240}

func testMVP() (math3d.Mat4, math3d.Vec3) {
	eye := math3d.V3(0, 0, 10)
	view := math3d.LookAt(eye, math3d.V3(0, 0, 0), math3d.Up())
	proj := math3d.Perspective(math.Pi/3, 320.0/240.0, 0.5, 500)
	return proj.Mul(view), eye
}

func tri(a, b, c math3d.Vec3) [3]models.Vertex {
	white := color.RGBA{255, 255, 255, 255}
	return [3]models.Vertex{
		{Position: a, Color: white},
		{Position: b, Color: white},
		{Position: c, Color: white},
	}
}

func screenOf(v [3]models.Vertex, mvp math3d.Mat4) [3]ScreenVertex {
	var sv [3]ScreenVertex
	for i := range v {
		x, y, z := Project(mvp.Clip(v[i].Position), testViewport)
		sv[i] = ScreenVertex{X: x, Y: y, Z: z}
	}
	return sv
}

func TestProject(t *testing.T) {
	tests := []struct {
		name      string
		clip      math3d.Vec4
		x, y, dep float64
	}{
		{"center", math3d.V4(0, 0, 0, 1), 160, 120, 1},
		{"top right", math3d.V4(1, 1, 0, 1), 320, 0, 1},
		{"bottom left at w=2", math3d.V4(-2, -2, 0, 2), 0, 240, 0.5},
		{"tiny w skips divide", math3d.V4(0.5, 0, 0, 1e-6), 240, 120, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y, d := Project(tc.clip, testViewport)
			if math.Abs(x-tc.x) > 1e-9 || math.Abs(y-tc.y) > 1e-9 || math.Abs(d-tc.dep) > 1e-9 {
				t.Errorf("Project = (%v, %v, %v), want (%v, %v, %v)", x, y, d, tc.x, tc.y, tc.dep)
			}
		})
	}
}

// TestWindingProperty checks that every counter-clockwise triangle facing
// the camera projects to a negative cross product and that reversing the
// winding flips the sign.
func TestWindingProperty(t *testing.T) {
	mvp, eye := testMVP()
	rng := rand.New(rand.NewPCG(1, 2))
	point := func() math3d.Vec3 {
		return math3d.V3(rng.Float64()*6-3, rng.Float64()*4-2, rng.Float64()*6-3)
	}

	checked := 0
	for checked < 500 {
		a, b, c := point(), point(), point()
		n := b.Sub(a).Cross(c.Sub(a))
		toEye := eye.Sub(a)
		// Skip slivers and triangles seen nearly edge-on.
		if n.Len() < 0.5 || math.Abs(n.Normalize().Dot(toEye.Normalize())) < 0.2 {
			continue
		}
		if n.Dot(toEye) < 0 {
			b, c = c, b
		}
		checked++

		front := screenOf(tri(a, b, c), mvp)
		if cross := Cross2D(front[0], front[1], front[2]); cross >= 0 {
			t.Fatalf("front-facing CCW triangle %v %v %v: cross = %v, want < 0", a, b, c, cross)
		}
		back := screenOf(tri(a, c, b), mvp)
		if cross := Cross2D(back[0], back[1], back[2]); cross <= 0 {
			t.Fatalf("reversed triangle %v %v %v: cross = %v, want > 0", a, c, b, cross)
		}
	}
}

func TestTransformTriangle(t *testing.T) {
	mvp, _ := testMVP()
	clip := ClipRange{Near: 0.5, Far: 500}

	tests := []struct {
		name   string
		verts  [3]models.Vertex
		wantOK bool
	}{
		{"front facing", tri(math3d.V3(-1, -1, 0), math3d.V3(1, -1, 0), math3d.V3(0, 1, 0)), true},
		{"back facing", tri(math3d.V3(-1, -1, 0), math3d.V3(0, 1, 0), math3d.V3(1, -1, 0)), false},
		{"one vertex behind near", tri(math3d.V3(-1, -1, 0), math3d.V3(1, -1, 0), math3d.V3(0, 1, 9.8)), false},
		{"all beyond far", tri(math3d.V3(-1, -1, -600), math3d.V3(1, -1, -600), math3d.V3(0, 1, -600)), false},
		{"partly beyond far", tri(math3d.V3(-1, -1, -600), math3d.V3(1, -1, 0), math3d.V3(0, 1, 0)), true},
		{"degenerate", tri(math3d.V3(-1, 0, 0), math3d.V3(0, 0, 0), math3d.V3(1, 0, 0)), false},
		{"off screen", tri(math3d.V3(40, -1, 0), math3d.V3(42, -1, 0), math3d.V3(41, 1, 0)), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := TransformTriangle(tc.verts, mvp, testViewport, clip)
			if ok != tc.wantOK {
				t.Errorf("TransformTriangle ok = %v, want %v", ok, tc.wantOK)
			}
		})
	}
}

func TestTransformTriangleDepthIsReciprocalW(t *testing.T) {
	mvp, _ := testMVP()
	st, ok := TransformTriangle(
		tri(math3d.V3(-1, -1, 0), math3d.V3(1, -1, 0), math3d.V3(0, 1, 0)),
		mvp, testViewport, ClipRange{Near: 0.5, Far: 500})
	if !ok {
		t.Fatal("TransformTriangle rejected a visible triangle")
	}
	for i, v := range st.V {
		if math.Abs(v.Z-0.1) > 1e-9 {
			t.Errorf("vertex %d depth = %v, want 1/10", i, v.Z)
		}
	}
	// Nearer geometry must get a larger depth.
	near, ok := TransformTriangle(
		tri(math3d.V3(-1, -1, 5), math3d.V3(1, -1, 5), math3d.V3(0, 1, 5)),
		mvp, testViewport, ClipRange{Near: 0.5, Far: 500})
	if !ok {
		t.Fatal("TransformTriangle rejected the nearer triangle")
	}
	if near.V[0].Z <= st.V[0].Z {
		t.Errorf("nearer depth %v <= farther depth %v", near.V[0].Z, st.V[0].Z)
	}
}
