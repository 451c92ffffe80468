package pipeline

import (
	"math"

	"github.com/taigrr/tessel/pkg/math3d"
	"github.com/taigrr/tessel/pkg/models"
	"github.com/taigrr/tessel/pkg/render"
)

// Object places a mesh in the world.
type Object struct {
	Mesh  *models.Mesh
	Model math3d.Mat4
}

// NewObject places m at the origin.
func NewObject(m *models.Mesh) Object {
	return Object{Mesh: m, Model: math3d.Identity()}
}

// Bounds returns the world-space sphere enclosing the mesh's bounding box.
func (o Object) Bounds() (center math3d.Vec3, radius float64) {
	m := o.Model
	center = m.Clip(o.Mesh.Center()).XYZ()
	// Column-major: the first three columns are the transformed axes.
	scale := 0.0
	for c := range 3 {
		axis := math3d.V3(m[c*4], m[c*4+1], m[c*4+2])
		scale = math.Max(scale, axis.Len())
	}
	return center, o.Mesh.Radius() * scale
}

// Scene is one frame's input: camera matrices and the objects to draw.
type Scene struct {
	View       math3d.Mat4
	Projection math3d.Mat4
	Eye        math3d.Vec3
	// Clip bounds clip-space w. The zero value selects
	// render.DefaultClipRange.
	Clip    render.ClipRange
	Objects []Object
}

// SceneFromCamera fills the camera fields of a scene from cam.
func SceneFromCamera(cam *render.Camera, objects ...Object) Scene {
	return Scene{
		View:       cam.View(),
		Projection: cam.Projection(),
		Eye:        cam.Eye(),
		Clip:       cam.ClipRange(),
		Objects:    objects,
	}
}

func (s Scene) clipRange() render.ClipRange {
	if s.Clip == (render.ClipRange{}) {
		return render.DefaultClipRange
	}
	return s.Clip
}
