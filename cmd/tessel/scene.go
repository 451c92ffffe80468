package main

import (
	"fmt"
	"image/color"

	"github.com/taigrr/tessel/pkg/math3d"
	"github.com/taigrr/tessel/pkg/models"
	"github.com/taigrr/tessel/pkg/pipeline"
	"github.com/taigrr/tessel/pkg/render"
)

var sunDir = math3d.V3(0.4, 1, 0.6)

// demoObjects builds a checkerboard floor with a ring of cubes.
func demoObjects() []pipeline.Object {
	floor := pipeline.NewObject(models.NewGrid(16, 2, render.ColorGrass, render.RGB(24, 100, 24)))
	floor.Model = math3d.Translate(math3d.V3(0, -1, 0))
	objs := []pipeline.Object{floor}

	palette := []color.RGBA{render.ColorRed, render.ColorBlue, render.ColorSky, render.ColorWhite}
	for i := range 8 {
		cube := models.NewCube(1.5, palette[i%len(palette)], palette[(i+1)%len(palette)])
		cube.Shade(sunDir, 0.35)
		obj := pipeline.NewObject(cube)
		x := float64(i%4)*4 - 6
		z := float64(i/4)*6 - 3
		obj.Model = math3d.Translate(math3d.V3(x, -0.25, z))
		objs = append(objs, obj)
	}
	return objs
}

// modelObjects loads a glTF file and fits it into a unit-radius sphere at
// the origin.
func modelObjects(path string) ([]pipeline.Object, error) {
	mesh, err := models.LoadGLTF(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("load model: %s has no triangles", path)
	}
	mesh.Shade(sunDir, 0.3)
	obj := pipeline.NewObject(mesh)
	if r := mesh.Radius(); r > 0 {
		s := 2 / r
		obj.Model = math3d.Scale(math3d.V3(s, s, s)).Mul(math3d.Translate(mesh.Center().Scale(-1)))
	}
	return []pipeline.Object{obj}, nil
}
