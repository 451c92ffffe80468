// Package models provides the mesh representation consumed by the tessel
// pipeline, plus a glTF loader and a few procedural shapes.
package models

import (
	"image/color"

	"github.com/taigrr/tessel/pkg/math3d"
)

// Vertex is one mesh corner.
type Vertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	Color    color.RGBA
	UV       math3d.Vec2
}

// Mesh is drawable geometry: ordered vertices plus triangle index triples.
// The pipeline treats a Mesh as read-only. Front faces wind counter-clockwise.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Faces    [][3]int

	// Bounding box, filled in by CalculateBounds.
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name}
}

// AddVertex appends v and returns its index.
func (m *Mesh) AddVertex(v Vertex) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddFace appends a triangle over existing vertex indices.
func (m *Mesh) AddFace(a, b, c int) {
	m.Faces = append(m.Faces, [3]int{a, b, c})
}

// Triangle returns the three vertices of face i.
func (m *Mesh) Triangle(i int) [3]Vertex {
	f := m.Faces[i]
	return [3]Vertex{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}
	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Radius returns the radius of the sphere enclosing the bounding box.
func (m *Mesh) Radius() float64 {
	return m.BoundsMax.Sub(m.BoundsMin).Scale(0.5).Len()
}

// TriangleCount returns the number of faces.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// CalculateSmoothNormals averages area-weighted face normals per vertex.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Vec3{}
	}
	for _, f := range m.Faces {
		p0 := m.Vertices[f[0]].Position
		n := m.Vertices[f[1]].Position.Sub(p0).Cross(m.Vertices[f[2]].Position.Sub(p0))
		for _, vi := range f {
			m.Vertices[vi].Normal = m.Vertices[vi].Normal.Add(n)
		}
	}
	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// Shade bakes a directional light into the vertex colors so the flat-color
// rasterizer shows form. ambient is the minimum intensity in [0,1].
func (m *Mesh) Shade(light math3d.Vec3, ambient float64) {
	light = light.Normalize()
	for i := range m.Vertices {
		v := &m.Vertices[i]
		k := ambient + (1-ambient)*max(0, v.Normal.Dot(light))
		v.Color = color.RGBA{
			R: uint8(float64(v.Color.R) * k),
			G: uint8(float64(v.Color.G) * k),
			B: uint8(float64(v.Color.B) * k),
			A: v.Color.A,
		}
	}
}
