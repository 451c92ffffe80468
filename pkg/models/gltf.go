package models

import (
	"encoding/binary"
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/taigrr/tessel/pkg/math3d"
)

// attrColor is the glTF vertex color attribute.
const attrColor = "COLOR_0"

// GLTFLoader converts glTF/GLB documents into a Mesh.
type GLTFLoader struct {
	// DefaultColor is used when a primitive has neither COLOR_0 nor a
	// material base color.
	DefaultColor color.RGBA
	// SmoothNormals recomputes normals when the document has none.
	SmoothNormals bool
}

// NewGLTFLoader creates a loader with a light grey default color.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		DefaultColor:  color.RGBA{R: 200, G: 200, B: 200, A: 255},
		SmoothNormals: true,
	}
}

// LoadGLTF loads a .gltf or .glb file with the default loader.
func LoadGLTF(path string) (*Mesh, error) {
	return NewGLTFLoader().Load(path)
}

// Load opens path and converts every triangle primitive in it.
func (l *GLTFLoader) Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return l.Convert(doc, filepath.Base(path))
}

// Convert builds a Mesh from an already decoded document.
func (l *GLTFLoader) Convert(doc *gltf.Document, name string) (*Mesh, error) {
	mesh := NewMesh(name)
	for _, m := range doc.Meshes {
		if err := l.processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
	}
	if len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("gltf %s: no triangle primitives", name)
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.LenSq() > 1e-6 {
			hasNormals = true
			break
		}
	}
	if l.SmoothNormals && !hasNormals {
		mesh.CalculateSmoothNormals()
	}
	mesh.CalculateBounds()
	return mesh, nil
}

func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		var normals []math3d.Vec3
		if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
			if normals, err = readVec3(doc, idx); err != nil {
				return fmt.Errorf("read normals: %w", err)
			}
		}
		var colors []color.RGBA
		if idx, ok := prim.Attributes[attrColor]; ok {
			if colors, err = readColors(doc, idx); err != nil {
				return fmt.Errorf("read colors: %w", err)
			}
		}
		base := l.materialColor(doc, prim.Material)

		first := len(mesh.Vertices)
		for i, p := range positions {
			v := Vertex{Position: p, Color: base}
			if i < len(normals) {
				v.Normal = normals[i]
			}
			if i < len(colors) {
				v.Color = colors[i]
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}

		// glTF front faces are counter-clockwise, which is what the
		// pipeline expects, so indices are kept in order.
		if prim.Indices != nil {
			indices, err := readIndices(doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
			for i := 0; i+2 < len(indices); i += 3 {
				a, b, c := indices[i], indices[i+1], indices[i+2]
				if a >= len(positions) || b >= len(positions) || c >= len(positions) {
					return fmt.Errorf("index out of range at %d", i)
				}
				mesh.AddFace(first+a, first+b, first+c)
			}
			continue
		}
		for i := 0; i+2 < len(positions); i += 3 {
			mesh.AddFace(first+i, first+i+1, first+i+2)
		}
	}
	return nil
}

func (l *GLTFLoader) materialColor(doc *gltf.Document, idx *int) color.RGBA {
	if idx == nil || *idx >= len(doc.Materials) {
		return l.DefaultColor
	}
	pbr := doc.Materials[*idx].PBRMetallicRoughness
	if pbr == nil || pbr.BaseColorFactor == nil {
		return l.DefaultColor
	}
	f := *pbr.BaseColorFactor
	return color.RGBA{R: unitToByte(f[0]), G: unitToByte(f[1]), B: unitToByte(f[2]), A: unitToByte(f[3])}
}

func unitToByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

// view resolves an accessor to its backing bytes, start offset and stride.
func view(doc *gltf.Document, acc *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if acc.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	bv := doc.BufferViews[*acc.BufferView]
	buf := doc.Buffers[bv.Buffer]
	if buf.Data == nil {
		return nil, 0, 0, fmt.Errorf("buffer %d has no data", bv.Buffer)
	}
	stride := bv.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	start := bv.ByteOffset + acc.ByteOffset
	if acc.Count > 0 && start+(acc.Count-1)*stride+elemSize > len(buf.Data) {
		return nil, 0, 0, fmt.Errorf("accessor overruns buffer")
	}
	return buf.Data, start, stride, nil
}

func readVec3(doc *gltf.Document, idx int) ([]math3d.Vec3, error) {
	acc := doc.Accessors[idx]
	if acc.Type != gltf.AccessorVec3 || acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("expected float VEC3, got %v/%v", acc.Type, acc.ComponentType)
	}
	data, start, stride, err := view(doc, acc, 12)
	if err != nil {
		return nil, err
	}
	out := make([]math3d.Vec3, acc.Count)
	for i := range out {
		b := data[start+i*stride:]
		out[i] = math3d.V3(readFloat32(b), readFloat32(b[4:]), readFloat32(b[8:]))
	}
	return out, nil
}

func readColors(doc *gltf.Document, idx int) ([]color.RGBA, error) {
	acc := doc.Accessors[idx]
	comps := 4
	switch acc.Type {
	case gltf.AccessorVec3:
		comps = 3
	case gltf.AccessorVec4:
	default:
		return nil, fmt.Errorf("unexpected color type %v", acc.Type)
	}

	var size int
	switch acc.ComponentType {
	case gltf.ComponentFloat:
		size = 4
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	default:
		return nil, fmt.Errorf("unexpected color component %v", acc.ComponentType)
	}

	data, start, stride, err := view(doc, acc, comps*size)
	if err != nil {
		return nil, err
	}
	out := make([]color.RGBA, acc.Count)
	for i := range out {
		b := data[start+i*stride:]
		ch := [4]uint8{0, 0, 0, 255}
		for c := range comps {
			switch size {
			case 4:
				ch[c] = unitToByte(readFloat32(b[c*4:]))
			case 2:
				ch[c] = uint8(binary.LittleEndian.Uint16(b[c*2:]) >> 8)
			default:
				ch[c] = b[c]
			}
		}
		out[i] = color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}
	}
	return out, nil
}

func readIndices(doc *gltf.Document, idx int) ([]int, error) {
	acc := doc.Accessors[idx]
	if acc.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR indices, got %v", acc.Type)
	}
	var size int
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type %v", acc.ComponentType)
	}
	data, start, stride, err := view(doc, acc, size)
	if err != nil {
		return nil, err
	}
	out := make([]int, acc.Count)
	for i := range out {
		b := data[start+i*stride:]
		switch size {
		case 1:
			out[i] = int(b[0])
		case 2:
			out[i] = int(binary.LittleEndian.Uint16(b))
		default:
			out[i] = int(binary.LittleEndian.Uint32(b))
		}
	}
	return out, nil
}

func readFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}
