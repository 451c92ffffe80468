package svga

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/taigrr/tessel/internal/logging"
)

// SVGA3D command ids. Every 3D command is encoded as
// [id, bodyBytes, body...].
const (
	Cmd3DSurfaceDefine   uint32 = 1040
	Cmd3DSurfaceDestroy  uint32 = 1041
	Cmd3DSurfaceDMA      uint32 = 1044
	Cmd3DContextDefine   uint32 = 1045
	Cmd3DContextDestroy  uint32 = 1046
	Cmd3DSetTransform    uint32 = 1047
	Cmd3DSetZRange       uint32 = 1048
	Cmd3DSetRenderState  uint32 = 1049
	Cmd3DSetRenderTarget uint32 = 1050
	Cmd3DSetViewport     uint32 = 1055
	Cmd3DClear           uint32 = 1057
	Cmd3DPresent         uint32 = 1058
	Cmd3DDrawPrimitives  uint32 = 1063

	Cmd3DBase uint32 = 1040
	Cmd3DMax  uint32 = 1100
)

// InvalidID marks an unused surface slot in a command.
const InvalidID uint32 = 0xFFFFFFFF

var (
	// ErrNo3D is returned by 3D operations on a device without SVGA3D.
	ErrNo3D = errors.New("svga: 3d not available")
	// ErrCommandDropped is returned when a command could not be queued.
	ErrCommandDropped = errors.New("svga: command dropped")
)

// SurfaceID names a device surface.
type SurfaceID uint32

// ContextID names a device rendering context.
type ContextID uint32

// SurfaceFormat is an SVGA3D surface format.
type SurfaceFormat uint32

const (
	FormatX8R8G8B8 SurfaceFormat = 1
	FormatA8R8G8B8 SurfaceFormat = 2
	FormatZD32     SurfaceFormat = 7
	FormatZD16     SurfaceFormat = 8
	FormatZD24S8   SurfaceFormat = 9
	FormatBuffer   SurfaceFormat = 37
)

// SurfaceFlags are usage hints for a surface.
type SurfaceFlags uint32

const (
	SurfaceCubemap          SurfaceFlags = 1 << 0
	SurfaceHintStatic       SurfaceFlags = 1 << 1
	SurfaceHintDynamic      SurfaceFlags = 1 << 2
	SurfaceHintIndexBuffer  SurfaceFlags = 1 << 3
	SurfaceHintVertexBuffer SurfaceFlags = 1 << 4
	SurfaceHintTexture      SurfaceFlags = 1 << 5
	SurfaceHintRenderTarget SurfaceFlags = 1 << 6
	SurfaceHintDepthStencil SurfaceFlags = 1 << 7
)

// SurfaceDesc describes a surface to define. Buffers use Width as their
// byte length and a Height and Depth of 1.
type SurfaceDesc struct {
	Format SurfaceFormat
	Flags  SurfaceFlags
	Width  uint32
	Height uint32
	Depth  uint32
}

// RenderStateID selects a fixed-function render state.
type RenderStateID uint32

const (
	RSZEnable          RenderStateID = 1
	RSZWriteEnable     RenderStateID = 2
	RSAlphaTestEnable  RenderStateID = 3
	RSBlendEnable      RenderStateID = 5
	RSFillMode         RenderStateID = 11
	RSShadeMode        RenderStateID = 12
	RSZFunc            RenderStateID = 18
	RSCullMode         RenderStateID = 19
	RSColorWriteEnable RenderStateID = 21
)

// RenderState is one id/value pair for SetRenderStates.
type RenderState struct {
	ID    RenderStateID
	Value uint32
}

// Comparison functions for RSZFunc.
const (
	CmpNever        uint32 = 1
	CmpLess         uint32 = 2
	CmpEqual        uint32 = 3
	CmpLessEqual    uint32 = 4
	CmpGreater      uint32 = 5
	CmpNotEqual     uint32 = 6
	CmpGreaterEqual uint32 = 7
	CmpAlways       uint32 = 8
)

// Values for RSCullMode, RSFillMode and RSShadeMode.
const (
	CullNone uint32 = 0
	CullCW   uint32 = 1
	CullCCW  uint32 = 2

	FillPoint     uint32 = 1
	FillWireframe uint32 = 2
	FillSolid     uint32 = 3

	ShadeFlat    uint32 = 1
	ShadeGouraud uint32 = 2
)

// TransformType selects the matrix set by SetTransform.
type TransformType uint32

const (
	TransformWorld      TransformType = 0
	TransformView       TransformType = 1
	TransformProjection TransformType = 2
)

// RenderTargetType selects the attachment set by SetRenderTarget.
type RenderTargetType uint32

const (
	TargetColor   RenderTargetType = 0
	TargetDepth   RenderTargetType = 1
	TargetStencil RenderTargetType = 2
)

// Clear flags.
const (
	ClearColor   uint32 = 0x1
	ClearDepth   uint32 = 0x2
	ClearStencil uint32 = 0x4
)

// Primitive types for DrawPrimitives.
const PrimTriangleList uint32 = 1

// Vertex declaration types and usages.
const (
	DeclFloat3   uint32 = 2
	DeclD3DColor uint32 = 4

	UsagePosition uint32 = 0
	UsageColor    uint32 = 9
)

// DMA transfer directions.
const (
	TransferWriteHostVRAM uint32 = 1
	TransferReadHostVRAM  uint32 = 2
)

// IDAllocator hands out monotonically increasing ids starting at 1. Ids
// are never reclaimed.
type IDAllocator struct {
	name string
	last atomic.Uint32
}

// Next returns a fresh id.
func (a *IDAllocator) Next() uint32 {
	id := a.last.Add(1)
	if id == 0 {
		logging.Get().Error("svga: id space exhausted, wrapping", "allocator", a.name)
		id = a.last.Add(1)
	}
	return id
}

// Issued returns the number of ids handed out.
func (a *IDAllocator) Issued() uint32 { return a.last.Load() }

func (d *Device) cmd3D(id uint32, body ...uint32) error {
	if !d.has3D {
		return ErrNo3D
	}
	cmd := make([]uint32, 0, 2+len(body))
	cmd = append(cmd, id, uint32(4*len(body)))
	cmd = append(cmd, body...)
	if !d.fifo.WriteCommand(cmd...) {
		return fmt.Errorf("svga: 3d command %d: %w", id, ErrCommandDropped)
	}
	return nil
}

// DefineContext creates a rendering context.
func (d *Device) DefineContext() (ContextID, error) {
	if !d.has3D {
		return 0, ErrNo3D
	}
	cid := d.contextIDs.Next()
	if err := d.cmd3D(Cmd3DContextDefine, cid); err != nil {
		return 0, err
	}
	return ContextID(cid), nil
}

// DestroyContext releases cid.
func (d *Device) DestroyContext(cid ContextID) error {
	return d.cmd3D(Cmd3DContextDestroy, uint32(cid))
}

// DefineSurface creates a single-face, single-mip surface.
func (d *Device) DefineSurface(desc SurfaceDesc) (SurfaceID, error) {
	if !d.has3D {
		return 0, ErrNo3D
	}
	sid := d.surfaceIDs.Next()
	depth := max(desc.Depth, 1)
	err := d.cmd3D(Cmd3DSurfaceDefine,
		sid, uint32(desc.Flags), uint32(desc.Format),
		1, 0, 0, 0, 0, 0, // mip levels per face
		desc.Width, desc.Height, depth)
	if err != nil {
		return 0, err
	}
	return SurfaceID(sid), nil
}

// DestroySurface releases sid.
func (d *Device) DestroySurface(sid SurfaceID) error {
	return d.cmd3D(Cmd3DSurfaceDestroy, uint32(sid))
}

// SetRenderTarget attaches sid to cid.
func (d *Device) SetRenderTarget(cid ContextID, typ RenderTargetType, sid SurfaceID) error {
	return d.cmd3D(Cmd3DSetRenderTarget, uint32(cid), uint32(typ), uint32(sid), 0, 0)
}

// SetViewport sets the viewport rectangle in pixels.
func (d *Device) SetViewport(cid ContextID, x, y, w, h uint32) error {
	return d.cmd3D(Cmd3DSetViewport, uint32(cid), x, y, w, h)
}

// SetZRange sets the depth range.
func (d *Device) SetZRange(cid ContextID, lo, hi float32) error {
	return d.cmd3D(Cmd3DSetZRange, uint32(cid), F32(lo), F32(hi))
}

// SetTransform loads a 4x4 matrix. m is applied to row vectors, which is
// the memory layout of a column-major matrix applied to column vectors.
func (d *Device) SetTransform(cid ContextID, typ TransformType, m [16]float32) error {
	body := make([]uint32, 0, 18)
	body = append(body, uint32(cid), uint32(typ))
	for _, v := range m {
		body = append(body, F32(v))
	}
	return d.cmd3D(Cmd3DSetTransform, body...)
}

// SetRenderStates sets any number of render states in one command.
func (d *Device) SetRenderStates(cid ContextID, states ...RenderState) error {
	body := make([]uint32, 0, 1+2*len(states))
	body = append(body, uint32(cid))
	for _, s := range states {
		body = append(body, uint32(s.ID), s.Value)
	}
	return d.cmd3D(Cmd3DSetRenderState, body...)
}

// Clear fills the render targets of cid inside the given rectangle.
func (d *Device) Clear(cid ContextID, flags, color uint32, depth float32, x, y, w, h uint32) error {
	return d.cmd3D(Cmd3DClear, uint32(cid), flags, color, F32(depth), 0, x, y, w, h)
}

// SurfaceDMA copies n bytes from offset off of region g into the start of
// surface sid.
func (d *Device) SurfaceDMA(g *GMR, off uint32, sid SurfaceID, n uint32) error {
	return d.cmd3D(Cmd3DSurfaceDMA,
		g.ID, off, n, // guest image: gmr, offset, pitch
		uint32(sid), 0, 0, // host image: sid, face, mipmap
		TransferWriteHostVRAM,
		0, 0, 0, n, 1, 1, 0, 0, 0) // copy box
}

// DrawPrimitives draws count triangles from the vertex buffer surface vsid.
// Vertices are a float3 position followed by a D3DCOLOR, stride bytes
// apart.
func (d *Device) DrawPrimitives(cid ContextID, vsid SurfaceID, count, stride uint32) error {
	return d.cmd3D(Cmd3DDrawPrimitives,
		uint32(cid), 2, 1, // declarations, ranges
		DeclFloat3, 0, UsagePosition, 0, uint32(vsid), 0, stride, 0, 0,
		DeclD3DColor, 0, UsageColor, 0, uint32(vsid), 12, stride, 0, 0,
		PrimTriangleList, count, InvalidID, 0, 0, 0, 0)
}

// Present copies a w×h region of color surface sid to the screen.
func (d *Device) Present(sid SurfaceID, w, h uint32) error {
	return d.cmd3D(Cmd3DPresent, uint32(sid), 0, 0, 0, 0, w, h)
}
