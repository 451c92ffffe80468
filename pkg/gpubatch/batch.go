// Package gpubatch collects screen-space triangles into a pinned guest
// memory region and draws them on an SVGA3D device in as few commands as
// possible.
package gpubatch

import (
	"encoding/binary"
	"fmt"
	"image/color"
	"math"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/svga"
)

const (
	// VertexSize is a float32 xyz position followed by an ARGB word.
	VertexSize = 16
	// TriangleSize is three vertices.
	TriangleSize = 3 * VertexSize
	// DefaultCapacity is the number of triangles per batch.
	DefaultCapacity = 1024

	statsInterval = 300
)

// Stats counts batch activity since Init.
type Stats struct {
	Frames    uint64
	Triangles uint64
	Batches   uint64
	// CPUFallback counts triangles that could not be sent to the device
	// because a flush failed.
	CPUFallback uint64
}

// Batch draws one frame at a time on a single device context. It is not
// safe for concurrent use.
type Batch struct {
	dev      *svga.Device
	state    State
	capacity int
	width    int
	height   int

	cid      svga.ContextID
	color    svga.SurfaceID
	depth    svga.SurfaceID
	vertices svga.SurfaceID
	gmrs     *svga.GMRs
	gmr      *svga.GMR

	count      int
	batchCount int
	scratch    [TriangleSize]byte
	stats      Stats
}

// New returns an uninitialized batch holding capacity triangles per
// flush. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Batch {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Batch{capacity: capacity}
}

// State returns the current lifecycle state.
func (b *Batch) State() State { return b.state }

// Stats returns counters since Init.
func (b *Batch) Stats() Stats { return b.stats }

// Capacity returns the triangles per flush.
func (b *Batch) Capacity() int { return b.capacity }

// Len returns the triangles queued since the last flush.
func (b *Batch) Len() int { return b.count }

// Init creates the context, render targets, vertex buffer and guest region
// on dev and loads the fixed pipeline state. Any failure tears down what
// was created and leaves the batch Unavailable.
func (b *Batch) Init(dev *svga.Device, width, height int) error {
	if err := b.check("init", Uninitialized); err != nil {
		return err
	}
	if dev == nil {
		b.state = Unavailable
		return fmt.Errorf("gpubatch: init: no device: %w", ErrUnavailable)
	}
	b.dev, b.width, b.height = dev, width, height
	b.state = Negotiated

	if err := b.setup(); err != nil {
		b.teardown()
		b.state = Unavailable
		logging.Get().Warn("gpubatch: init failed", "error", err)
		return fmt.Errorf("gpubatch: init: %w: %w", ErrUnavailable, err)
	}
	b.state = ContextReady
	logging.Get().Info("gpubatch: ready", "width", width, "height", height, "capacity", b.capacity)
	return nil
}

func (b *Batch) setup() error {
	d := b.dev
	if !d.Has3D() {
		return svga.ErrNo3D
	}
	w, h := uint32(b.width), uint32(b.height)

	var err error
	if b.cid, err = d.DefineContext(); err != nil {
		return fmt.Errorf("define context: %w", err)
	}
	if b.color, err = d.DefineSurface(svga.SurfaceDesc{
		Format: svga.FormatA8R8G8B8, Flags: svga.SurfaceHintRenderTarget, Width: w, Height: h,
	}); err != nil {
		return fmt.Errorf("define color surface: %w", err)
	}
	if b.depth, err = d.DefineSurface(svga.SurfaceDesc{
		Format: svga.FormatZD24S8, Flags: svga.SurfaceHintDepthStencil, Width: w, Height: h,
	}); err != nil {
		return fmt.Errorf("define depth surface: %w", err)
	}

	steps := []func() error{
		func() error { return d.SetRenderTarget(b.cid, svga.TargetColor, b.color) },
		func() error { return d.SetRenderTarget(b.cid, svga.TargetDepth, b.depth) },
		func() error { return d.SetViewport(b.cid, 0, 0, w, h) },
		func() error { return d.SetZRange(b.cid, 0, 1) },
		func() error { return d.SetTransform(b.cid, svga.TransformProjection, ortho(b.width, b.height)) },
		func() error { return d.SetTransform(b.cid, svga.TransformView, identity) },
		func() error { return d.SetTransform(b.cid, svga.TransformWorld, identity) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("context state: %w", err)
		}
	}

	if b.gmrs, err = d.GMRs(); err != nil {
		return err
	}
	if b.gmr, err = b.gmrs.Alloc(b.capacity * TriangleSize); err != nil {
		return fmt.Errorf("vertex region: %w", err)
	}
	if b.vertices, err = d.DefineSurface(svga.SurfaceDesc{
		Format: svga.FormatBuffer,
		Flags:  svga.SurfaceHintVertexBuffer | svga.SurfaceHintDynamic,
		Width:  uint32(b.capacity * TriangleSize),
		Height: 1,
	}); err != nil {
		return fmt.Errorf("define vertex surface: %w", err)
	}

	if err := d.SetRenderStates(b.cid,
		svga.RenderState{ID: svga.RSZEnable, Value: 1},
		svga.RenderState{ID: svga.RSZWriteEnable, Value: 1},
		svga.RenderState{ID: svga.RSZFunc, Value: svga.CmpGreater},
		svga.RenderState{ID: svga.RSCullMode, Value: svga.CullNone},
		svga.RenderState{ID: svga.RSFillMode, Value: svga.FillSolid},
		svga.RenderState{ID: svga.RSShadeMode, Value: svga.ShadeGouraud},
		svga.RenderState{ID: svga.RSColorWriteEnable, Value: 0xF},
	); err != nil {
		return fmt.Errorf("render states: %w", err)
	}

	// The device reports a failed definition only by hanging.
	if err := d.Sync(); err != nil {
		return fmt.Errorf("setup sync: %w", err)
	}
	return nil
}

func (b *Batch) teardown() {
	d := b.dev
	log := logging.Get()
	for _, sid := range []svga.SurfaceID{b.vertices, b.depth, b.color} {
		if sid == 0 {
			continue
		}
		if err := d.DestroySurface(sid); err != nil {
			log.Warn("gpubatch: destroy surface", "sid", sid, "error", err)
		}
	}
	if b.cid != 0 {
		if err := d.DestroyContext(b.cid); err != nil {
			log.Warn("gpubatch: destroy context", "cid", b.cid, "error", err)
		}
	}
	if b.gmr != nil {
		if err := b.gmrs.Free(b.gmr.ID); err != nil {
			log.Warn("gpubatch: free region", "id", b.gmr.ID, "error", err)
		}
	}
	b.vertices, b.depth, b.color, b.cid, b.gmr = 0, 0, 0, 0, nil
}

// Begin starts a frame: the targets are cleared to c and to depth 0,
// which is the far end of the inverted depth range.
func (b *Batch) Begin(c color.RGBA) error {
	if err := b.check("begin", ContextReady, Presented); err != nil {
		return err
	}
	b.count, b.batchCount = 0, 0
	err := b.dev.Clear(b.cid, svga.ClearColor|svga.ClearDepth, render.PackARGB(c), 0,
		0, 0, uint32(b.width), uint32(b.height))
	if err != nil {
		return fmt.Errorf("gpubatch: clear: %w", err)
	}
	b.state = BatchOpen
	return nil
}

// Add appends one triangle to the region. It reports false when the batch
// is full or no frame is open.
func (b *Batch) Add(tri *render.ScreenTriangle) bool {
	if b.state != BatchOpen && b.state != BatchFlushed {
		return false
	}
	if b.count >= b.capacity {
		return false
	}
	buf := b.scratch[:]
	for i, v := range tri.V {
		o := i * VertexSize
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(float32(v.X)))
		binary.LittleEndian.PutUint32(buf[o+4:], math.Float32bits(float32(v.Y)))
		binary.LittleEndian.PutUint32(buf[o+8:], math.Float32bits(float32(v.Z)))
		binary.LittleEndian.PutUint32(buf[o+12:], render.PackARGB(v.Color))
	}
	if _, err := b.gmr.Mem.WriteAt(buf, int64(b.count*TriangleSize)); err != nil {
		logging.Get().Warn("gpubatch: write vertices", "error", err)
		return false
	}
	b.count++
	b.state = BatchOpen
	return true
}

// NeedsFlush reports whether the batch is full.
func (b *Batch) NeedsFlush() bool { return b.count >= b.capacity }

// Flush draws the queued triangles and waits for the device so the region
// can be refilled. Flushing an empty batch does nothing.
func (b *Batch) Flush() error {
	return b.flush(true)
}

func (b *Batch) flush(reuse bool) error {
	if err := b.check("flush", BatchOpen, BatchFlushed); err != nil {
		return err
	}
	if b.count == 0 {
		return nil
	}
	n := b.count
	b.count = 0
	d := b.dev
	err := d.SurfaceDMA(b.gmr, 0, b.vertices, uint32(n*TriangleSize))
	if err == nil {
		err = d.DrawPrimitives(b.cid, b.vertices, uint32(n), VertexSize)
	}
	if err == nil && reuse {
		// The next batch overwrites the region the DMA reads from.
		err = d.Sync()
	}
	if err != nil {
		b.stats.CPUFallback += uint64(n)
		return fmt.Errorf("gpubatch: flush %d triangles: %w", n, err)
	}
	b.batchCount++
	b.stats.Batches++
	b.stats.Triangles += uint64(n)
	b.state = BatchFlushed
	return nil
}

// End flushes the remaining triangles, presents the color target and waits
// for the device.
func (b *Batch) End() error {
	if err := b.check("end", BatchOpen, BatchFlushed); err != nil {
		return err
	}
	flushErr := b.flush(false)
	if err := b.dev.Present(b.color, uint32(b.width), uint32(b.height)); err != nil {
		return fmt.Errorf("gpubatch: present: %w", err)
	}
	if err := b.dev.Sync(); err != nil {
		return fmt.Errorf("gpubatch: present sync: %w", err)
	}
	b.state = Presented
	b.stats.Frames++
	if b.stats.Frames%statsInterval == 0 {
		logging.Get().Debug("gpubatch: stats",
			"frames", b.stats.Frames,
			"triangles", b.stats.Triangles,
			"batches", b.stats.Batches,
			"cpu_fallback", b.stats.CPUFallback)
	}
	return flushErr
}

// Close releases every device object. The batch returns to Uninitialized.
func (b *Batch) Close() error {
	if b.dev == nil || b.state == Uninitialized || b.state == Unavailable {
		return nil
	}
	b.teardown()
	err := b.dev.Sync()
	b.state = Uninitialized
	return err
}

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// ortho maps pixel coordinates to normalized device coordinates with y
// pointing down. Depth passes through unchanged.
func ortho(width, height int) [16]float32 {
	w, h := float32(width), float32(height)
	return [16]float32{
		2 / w, 0, 0, 0,
		0, -2 / h, 0, 0,
		0, 0, 1, 0,
		-1, 1, 0, 1,
	}
}
