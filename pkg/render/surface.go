package render

import (
	"errors"
	"math"
	"sync"
)

// ErrSurfaceBusy is returned by Surface.Acquire when another caller holds the
// surface.
var ErrSurfaceBusy = errors.New("render: surface busy")

// DepthBuffer stores one float32 depth per pixel using the inverted
// convention: larger values are nearer, and a cleared buffer holds -Inf.
type DepthBuffer struct {
	Width  int
	Height int
	Values []float32
}

// NewDepthBuffer allocates a cleared depth buffer.
func NewDepthBuffer(width, height int) *DepthBuffer {
	d := &DepthBuffer{Width: width, Height: height, Values: make([]float32, width*height)}
	d.Clear()
	return d
}

// Clear resets every entry to the farthest possible depth.
func (d *DepthBuffer) Clear() {
	fill(d.Values, float32(math.Inf(-1)))
}

// At returns the depth at (x, y).
func (d *DepthBuffer) At(x, y int) float32 {
	return d.Values[y*d.Width+x]
}

// Surface pairs a framebuffer with its depth buffer behind one exclusive
// lock. The lock is taken once per frame; pixel writes made through the
// returned Target are not locked further.
type Surface struct {
	mu    sync.Mutex
	fb    *Framebuffer
	depth *DepthBuffer
}

// NewSurface allocates a width×height surface.
func NewSurface(width, height int) *Surface {
	return &Surface{
		fb:    NewFramebuffer(width, height),
		depth: NewDepthBuffer(width, height),
	}
}

// Framebuffer returns the color buffers. Callers must not write to it
// while a frame is in flight.
func (s *Surface) Framebuffer() *Framebuffer { return s.fb }

// Depth returns the depth buffer.
func (s *Surface) Depth() *DepthBuffer { return s.depth }

// Acquire takes exclusive access without blocking.
func (s *Surface) Acquire() (*Target, error) {
	if !s.mu.TryLock() {
		return nil, ErrSurfaceBusy
	}
	return &Target{
		Color:  s.fb.back,
		Depth:  s.depth.Values,
		Width:  s.fb.Width,
		Height: s.fb.Height,
		Stride: s.fb.Stride,
		fb:     s.fb,
		depth:  s.depth,
		owner:  s,
	}, nil
}

// Target is raw access to a surface's back buffer and depth buffer, valid
// until Release. Concurrent writers must touch disjoint pixels.
type Target struct {
	Color  []uint32
	Depth  []float32
	Width  int
	Height int
	Stride int

	fb    *Framebuffer
	depth *DepthBuffer
	owner *Surface
}

// NewTarget wraps buffers that are not guarded by a Surface, for callers
// such as the simulated device that own their storage outright.
func NewTarget(fb *Framebuffer, depth *DepthBuffer) *Target {
	return &Target{
		Color:  fb.back,
		Depth:  depth.Values,
		Width:  fb.Width,
		Height: fb.Height,
		Stride: fb.Stride,
		fb:     fb,
		depth:  depth,
	}
}

// Clear fills the color buffer with c and resets depth.
func (t *Target) Clear(c uint32) {
	fill(t.Color, c)
	t.depth.Clear()
}

// Framebuffer returns the framebuffer behind the target.
func (t *Target) Framebuffer() *Framebuffer { return t.fb }

// Release gives the surface back. Release on a target without an owner is a
// no-op.
func (t *Target) Release() {
	if t.owner == nil {
		return
	}
	o := t.owner
	t.owner = nil
	o.mu.Unlock()
}
