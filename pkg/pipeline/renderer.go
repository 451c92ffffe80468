// Package pipeline turns a scene into a presented frame: it culls
// objects, transforms their faces into screen triangles and hands them to
// a software or hardware backend.
package pipeline

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/svga"
	"github.com/taigrr/tessel/pkg/tiles"
)

var (
	// ErrSurfaceBusy is reported in FrameResult when another caller holds
	// the surface and the frame is skipped.
	ErrSurfaceBusy = render.ErrSurfaceBusy
	// ErrNoBackend is returned by New when the requested backend cannot be
	// built and fallback is not allowed.
	ErrNoBackend = errors.New("pipeline: no usable backend")
)

// Config sizes the pipeline. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	Width  int
	Height int

	Backend       BackendKind
	AllowFallback bool

	Workers    int
	PinWorkers bool

	TileSize            int
	MaxTriangles        int
	MaxTrianglesPerTile int
	BatchCapacity       int

	TargetFPS int
	VSync     bool

	CullPolicy render.CullPolicy
	CullFar    float64
	CullMargin float64

	Clear color.RGBA
}

// DefaultConfig returns a 320×240 auto-selecting pipeline.
func DefaultConfig() Config {
	return Config{
		Width:               320,
		Height:              240,
		Backend:             BackendAuto,
		AllowFallback:       true,
		TileSize:            tiles.DefaultTileSize,
		MaxTriangles:        tiles.DefaultMaxTriangles,
		MaxTrianglesPerTile: tiles.DefaultMaxPerTile,
		TargetFPS:           DefaultTargetFPS,
		CullPolicy:          render.CullDistance,
		CullFar:             500,
		CullMargin:          100,
		Clear:               render.ColorBlack,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.TileSize <= 0 {
		c.TileSize = d.TileSize
	}
	if c.MaxTriangles <= 0 {
		c.MaxTriangles = d.MaxTriangles
	}
	if c.MaxTrianglesPerTile <= 0 {
		c.MaxTrianglesPerTile = d.MaxTrianglesPerTile
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = d.TargetFPS
	}
	if c.CullFar <= 0 {
		c.CullFar = d.CullFar
	}
	return c
}

// Option configures New.
type Option func(*Context)

// WithDevice offers an opened SVGA device to the hardware backend.
func WithDevice(dev *svga.Device) Option {
	return func(c *Context) { c.device = dev }
}

// WithDisplay sets where presented frames are shown.
func WithDisplay(d Display) Option {
	return func(c *Context) { c.display = d }
}

// FrameResult describes one RenderFrame call.
type FrameResult struct {
	Frame    uint64
	Skipped  bool
	Err      error
	OnTime   bool
	FPS      float64
	Duration time.Duration
	Stats    FrameStats
}

// Context owns everything a frame needs. It is created once and reused for
// every frame; RenderFrame must not be called concurrently.
type Context struct {
	cfg     Config
	surface *render.Surface
	culler  *render.Culler
	timer   *FrameTimer
	backend Backend
	device  *svga.Device
	display Display
	frames  uint64
}

// New builds the surface, culler and timer, and selects the backend once.
// The backend is never re-probed.
func New(cfg Config, opts ...Option) (*Context, error) {
	cfg = cfg.withDefaults()
	c := &Context{
		cfg:     cfg,
		surface: render.NewSurface(cfg.Width, cfg.Height),
		culler: &render.Culler{
			Policy: cfg.CullPolicy,
			Far:    cfg.CullFar,
			Margin: cfg.CullMargin,
		},
		timer: NewFrameTimer(cfg.TargetFPS, cfg.VSync),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.display == nil {
		c.display = NopDisplay{}
	}

	b, err := c.selectBackend()
	if err != nil {
		return nil, err
	}
	c.backend = b
	logging.Get().Info("pipeline: backend selected",
		"backend", b.Name(),
		"width", cfg.Width,
		"height", cfg.Height)
	return c, nil
}

func (c *Context) selectBackend() (Backend, error) {
	log := logging.Get()
	switch c.cfg.Backend {
	case BackendSoftware:
		return NewSoftwareBackend(c.cfg, c.display), nil
	case BackendHardware, BackendAuto:
		if c.device == nil && c.cfg.Backend == BackendAuto {
			return NewSoftwareBackend(c.cfg, c.display), nil
		}
		hw, err := NewHardwareBackend(c.device, c.cfg, c.display)
		if err == nil {
			return hw, nil
		}
		if c.cfg.Backend == BackendHardware && !c.cfg.AllowFallback {
			return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
		}
		log.Warn("pipeline: hardware unavailable, using software", "error", err)
		return NewSoftwareBackend(c.cfg, c.display), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoBackend, c.cfg.Backend)
	}
}

// Backend returns the selected backend.
func (c *Context) Backend() Backend { return c.backend }

// Surface returns the frame surface.
func (c *Context) Surface() *render.Surface { return c.surface }

// Framebuffer returns the surface's framebuffer. The front buffer holds
// the last presented frame.
func (c *Context) Framebuffer() *render.Framebuffer { return c.surface.Framebuffer() }

// Timer returns the frame timer.
func (c *Context) Timer() *FrameTimer { return c.timer }

// Config returns the effective configuration.
func (c *Context) Config() Config { return c.cfg }

// RenderFrame draws scene and presents it. Failures never abort the
// caller: a busy surface skips the frame, and backend errors are logged
// and reported in the result.
func (c *Context) RenderFrame(scene Scene) FrameResult {
	log := logging.Get()
	c.timer.BeginFrame()
	c.frames++
	res := FrameResult{Frame: c.frames}

	tgt, err := c.surface.Acquire()
	if err != nil {
		log.Warn("pipeline: frame skipped", "frame", c.frames, "error", err)
		res.Skipped, res.Err = true, err
		c.endFrame(&res)
		return res
	}

	tgt.Clear(render.PackARGB(c.cfg.Clear))
	f := &Frame{
		Index:       c.frames,
		Target:      tgt,
		Framebuffer: c.surface.Framebuffer(),
		Viewport:    render.Viewport{Width: c.cfg.Width, Height: c.cfg.Height},
		Clear:       c.cfg.Clear,
		Stats:       &res.Stats,
	}
	if err := c.backend.Begin(f); err != nil {
		tgt.Release()
		log.Warn("pipeline: backend begin", "backend", c.backend.Name(), "error", err)
		res.Err = err
		c.endFrame(&res)
		return res
	}

	c.submit(scene, f)

	finishErr := c.backend.Finish(f)
	tgt.Release()
	presentErr := c.backend.Present(f)
	if err := errors.Join(finishErr, presentErr); err != nil {
		log.Warn("pipeline: frame incomplete", "frame", c.frames, "backend", c.backend.Name(), "error", err)
		res.Err = err
	}
	c.endFrame(&res)
	return res
}

// submit culls, transforms and submits every object of scene.
func (c *Context) submit(scene Scene, f *Frame) {
	c.culler.Update(scene.View, scene.Projection, scene.Eye)
	viewProj := scene.Projection.Mul(scene.View)
	clip := scene.clipRange()
	st := f.Stats
	for _, obj := range scene.Objects {
		if obj.Mesh == nil {
			continue
		}
		st.Objects++
		center, radius := obj.Bounds()
		if !c.culler.ShouldRender(center, radius) {
			st.Culled++
			continue
		}
		mvp := viewProj.Mul(obj.Model)
		for i := range obj.Mesh.Faces {
			tri, ok := render.TransformTriangle(obj.Mesh.Triangle(i), mvp, f.Viewport, clip)
			if !ok {
				st.Rejected++
				continue
			}
			c.backend.Submit(tri)
			st.Submitted++
		}
	}
}

func (c *Context) endFrame(res *FrameResult) {
	res.OnTime = c.timer.EndFrame()
	res.Duration = c.timer.Elapsed()
	res.FPS = c.timer.Stats().FPS
	c.timer.Wait()
}

// Close releases the backend.
func (c *Context) Close() error {
	return c.backend.Close()
}
