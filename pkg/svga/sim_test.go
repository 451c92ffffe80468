package svga

import (
	"errors"
	"testing"

	"github.com/taigrr/tessel/pkg/render"
)

// setupDraw builds a context with color and depth targets covering the
// whole mode and identity transforms.
func setupDraw(t *testing.T, dev *Device) (ContextID, SurfaceID) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	cid, err := dev.DefineContext()
	must(err)
	color, err := dev.DefineSurface(SurfaceDesc{Format: FormatA8R8G8B8, Flags: SurfaceHintRenderTarget, Width: testW, Height: testH})
	must(err)
	depth, err := dev.DefineSurface(SurfaceDesc{Format: FormatZD24S8, Flags: SurfaceHintDepthStencil, Width: testW, Height: testH})
	must(err)
	must(dev.SetRenderTarget(cid, TargetColor, color))
	must(dev.SetRenderTarget(cid, TargetDepth, depth))
	must(dev.SetViewport(cid, 0, 0, testW, testH))
	must(dev.SetZRange(cid, 0, 1))
	must(dev.SetRenderStates(cid,
		RenderState{RSZEnable, 1},
		RenderState{RSZFunc, CmpGreater},
		RenderState{RSCullMode, CullNone}))
	return cid, color
}

func TestSimDrawPrimitives(t *testing.T) {
	dev, sim := openSim(t, DefaultSimConfig())
	cid, color := setupDraw(t, dev)

	gmrs, err := dev.GMRs()
	if err != nil {
		t.Fatalf("GMRs: %v", err)
	}
	r, err := gmrs.Alloc(PageSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	red := render.PackARGB(render.ColorRed)
	blue := render.PackARGB(render.ColorBlue)
	w := NewWords(r.Mem)
	// A far red triangle over the whole viewport, then a nearer blue one
	// drawn first so the depth test must reject the red pixels under it.
	w.WriteWords(0, []uint32{
		F32(-1), F32(1), F32(0.9), blue,
		F32(0), F32(1), F32(0.9), blue,
		F32(-1), F32(0), F32(0.9), blue,
		F32(-1), F32(-1), F32(0.5), red,
		F32(3), F32(-1), F32(0.5), red,
		F32(-1), F32(3), F32(0.5), red,
	})
	vb, err := dev.DefineSurface(SurfaceDesc{Format: FormatBuffer, Flags: SurfaceHintVertexBuffer | SurfaceHintDynamic, Width: PageSize, Height: 1})
	if err != nil {
		t.Fatalf("DefineSurface: %v", err)
	}

	steps := []error{
		dev.Clear(cid, ClearColor|ClearDepth, render.PackARGB(render.ColorBlack), 0, 0, 0, testW, testH),
		dev.SurfaceDMA(r, 0, vb, 6*16),
		dev.DrawPrimitives(cid, vb, 2, 16),
		dev.Present(color, testW, testH),
		dev.Sync(),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	st := sim.Stats()
	if st.Draws != 1 || st.Triangles != 2 || st.Presents != 1 {
		t.Errorf("stats = %+v, want 1 draw, 2 triangles, 1 present", st)
	}
	out := render.NewFramebuffer(testW, testH)
	if err := dev.ReadFramebuffer(out); err != nil {
		t.Fatalf("ReadFramebuffer: %v", err)
	}
	if got := out.FrontPixel(1, 1); got != render.ColorBlue {
		t.Errorf("pixel under the near triangle = %v, want blue", got)
	}
	if got := out.FrontPixel(testW-1, testH-1); got != render.ColorRed {
		t.Errorf("pixel outside the near triangle = %v, want red", got)
	}
}

func TestSimClearAndPresent(t *testing.T) {
	dev, _ := openSim(t, DefaultSimConfig())
	cid, color := setupDraw(t, dev)
	green := render.PackARGB(render.ColorGreen)
	if err := dev.Clear(cid, ClearColor, green, 0, 8, 8, 4, 4); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := dev.Present(color, testW, testH); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	out := render.NewFramebuffer(testW, testH)
	if err := dev.ReadFramebuffer(out); err != nil {
		t.Fatalf("ReadFramebuffer: %v", err)
	}
	if got := out.FrontPixel(9, 9); got != render.ColorGreen {
		t.Errorf("cleared pixel = %v, want green", got)
	}
	if got := out.FrontPixel(12, 12); got == render.ColorGreen {
		t.Error("pixel outside the clear rect is green")
	}
}

func TestSimInjectedFaults(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*SimConfig)
		run   func(*Device) error
	}{
		{"context", func(c *SimConfig) { c.FailContext = true }, func(d *Device) error {
			_, err := d.DefineContext()
			return err
		}},
		{"surfaces", func(c *SimConfig) { c.FailSurfaces = true }, func(d *Device) error {
			_, err := d.DefineSurface(SurfaceDesc{Format: FormatA8R8G8B8, Width: 4, Height: 4})
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSimConfig()
			tc.apply(&cfg)
			dev, sim := openSim(t, cfg)
			if err := tc.run(dev); err != nil {
				t.Fatalf("queueing the command failed: %v", err)
			}
			if err := dev.Sync(); !errors.Is(err, ErrSyncTimeout) {
				t.Errorf("Sync = %v, want ErrSyncTimeout", err)
			}
			if !sim.Hung() {
				t.Error("sim not hung after injected fault")
			}
		})
	}
}

func TestSimMapRejectsUnknownRange(t *testing.T) {
	sim := NewSim(DefaultSimConfig())
	if _, err := sim.Map(0x1000, 16); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Map(low memory) = %v, want ErrOutOfRange", err)
	}
	if _, err := sim.Map(SimFIFOBase, 1<<30); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Map(oversized) = %v, want ErrOutOfRange", err)
	}
}

func TestSimAllocPages(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.RAMSize = 4 * PageSize
	sim := NewSim(cfg)
	a, err := sim.AllocPages(3)
	if err != nil {
		t.Fatalf("AllocPages(3): %v", err)
	}
	if _, err := sim.AllocPages(2); !errors.Is(err, ErrSimOutOfMemory) {
		t.Errorf("AllocPages(2) = %v, want ErrSimOutOfMemory", err)
	}
	sim.FreePages(a)
	b, err := sim.AllocPages(4)
	if err != nil {
		t.Fatalf("AllocPages(4) after free: %v", err)
	}
	if b.Phys != SimRAMBase || b.PPN() != uint32(SimRAMBase/PageSize) {
		t.Errorf("buffer at %#x, want %#x", b.Phys, SimRAMBase)
	}
}
