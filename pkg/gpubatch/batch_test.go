package gpubatch

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/svga"
)

const testW, testH = 64, 48

func openDevice(t *testing.T, cfg svga.SimConfig) (*svga.Device, *svga.Sim) {
	t.Helper()
	sim := svga.NewSim(cfg)
	dev, err := svga.Open(context.Background(), sim.Bus(), svga.Config{Width: testW, Height: testH, SyncRetries: 64})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return dev, sim
}

func newReadyBatch(t *testing.T, capacity int) (*Batch, *svga.Device, *svga.Sim) {
	t.Helper()
	dev, sim := openDevice(t, svga.DefaultSimConfig())
	b := New(capacity)
	if err := b.Init(dev, testW, testH); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, dev, sim
}

// rect returns two triangles covering [x0,x1)×[y0,y1).
func rect(t *testing.T, x0, y0, x1, y1 float64, c color.RGBA) []render.ScreenTriangle {
	t.Helper()
	v := func(x, y float64) render.ScreenVertex {
		return render.ScreenVertex{X: x, Y: y, Z: 0.5, Color: c}
	}
	var out []render.ScreenTriangle
	for _, tri := range [][3]render.ScreenVertex{
		{v(x0, y0), v(x1, y0), v(x1, y1)},
		{v(x0, y0), v(x1, y1), v(x0, y1)},
	} {
		st, ok := render.NewScreenTriangle(tri, testW, testH)
		if !ok {
			t.Fatalf("NewScreenTriangle(%v) rejected", tri)
		}
		out = append(out, st)
	}
	return out
}

func readScreen(t *testing.T, dev *svga.Device) *render.Framebuffer {
	t.Helper()
	fb := render.NewFramebuffer(testW, testH)
	if err := dev.ReadFramebuffer(fb); err != nil {
		t.Fatalf("ReadFramebuffer: %v", err)
	}
	return fb
}

func TestFullScreenFrame(t *testing.T) {
	b, dev, _ := newReadyBatch(t, 0)
	c := color.RGBA{R: 200, G: 30, B: 90, A: 255}

	if err := b.Begin(render.ColorBlack); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, st := range rect(t, 0, 0, testW, testH, c) {
		if !b.Add(&st) {
			t.Fatal("Add rejected a triangle")
		}
	}
	if err := b.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if b.State() != Presented {
		t.Errorf("State = %v, want %v", b.State(), Presented)
	}

	fb := readScreen(t, dev)
	for y := range testH {
		for x := range testW {
			if got := fb.FrontPixel(x, y); got != c {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, c)
			}
		}
	}
	st := b.Stats()
	if st.Frames != 1 || st.Batches != 1 || st.Triangles != 2 {
		t.Errorf("Stats = %+v, want 1 frame, 1 batch, 2 triangles", st)
	}
}

func TestMultipleBatchesPerFrame(t *testing.T) {
	b, dev, sim := newReadyBatch(t, 4)
	bands := []color.RGBA{render.ColorRed, render.ColorGreen, render.ColorBlue}

	if err := b.Begin(render.ColorBlack); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i, c := range bands {
		for _, st := range rect(t, 0, float64(16*i), testW, float64(16*(i+1)), c) {
			if b.NeedsFlush() {
				if err := b.Flush(); err != nil {
					t.Fatalf("Flush: %v", err)
				}
			}
			if !b.Add(&st) {
				t.Fatal("Add rejected a triangle")
			}
		}
	}
	if err := b.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if got := sim.Stats().Triangles; got != 6 {
		t.Errorf("device drew %d triangles, want 6", got)
	}
	if got := b.Stats().Batches; got != 2 {
		t.Errorf("Batches = %d, want 2", got)
	}
	fb := readScreen(t, dev)
	for i, c := range bands {
		y := 16*i + 8
		if got := fb.FrontPixel(testW/2, y); got != c {
			t.Errorf("band %d pixel = %v, want %v", i, got, c)
		}
	}
}

func TestAddWhenFull(t *testing.T) {
	b, _, _ := newReadyBatch(t, 1)
	if err := b.Begin(render.ColorBlack); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tris := rect(t, 0, 0, 8, 8, render.ColorWhite)
	if !b.Add(&tris[0]) {
		t.Fatal("first Add rejected")
	}
	if b.Add(&tris[1]) {
		t.Error("Add on a full batch succeeded")
	}
	if !b.NeedsFlush() {
		t.Error("NeedsFlush = false on a full batch")
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.Len() != 0 || b.State() != BatchFlushed {
		t.Errorf("after Flush: Len %d, State %v; want 0, %v", b.Len(), b.State(), BatchFlushed)
	}
	if !b.Add(&tris[1]) {
		t.Error("Add after Flush rejected")
	}
	if b.State() != BatchOpen {
		t.Errorf("State after Add = %v, want %v", b.State(), BatchOpen)
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	b, _, sim := newReadyBatch(t, 0)
	if err := b.Begin(render.ColorBlack); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	before := sim.Stats().Commands
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.Stats().Batches != 0 || b.State() != BatchOpen {
		t.Errorf("empty flush changed state: batches %d, state %v", b.Stats().Batches, b.State())
	}
	if got := sim.Stats().Commands; got != before {
		t.Errorf("empty flush executed %d commands", got-before)
	}
}

func TestInitFailures(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*svga.SimConfig)
	}{
		{"no 3d", func(c *svga.SimConfig) { c.No3D = true }},
		{"no gmr", func(c *svga.SimConfig) { c.NoGMR = true }},
		{"context fails", func(c *svga.SimConfig) { c.FailContext = true }},
		{"surfaces fail", func(c *svga.SimConfig) { c.FailSurfaces = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := svga.DefaultSimConfig()
			tc.apply(&cfg)
			dev, _ := openDevice(t, cfg)
			b := New(0)
			if err := b.Init(dev, testW, testH); !errors.Is(err, ErrUnavailable) {
				t.Fatalf("Init = %v, want ErrUnavailable", err)
			}
			if b.State() != Unavailable {
				t.Errorf("State = %v, want %v", b.State(), Unavailable)
			}
			if err := b.Begin(render.ColorBlack); !errors.Is(err, ErrUnavailable) {
				t.Errorf("Begin = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	b := New(0)
	if err := b.Begin(render.ColorBlack); !errors.Is(err, ErrBadState) {
		t.Errorf("Begin before Init = %v, want ErrBadState", err)
	}
	tris := rect(t, 0, 0, 8, 8, render.ColorWhite)
	if b.Add(&tris[0]) {
		t.Error("Add before Init succeeded")
	}

	b, _, _ = newReadyBatch(t, 0)
	if err := b.End(); !errors.Is(err, ErrBadState) {
		t.Errorf("End before Begin = %v, want ErrBadState", err)
	}
	if err := b.Flush(); !errors.Is(err, ErrBadState) {
		t.Errorf("Flush before Begin = %v, want ErrBadState", err)
	}
	if err := b.Begin(render.ColorBlack); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := b.Begin(render.ColorBlack); !errors.Is(err, ErrBadState) {
		t.Errorf("Begin twice = %v, want ErrBadState", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Uninitialized, "uninitialized"},
		{BatchFlushed, "batch-flushed"},
		{Unavailable, "unavailable"},
		{State(42), "State(42)"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tc.s), got, tc.want)
		}
	}
}
