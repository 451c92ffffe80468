package pipeline

import (
	"fmt"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/gpubatch"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/svga"
)

// HardwareBackend draws through an SVGA3D device. Triangles are batched
// into a guest memory region and flushed whenever the batch fills.
type HardwareBackend struct {
	dev     *svga.Device
	batch   *gpubatch.Batch
	display Display

	dropped  int
	batches  uint64
	fallback uint64
}

// NewHardwareBackend initializes a batch on dev. Errors wrap
// gpubatch.ErrUnavailable.
func NewHardwareBackend(dev *svga.Device, cfg Config, display Display) (*HardwareBackend, error) {
	if dev == nil {
		return nil, fmt.Errorf("pipeline: hardware backend: no device: %w", gpubatch.ErrUnavailable)
	}
	b := gpubatch.New(cfg.BatchCapacity)
	if err := b.Init(dev, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if display == nil {
		display = NopDisplay{}
	}
	return &HardwareBackend{dev: dev, batch: b, display: display}, nil
}

// Name implements Backend.
func (h *HardwareBackend) Name() string { return string(BackendHardware) }

// Batch returns the device batch.
func (h *HardwareBackend) Batch() *gpubatch.Batch { return h.batch }

// Begin clears the device targets.
func (h *HardwareBackend) Begin(f *Frame) error {
	st := h.batch.Stats()
	h.dropped, h.batches, h.fallback = 0, st.Batches, st.CPUFallback
	return h.batch.Begin(f.Clear)
}

// Submit adds tri to the batch, flushing first when it is full. A failed
// flush loses its triangles; the frame continues.
func (h *HardwareBackend) Submit(tri render.ScreenTriangle) {
	if h.batch.NeedsFlush() {
		if err := h.batch.Flush(); err != nil {
			logging.Get().Warn("pipeline: batch flush", "error", err)
		}
	}
	if !h.batch.Add(&tri) {
		h.dropped++
	}
}

// Finish implements Backend. Triangles still queued are drawn by Present.
func (h *HardwareBackend) Finish(*Frame) error { return nil }

// Present ends the device frame, mirrors VRAM into the front buffer and
// refreshes the display.
func (h *HardwareBackend) Present(f *Frame) error {
	err := h.batch.End()
	if f.Stats != nil {
		st := h.batch.Stats()
		f.Stats.Dropped += h.dropped + int(st.CPUFallback-h.fallback)
		f.Stats.Batches = int(st.Batches - h.batches)
	}
	if err != nil {
		return err
	}
	if err := h.dev.ReadFramebuffer(f.Framebuffer); err != nil {
		return err
	}
	return h.display.Refresh(f.Framebuffer)
}

// Close releases the device objects.
func (h *HardwareBackend) Close() error {
	return h.batch.Close()
}
