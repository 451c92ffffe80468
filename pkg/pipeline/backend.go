package pipeline

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/tiles"
)

// Frame carries one frame through a backend.
type Frame struct {
	Index       uint64
	Target      *render.Target
	Framebuffer *render.Framebuffer
	Viewport    render.Viewport
	Clear       color.RGBA
	Stats       *FrameStats
}

// FrameStats counts the work of one frame.
type FrameStats struct {
	Objects   int
	Culled    int
	Rejected  int // failed transform: clipped, back-facing or degenerate
	Submitted int
	Dropped   int // lost to a full buffer, bin or batch
	Tiles     tiles.Stats
	Raster    render.RasterStats
	Batches   int
}

// Backend turns submitted screen triangles into a presented frame.
//
// A frame calls Begin, then Submit for each triangle, then Finish while
// the surface is held, and Present after it is released.
type Backend interface {
	Name() string
	Begin(f *Frame) error
	Submit(tri render.ScreenTriangle)
	Finish(f *Frame) error
	Present(f *Frame) error
	Close() error
}

// Display shows a presented framebuffer.
type Display interface {
	Refresh(fb *render.Framebuffer) error
}

// NopDisplay discards refreshes. Headless renders read the framebuffer
// directly.
type NopDisplay struct{}

// Refresh implements Display.
func (NopDisplay) Refresh(*render.Framebuffer) error { return nil }

// BackendKind selects a backend in Config.
type BackendKind string

const (
	BackendAuto     BackendKind = "auto"
	BackendSoftware BackendKind = "software"
	BackendHardware BackendKind = "hardware"
)

// ParseBackendKind maps a config value to a kind. The empty string is
// auto.
func ParseBackendKind(s string) (BackendKind, error) {
	switch k := BackendKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendSoftware, BackendHardware:
		return k, nil
	default:
		return "", fmt.Errorf("pipeline: unknown backend %q", s)
	}
}
