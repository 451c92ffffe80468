package main

import (
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"

	"github.com/taigrr/tessel/pkg/render"
)

// termDisplay shows presented frames on a terminal using half blocks, with
// a one-line status overlay.
type termDisplay struct {
	term *uv.Terminal

	mu     sync.Mutex
	status string
}

func (d *termDisplay) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *termDisplay) Refresh(fb *render.Framebuffer) error {
	area := d.term.Bounds()
	fb.Draw(d.term, area)

	d.mu.Lock()
	status := d.status
	d.mu.Unlock()
	drawText(d.term, area.Min.X, area.Min.Y, status)

	return d.term.Display()
}

var statusStyle = uv.Style{
	Fg: color.RGBA{R: 120, G: 255, B: 120, A: 255},
	Bg: color.RGBA{A: 255},
}

func drawText(scr uv.Screen, x, y int, s string) {
	limit := scr.Bounds().Max.X
	for _, r := range s {
		if x >= limit {
			return
		}
		scr.SetCell(x, y, &uv.Cell{Content: string(r), Width: 1, Style: statusStyle})
		x++
	}
}
