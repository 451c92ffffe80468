package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw renders the front buffer onto a terminal screen. Each cell shows two
// framebuffer rows using an upper half block: foreground is the top pixel,
// background the bottom one. The framebuffer should be twice as tall as the
// area.
func (f *Framebuffer) Draw(scr uv.Screen, area uv.Rectangle) {
	for row := area.Min.Y; row < area.Max.Y; row++ {
		fy := (row - area.Min.Y) * 2
		for col := area.Min.X; col < area.Max.X; col++ {
			fx := col - area.Min.X
			if fx >= f.Width {
				break
			}
			scr.SetCell(col, row, &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: cellColor(f.FrontPixel(fx, fy)),
					Bg: cellColor(f.FrontPixel(fx, fy+1)),
				},
			})
		}
	}
}

func cellColor(c color.RGBA) color.Color {
	if c.A == 0 {
		return nil
	}
	return c
}

// Named colors used by the demo scenes and the default clear.
var (
	ColorBlack = color.RGBA{0, 0, 0, 255}
	ColorWhite = color.RGBA{255, 255, 255, 255}
	ColorRed   = color.RGBA{255, 0, 0, 255}
	ColorGreen = color.RGBA{0, 255, 0, 255}
	ColorBlue  = color.RGBA{0, 0, 255, 255}
	ColorSky   = color.RGBA{135, 206, 235, 255}
	ColorGrass = color.RGBA{34, 139, 34, 255}
	ColorGray  = color.RGBA{128, 128, 128, 255}
)

// RGB creates an opaque color.
func RGB(r, g, b uint8) color.RGBA {
	return color.RGBA{r, g, b, 255}
}
