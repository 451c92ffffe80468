package render

import (
	"image"
	"image/color"
)

// Framebuffer is double-buffered ARGB8888 pixel storage. Rendering targets the
// back buffer; Present copies it to the front buffer, which is what displays
// read.
type Framebuffer struct {
	Width  int
	Height int
	// Stride is the row pitch in pixels. It is at least Width.
	Stride int

	back  []uint32
	front []uint32
}

// NewFramebuffer creates a framebuffer whose stride equals its width.
func NewFramebuffer(width, height int) *Framebuffer {
	return NewFramebufferStride(width, height, width)
}

// NewFramebufferStride creates a framebuffer with an explicit row pitch, as
// exposed by display hardware that pads scanlines.
func NewFramebufferStride(width, height, stride int) *Framebuffer {
	stride = max(stride, width)
	return &Framebuffer{
		Width:  width,
		Height: height,
		Stride: stride,
		back:   make([]uint32, stride*height),
		front:  make([]uint32, stride*height),
	}
}

// Back returns the back buffer words.
func (f *Framebuffer) Back() []uint32 { return f.back }

// Front returns the front buffer words.
func (f *Framebuffer) Front() []uint32 { return f.front }

// Clear fills the back buffer with c.
func (f *Framebuffer) Clear(c color.RGBA) {
	fill(f.back, PackARGB(c))
}

// SetPixel writes c to the back buffer. Out-of-bounds writes are ignored.
func (f *Framebuffer) SetPixel(x, y int, c color.RGBA) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return
	}
	f.back[y*f.Stride+x] = PackARGB(c)
}

// Pixel reads the back buffer.
func (f *Framebuffer) Pixel(x, y int) color.RGBA {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return color.RGBA{}
	}
	return UnpackARGB(f.back[y*f.Stride+x])
}

// FrontPixel reads the front buffer.
func (f *Framebuffer) FrontPixel(x, y int) color.RGBA {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return color.RGBA{}
	}
	return UnpackARGB(f.front[y*f.Stride+x])
}

// Present copies the back buffer to the front buffer.
func (f *Framebuffer) Present() {
	copy(f.front, f.back)
}

// LoadFront replaces the front buffer with rows read from src, which uses
// srcStride words per row. Used to mirror a device framebuffer.
func (f *Framebuffer) LoadFront(src []uint32, srcStride int) {
	for y := range f.Height {
		s := src[y*srcStride:]
		copy(f.front[y*f.Stride:y*f.Stride+f.Width], s[:f.Width])
	}
}

// ToImage converts the front buffer to an image.
func (f *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := range f.Height {
		row := f.front[y*f.Stride : y*f.Stride+f.Width]
		for x, p := range row {
			img.SetRGBA(x, y, UnpackARGB(p))
		}
	}
	return img
}

// PackARGB packs c into a 0xAARRGGBB word.
func PackARGB(c color.RGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// UnpackARGB is the inverse of PackARGB.
func UnpackARGB(p uint32) color.RGBA {
	return color.RGBA{R: uint8(p >> 16), G: uint8(p >> 8), B: uint8(p), A: uint8(p >> 24)}
}

// fill sets every element of s to v using doubling copies.
func fill[T any](s []T, v T) {
	if len(s) == 0 {
		return
	}
	s[0] = v
	for n := 1; n < len(s); n *= 2 {
		copy(s[n:], s[:n])
	}
}
