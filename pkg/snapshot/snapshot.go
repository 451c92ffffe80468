// Package snapshot writes presented frames to image files and compares
// them against reference images.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"golang.org/x/image/webp"

	_ "github.com/ftrvxmtrx/tga"

	"github.com/taigrr/tessel/pkg/render"
)

var (
	// ErrFormat is returned for file extensions Save cannot write.
	ErrFormat = errors.New("snapshot: unsupported format")
	// ErrSizeMismatch is returned by Compare for images of different size.
	ErrSizeMismatch = errors.New("snapshot: image sizes differ")
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	WebP Format = "webp"
	BMP  Format = "bmp"
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	case "bmp":
		return BMP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, ext)
	}
}

// Encode writes img to w in format f. WebP output is lossless.
func Encode(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case WebP:
		err = nativewebp.Encode(w, img, nil)
	case BMP:
		err = bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, f)
	}
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", f, err)
	}
	return nil
}

// Save writes img to path, choosing the format from the extension.
func Save(path string, img image.Image) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := Encode(out, img, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SaveFramebuffer writes the front buffer of fb to path.
func SaveFramebuffer(path string, fb *render.Framebuffer) error {
	return Save(path, fb.ToImage())
}

// Load decodes a PNG, WebP or BMP file by extension. Anything else goes
// through the registered decoders, which include TGA.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch format, _ := FormatOf(path); format {
	case PNG:
		img, err = png.Decode(f)
	case WebP:
		img, err = webp.Decode(f)
	case BMP:
		img, err = bmp.Decode(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	return img, nil
}

// Diff summarizes a pixel comparison.
type Diff struct {
	Pixels   int   // pixels compared
	Differ   int   // pixels with a channel beyond the tolerance
	MaxDelta uint8 // largest channel difference seen
}

// Match reports whether no pixel differed.
func (d Diff) Match() bool { return d.Differ == 0 }

// Ratio is the fraction of differing pixels.
func (d Diff) Ratio() float64 {
	if d.Pixels == 0 {
		return 0
	}
	return float64(d.Differ) / float64(d.Pixels)
}

// Compare checks a and b pixel by pixel. A pixel differs when any of its
// 8-bit RGBA channels is more than tolerance apart.
func Compare(a, b image.Image, tolerance uint8) (Diff, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return Diff{}, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, ab.Size(), bb.Size())
	}
	var d Diff
	for y := range ab.Dy() {
		for x := range ab.Dx() {
			ca := channels(a.At(ab.Min.X+x, ab.Min.Y+y))
			cb := channels(b.At(bb.Min.X+x, bb.Min.Y+y))
			d.Pixels++
			var worst uint8
			for i := range ca {
				worst = max(worst, absDiff(ca[i], cb[i]))
			}
			d.MaxDelta = max(d.MaxDelta, worst)
			if worst > tolerance {
				d.Differ++
			}
		}
	}
	return d, nil
}

// Thumbnail scales img to w×h with Catmull-Rom filtering.
func Thumbnail(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// CompareScaled scales both images to size×size before comparing, so
// frames rendered at different resolutions can be checked against one
// reference.
func CompareScaled(a, b image.Image, size int, tolerance uint8) (Diff, error) {
	return Compare(Thumbnail(a, size, size), Thumbnail(b, size, size), tolerance)
}

func channels(c color.Color) [4]uint8 {
	r, g, b, a := c.RGBA()
	return [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
