package svga

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/render"
)

type simSurface struct {
	format SurfaceFormat
	flags  SurfaceFlags
	width  int
	height int

	color *render.Framebuffer
	depth *render.DepthBuffer
	buf   []byte
}

type simContext struct {
	color, depth uint32
	viewport     image.Rectangle
	zmin, zmax   float32
	transforms   [3][16]float32
	states       map[RenderStateID]uint32
	scratch      *render.DepthBuffer
}

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func newSimContext() *simContext {
	c := &simContext{
		zmax: 1,
		states: map[RenderStateID]uint32{
			RSZEnable:      1,
			RSZWriteEnable: 1,
			RSZFunc:        CmpLessEqual,
		},
	}
	for i := range c.transforms {
		c.transforms[i] = identity
	}
	return c
}

// execute3D runs one SVGA3D command. It returns false when an injected
// fault hangs the device.
func (s *Sim) execute3D(id uint32, body []uint32) bool {
	log := logging.Get()
	arg := func(i int) uint32 {
		if i < len(body) {
			return body[i]
		}
		return 0
	}
	if s.cfg.No3D {
		log.Warn("svga sim: 3d command without 3d", "id", id)
		return true
	}

	switch id {
	case Cmd3DContextDefine:
		if s.cfg.FailContext {
			return false
		}
		s.contexts[arg(0)] = newSimContext()
	case Cmd3DContextDestroy:
		delete(s.contexts, arg(0))
	case Cmd3DSurfaceDefine:
		if s.cfg.FailSurfaces {
			return false
		}
		s.defineSurface(arg(0), SurfaceFlags(arg(1)), SurfaceFormat(arg(2)), int(arg(9)), int(arg(10)))
	case Cmd3DSurfaceDestroy:
		delete(s.surfaces, arg(0))
	case Cmd3DSurfaceDMA:
		s.surfaceDMA(body)
	case Cmd3DSetTransform:
		c, t := s.contexts[arg(0)], arg(1)
		if c == nil || t > uint32(TransformProjection) || len(body) < 18 {
			break
		}
		for i := range 16 {
			c.transforms[t][i] = FromF32(body[2+i])
		}
	case Cmd3DSetZRange:
		if c := s.contexts[arg(0)]; c != nil {
			c.zmin, c.zmax = FromF32(arg(1)), FromF32(arg(2))
		}
	case Cmd3DSetRenderState:
		if c := s.contexts[arg(0)]; c != nil {
			for i := 1; i+1 < len(body); i += 2 {
				c.states[RenderStateID(body[i])] = body[i+1]
			}
		}
	case Cmd3DSetRenderTarget:
		if c := s.contexts[arg(0)]; c != nil {
			switch RenderTargetType(arg(1)) {
			case TargetColor:
				c.color = arg(2)
			case TargetDepth:
				c.depth = arg(2)
			}
		}
	case Cmd3DSetViewport:
		if c := s.contexts[arg(0)]; c != nil {
			x, y := int(arg(1)), int(arg(2))
			c.viewport = image.Rect(x, y, x+int(arg(3)), y+int(arg(4)))
		}
	case Cmd3DClear:
		s.clear(s.contexts[arg(0)], arg(1), arg(2), FromF32(arg(3)), body[min(5, len(body)):])
	case Cmd3DDrawPrimitives:
		s.draw(body)
	case Cmd3DPresent:
		s.present(arg(0), body[min(1, len(body)):])
	default:
		log.Warn("svga sim: unhandled 3d command", "id", id)
	}
	return true
}

func (s *Sim) defineSurface(sid uint32, flags SurfaceFlags, format SurfaceFormat, w, h int) {
	surf := &simSurface{format: format, flags: flags, width: w, height: h}
	switch format {
	case FormatA8R8G8B8, FormatX8R8G8B8:
		surf.color = render.NewFramebuffer(w, h)
	case FormatZD24S8, FormatZD32, FormatZD16:
		surf.depth = render.NewDepthBuffer(w, h)
	case FormatBuffer:
		surf.buf = make([]byte, w)
	default:
		logging.Get().Warn("svga sim: unsupported surface format", "sid", sid, "format", format)
		return
	}
	s.surfaces[sid] = surf
}

// surfaceDMA copies between a region and a buffer surface. Only linear
// transfers of the first copy box are supported.
func (s *Sim) surfaceDMA(body []uint32) {
	if len(body) < 16 {
		return
	}
	gmr, off := body[0], int(body[1])
	surf := s.surfaces[body[3]]
	transfer := body[6]
	x, w, srcx := int(body[7]), int(body[10]), int(body[13])
	if surf == nil || surf.buf == nil || x+w > len(surf.buf) {
		logging.Get().Warn("svga sim: unsupported surface dma", "sid", body[3])
		return
	}
	dst := surf.buf[x : x+w]
	if !s.gmrCopy(gmr, off+srcx, dst, transfer == TransferReadHostVRAM) {
		logging.Get().Warn("svga sim: surface dma outside gmr", "gmr", gmr, "offset", off)
	}
}

func (s *Sim) clear(c *simContext, flags, argb uint32, depth float32, rects []uint32) {
	if c == nil {
		return
	}
	for i := 0; i+3 < len(rects); i += 4 {
		r := image.Rect(int(rects[i]), int(rects[i+1]), int(rects[i]+rects[i+2]), int(rects[i+1]+rects[i+3]))
		if flags&ClearColor != 0 {
			if cs := s.surfaces[c.color]; cs != nil && cs.color != nil {
				fb := cs.color
				r := r.Intersect(image.Rect(0, 0, fb.Width, fb.Height))
				back := fb.Back()
				for y := r.Min.Y; y < r.Max.Y; y++ {
					row := back[y*fb.Stride+r.Min.X : y*fb.Stride+r.Max.X]
					for x := range row {
						row[x] = argb
					}
				}
			}
		}
		if flags&ClearDepth != 0 {
			if ds := s.surfaces[c.depth]; ds != nil && ds.depth != nil {
				db := ds.depth
				r := r.Intersect(image.Rect(0, 0, db.Width, db.Height))
				for y := r.Min.Y; y < r.Max.Y; y++ {
					row := db.Values[y*db.Width+r.Min.X : y*db.Width+r.Max.X]
					for x := range row {
						row[x] = depth
					}
				}
			}
		}
	}
}

type simDecl struct {
	typ, usage uint32
	sid        uint32
	offset     int
	stride     int
}

// draw executes DRAW_PRIMITIVES: each range of non-indexed triangles is
// transformed by world, view and projection, mapped through the viewport
// and z range, and rasterized with a greater-than depth test.
func (s *Sim) draw(body []uint32) {
	log := logging.Get()
	if len(body) < 3 {
		return
	}
	c := s.contexts[body[0]]
	numDecls, numRanges := int(body[1]), int(body[2])
	if c == nil || len(body) < 3+9*numDecls+7*numRanges {
		log.Warn("svga sim: bad draw", "cid", body[0])
		return
	}
	var pos, col *simDecl
	for i := range numDecls {
		d := body[3+9*i:]
		decl := &simDecl{typ: d[0], usage: d[2], sid: d[4], offset: int(d[5]), stride: int(d[6])}
		switch {
		case decl.usage == UsagePosition && decl.typ == DeclFloat3:
			pos = decl
		case decl.usage == UsageColor && decl.typ == DeclD3DColor:
			col = decl
		}
	}
	cs := s.surfaces[c.color]
	if pos == nil || cs == nil || cs.color == nil {
		log.Warn("svga sim: draw without position or color target", "cid", body[0])
		return
	}
	if z := c.states[RSZFunc]; z != CmpGreater {
		log.Debug("svga sim: depth func treated as greater", "zfunc", z)
	}

	target := render.NewTarget(cs.color, s.depthFor(c, cs))
	vp := c.viewport
	if vp.Empty() {
		vp = image.Rect(0, 0, cs.width, cs.height)
	}
	clip := vp.Intersect(image.Rect(0, 0, cs.width, cs.height))
	m := mul4(mul4(c.transforms[TransformWorld], c.transforms[TransformView]), c.transforms[TransformProjection])

	ranges := body[3+9*numDecls:]
	for r := range numRanges {
		rg := ranges[7*r:]
		if rg[0] != PrimTriangleList || rg[2] != InvalidID {
			log.Warn("svga sim: unsupported primitive range", "type", rg[0], "index_sid", rg[2])
			continue
		}
		bias := int(int32(rg[6]))
		for t := range int(rg[1]) {
			var v [3]render.ScreenVertex
			ok := true
			for k := range 3 {
				idx := bias + 3*t + k
				x, y, z, good := s.position(pos, idx)
				if !good {
					ok = false
					break
				}
				v[k] = c.toScreen(m, vp, x, y, z)
				v[k].Color = s.vertexColor(col, idx)
			}
			if !ok {
				log.Warn("svga sim: vertex outside buffer", "cid", body[0])
				break
			}
			st, ok := render.NewScreenTriangle(v, cs.width, cs.height)
			if !ok {
				continue
			}
			render.Rasterize(target, clip, &st)
			s.stats.Triangles++
		}
	}
	s.stats.Draws++
}

// depthFor returns the depth surface bound to c, or a scratch buffer
// cleared on every draw when depth testing is off or nothing is bound.
func (s *Sim) depthFor(c *simContext, cs *simSurface) *render.DepthBuffer {
	if ds := s.surfaces[c.depth]; ds != nil && ds.depth != nil && c.states[RSZEnable] != 0 &&
		ds.width == cs.width && ds.height == cs.height {
		return ds.depth
	}
	if c.scratch == nil || c.scratch.Width != cs.width || c.scratch.Height != cs.height {
		c.scratch = render.NewDepthBuffer(cs.width, cs.height)
	}
	c.scratch.Clear()
	return c.scratch
}

func (s *Sim) position(d *simDecl, idx int) (x, y, z float64, ok bool) {
	buf := s.vertexBytes(d, idx, 12)
	if buf == nil {
		return 0, 0, 0, false
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return f(0), f(1), f(2), true
}

func (s *Sim) vertexColor(d *simDecl, idx int) color.RGBA {
	if d == nil {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	buf := s.vertexBytes(d, idx, 4)
	if buf == nil {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return render.UnpackARGB(binary.LittleEndian.Uint32(buf))
}

func (s *Sim) vertexBytes(d *simDecl, idx, n int) []byte {
	surf := s.surfaces[d.sid]
	if surf == nil || surf.buf == nil || idx < 0 {
		return nil
	}
	off := d.offset + idx*d.stride
	if off+n > len(surf.buf) {
		return nil
	}
	return surf.buf[off : off+n]
}

// toScreen applies m to the row vector (x, y, z, 1), divides by w and maps
// the result through the viewport and z range.
func (c *simContext) toScreen(m [16]float32, vp image.Rectangle, x, y, z float64) render.ScreenVertex {
	var out [4]float64
	in := [4]float64{x, y, z, 1}
	for j := range 4 {
		for i := range 4 {
			out[j] += in[i] * float64(m[i*4+j])
		}
	}
	if w := out[3]; math.Abs(w) > 1e-9 {
		out[0] /= w
		out[1] /= w
		out[2] /= w
	}
	zmin, zmax := float64(c.zmin), float64(c.zmax)
	return render.ScreenVertex{
		X: float64(vp.Min.X) + (out[0]+1)*0.5*float64(vp.Dx()),
		Y: float64(vp.Min.Y) + (1-out[1])*0.5*float64(vp.Dy()),
		Z: zmin + out[2]*(zmax-zmin),
	}
}

// mul4 multiplies two row-major matrices for row vectors: v·a·b.
func mul4(a, b [16]float32) [16]float32 {
	var r [16]float32
	for i := range 4 {
		for j := range 4 {
			var sum float32
			for k := range 4 {
				sum += a[i*4+k] * b[k*4+j]
			}
			r[i*4+j] = sum
		}
	}
	return r
}

// present copies rectangles of a color surface to the screen.
func (s *Sim) present(sid uint32, rects []uint32) {
	surf := s.surfaces[sid]
	if surf == nil || surf.color == nil {
		logging.Get().Warn("svga sim: present of unknown surface", "sid", sid)
		return
	}
	vram, pitch, sw, sh := s.screen()
	back := surf.color.Back()
	stride := surf.color.Stride
	for i := 0; i+5 < len(rects); i += 6 {
		x, y, sx, sy, w, h := rects[i], rects[i+1], rects[i+2], rects[i+3], rects[i+4], rects[i+5]
		w = min(w, sw-min(x, sw), uint32(surf.width)-min(sx, uint32(surf.width)))
		h = min(h, sh-min(y, sh), uint32(surf.height)-min(sy, uint32(surf.height)))
		for r := range h {
			src := back[int(sy+r)*stride+int(sx) : int(sy+r)*stride+int(sx+w)]
			vram.WriteWords(int64((y+r)*pitch+x*4), src)
		}
	}
	s.stats.Presents++
}
