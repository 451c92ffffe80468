package svga

import (
	"context"
	"errors"
	"fmt"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/render"
)

// DefaultGuestID is the guest OS id written to RegGuestID when Config
// leaves it zero.
const DefaultGuestID uint32 = 0x500A

var (
	// ErrNoCompatibleVersion is returned when the device accepts none of
	// ID2, ID1 or ID0.
	ErrNoCompatibleVersion = errors.New("svga: no compatible protocol version")
	// ErrUnsupported is returned for commands the device lacks a
	// capability for.
	ErrUnsupported = errors.New("svga: unsupported by device")
)

// Bus is the set of host services the driver needs: register ports,
// physical mappings and pinned pages.
type Bus struct {
	Ports  PortIO
	Mapper Mapper
	DMA    DMAAllocator
}

// Config selects the display mode and driver limits.
type Config struct {
	IOBase      uint16
	Width       int
	Height      int
	SyncRetries int
	GuestID     uint32
}

// Device is an initialized SVGA II device in 32-bit mode.
type Device struct {
	regs *Registers
	bus  Bus

	version  uint32
	caps     uint32
	vramSize uint32
	fbOffset int64
	width    int
	height   int
	pitch    int

	fb   Memory
	fifo *FIFO

	has3D bool
	gmrs  *GMRs

	contextIDs IDAllocator
	surfaceIDs IDAllocator
}

// Open negotiates the protocol, sets the mode, maps the framebuffer and
// command ring, and probes for 3D and guest memory regions.
func Open(ctx context.Context, bus Bus, cfg Config) (*Device, error) {
	if bus.Ports == nil || bus.Mapper == nil {
		return nil, errors.New("svga: bus needs ports and a mapper")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("svga: invalid mode %dx%d", cfg.Width, cfg.Height)
	}
	log := logging.Get()
	d := &Device{
		regs:       NewRegisters(bus.Ports, cfg.IOBase),
		bus:        bus,
		contextIDs: IDAllocator{name: "context"},
		surfaceIDs: IDAllocator{name: "surface"},
	}

	for _, id := range []uint32{ID2, ID1, ID0} {
		d.regs.Write(RegID, id)
		if d.regs.Read(RegID) == id {
			d.version = id
			break
		}
	}
	if d.version == 0 {
		return nil, ErrNoCompatibleVersion
	}

	d.caps = d.regs.Read(RegCapabilities)
	d.vramSize = d.regs.Read(RegVRAMSize)
	fbStart := d.regs.Read(RegFBStart)
	memStart := d.regs.Read(RegMemStart)
	memSize := d.regs.Read(RegMemSize)
	numRegs := int(d.regs.Read(RegMemRegs))
	if numRegs == 0 {
		numRegs = FIFONumRegs
	}

	maxW, maxH := int(d.regs.Read(RegMaxWidth)), int(d.regs.Read(RegMaxHeight))
	if cfg.Width > maxW || cfg.Height > maxH {
		return nil, fmt.Errorf("svga: mode %dx%d exceeds %dx%d: %w", cfg.Width, cfg.Height, maxW, maxH, ErrUnsupported)
	}
	d.regs.Write(RegWidth, uint32(cfg.Width))
	d.regs.Write(RegHeight, uint32(cfg.Height))
	d.regs.Write(RegBitsPerPixel, 32)
	d.regs.Write(RegEnable, 1)
	d.width, d.height = cfg.Width, cfg.Height
	d.pitch = int(d.regs.Read(RegBytesPerLine))
	d.fbOffset = int64(d.regs.Read(RegFBOffset))
	fbSize := d.regs.Read(RegFBSize)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	if d.fb, err = bus.Mapper.Map(uint64(fbStart), int(fbSize)); err != nil {
		return nil, fmt.Errorf("svga: map framebuffer: %w", err)
	}
	mem, err := bus.Mapper.Map(uint64(memStart), int(memSize))
	if err != nil {
		return nil, fmt.Errorf("svga: map fifo: %w", err)
	}
	d.fifo = NewFIFO(mem, d.regs, cfg.SyncRetries)
	d.fifo.Init(numRegs, d.caps)

	guest := cfg.GuestID
	if guest == 0 {
		guest = DefaultGuestID
	}
	d.regs.Write(RegGuestID, guest)
	d.regs.Write(RegConfigDone, 1)

	d.has3D = HasCap(d.caps, Cap3D) && d.fifo.Reg(FIFOHWVersion3D) >= HWVersionWS8B1
	if (HasCap(d.caps, CapGMR) || HasCap(d.caps, CapGMR2)) && bus.DMA != nil {
		d.gmrs = newGMRs(d)
	}

	log.Info("svga: device ready",
		"version", d.version&^Magic,
		"caps", fmt.Sprintf("%#x", d.caps),
		"vram", d.vramSize,
		"fifo", memSize,
		"mode", fmt.Sprintf("%dx%d", d.width, d.height),
		"pitch", d.pitch,
		"3d", d.has3D,
		"gmr", d.gmrs != nil)
	return d, nil
}

// Version returns the negotiated protocol id.
func (d *Device) Version() uint32 { return d.version }

// Caps returns the device capability bits.
func (d *Device) Caps() uint32 { return d.caps }

// Has3D reports whether SVGA3D commands are accepted.
func (d *Device) Has3D() bool { return d.has3D }

// FIFO returns the command ring.
func (d *Device) FIFO() *FIFO { return d.fifo }

// Width returns the mode width in pixels.
func (d *Device) Width() int { return d.width }

// Height returns the mode height in pixels.
func (d *Device) Height() int { return d.height }

// Pitch returns the framebuffer row pitch in bytes.
func (d *Device) Pitch() int { return d.pitch }

// Sync drains the command ring.
func (d *Device) Sync() error { return d.fifo.Sync() }

// GMRs returns the guest memory region table.
func (d *Device) GMRs() (*GMRs, error) {
	if d.gmrs == nil {
		return nil, ErrNoGMR
	}
	return d.gmrs, nil
}

// UpdateFull asks the device to refresh the whole screen.
func (d *Device) UpdateFull() error {
	if !d.fifo.Update(0, 0, uint32(d.width), uint32(d.height)) {
		return fmt.Errorf("svga: update: %w", ErrCommandDropped)
	}
	return nil
}

// RectCopy copies a screen rectangle inside VRAM.
func (d *Device) RectCopy(sx, sy, dx, dy, w, h int) error {
	if !HasCap(d.caps, CapRectCopy) {
		return fmt.Errorf("svga: rect copy: %w", ErrUnsupported)
	}
	if !d.fifo.RectCopy(uint32(sx), uint32(sy), uint32(dx), uint32(dy), uint32(w), uint32(h)) {
		return fmt.Errorf("svga: rect copy: %w", ErrCommandDropped)
	}
	return nil
}

// Refresh copies the front buffer of fb into VRAM and requests a full
// screen update. It makes Device usable as a 2D display.
func (d *Device) Refresh(fb *render.Framebuffer) error {
	w, h := min(fb.Width, d.width), min(fb.Height, d.height)
	words := NewWords(d.fb)
	front := fb.Front()
	for y := range h {
		row := front[y*fb.Stride : y*fb.Stride+w]
		words.WriteWords(d.fbOffset+int64(y*d.pitch), row)
	}
	return d.UpdateFull()
}

// ReadFramebuffer loads the visible VRAM contents into the front buffer
// of dst. dst must not be larger than the mode.
func (d *Device) ReadFramebuffer(dst *render.Framebuffer) error {
	if dst.Width > d.width || dst.Height > d.height {
		return fmt.Errorf("svga: read %dx%d from %dx%d mode: %w", dst.Width, dst.Height, d.width, d.height, ErrOutOfRange)
	}
	stride := d.pitch / 4
	ws := make([]uint32, stride*dst.Height)
	NewWords(d.fb).ReadWords(d.fbOffset, ws)
	dst.LoadFront(ws, stride)
	return nil
}

// Close disables the mode. Outstanding regions are released.
func (d *Device) Close() error {
	var err error
	if d.gmrs != nil {
		d.gmrs.freeAll()
	}
	if d.fifo != nil {
		err = d.fifo.Sync()
	}
	d.regs.Write(RegEnable, 0)
	return err
}
