package svga

import (
	"errors"
	"fmt"
	"sync"
)

// Physical layout of the simulated machine.
const (
	SimRAMBase  uint64 = 0x00100000
	SimVRAMBase uint64 = 0xE0000000
	SimFIFOBase uint64 = 0xFE000000
)

// ErrSimOutOfMemory is returned when the simulated RAM has no free run of
// the requested length.
var ErrSimOutOfMemory = errors.New("svga: sim out of pages")

// SimConfig shapes a simulated device. The fault switches let tests drive
// the driver's degrade paths.
type SimConfig struct {
	// MaxVersion is the highest protocol version accepted. Negative
	// values reject every id.
	MaxVersion int
	// MemRegs is the value reported in RegMemRegs.
	MemRegs int

	No3D      bool
	NoGMR     bool
	LegacyGMR bool

	// FailContext and FailSurfaces hang the device on the first context
	// or surface definition, so the next Sync times out.
	FailContext  bool
	FailSurfaces bool
	// StuckBusy keeps BUSY set forever.
	StuckBusy bool

	VRAMSize  int
	FIFOSize  int
	RAMSize   int
	MaxWidth  int
	MaxHeight int
}

// DefaultSimConfig returns a healthy device with 3D and GMR2.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MaxVersion: 2,
		VRAMSize:   16 << 20,
		FIFOSize:   256 << 10,
		RAMSize:    16 << 20,
		MaxWidth:   2560,
		MaxHeight:  1600,
	}
}

// SimStats counts what the simulated device has executed.
type SimStats struct {
	Commands  uint64
	Updates   uint64
	Draws     uint64
	Triangles uint64
	Presents  uint64
}

// Sim is an in-process SVGA II device. It implements PortIO, Mapper and
// DMAAllocator, so a Bus built from one Sim is a complete machine. The
// command ring is consumed synchronously when the guest writes RegSync.
type Sim struct {
	mu  sync.Mutex
	cfg SimConfig

	index uint32
	id    uint32
	regs  map[Reg]uint32
	gmrID uint32

	vram RAM
	fifo RAM
	ram  RAM
	used []bool

	busy  bool
	hung  bool
	fence uint32

	gmrs     map[uint32][]uint32
	contexts map[uint32]*simContext
	surfaces map[uint32]*simSurface

	stats SimStats
}

// NewSim builds a device. Zero sizes in cfg take their defaults.
func NewSim(cfg SimConfig) *Sim {
	def := DefaultSimConfig()
	if cfg.VRAMSize <= 0 {
		cfg.VRAMSize = def.VRAMSize
	}
	if cfg.FIFOSize <= 0 {
		cfg.FIFOSize = def.FIFOSize
	}
	if cfg.RAMSize <= 0 {
		cfg.RAMSize = def.RAMSize
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = def.MaxHeight
	}
	s := &Sim{
		cfg:      cfg,
		regs:     make(map[Reg]uint32),
		vram:     make(RAM, cfg.VRAMSize),
		fifo:     make(RAM, cfg.FIFOSize),
		ram:      make(RAM, cfg.RAMSize),
		used:     make([]bool, cfg.RAMSize/PageSize),
		gmrs:     make(map[uint32][]uint32),
		contexts: make(map[uint32]*simContext),
		surfaces: make(map[uint32]*simSurface),
	}
	if cfg.MaxVersion >= 0 {
		s.id = ID0
	}

	w := NewWords(s.fifo)
	fifoCaps := FIFOCapFence | FIFOCapReserve | FIFOCapAccelFront | FIFOCapPitchlock
	if !cfg.NoGMR && !cfg.LegacyGMR {
		fifoCaps |= FIFOCapGMR2
	}
	w.SetWord(FIFOCaps, fifoCaps)
	if !cfg.No3D {
		w.SetWord(FIFOHWVersion3D, HWVersionWS8B1)
	}
	return s
}

// Bus returns a bus wired entirely to s.
func (s *Sim) Bus() Bus {
	return Bus{Ports: s, Mapper: s, DMA: s}
}

// Stats returns execution counters.
func (s *Sim) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Fence returns the last fence id the device passed.
func (s *Sim) Fence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fence
}

// Hung reports whether an injected fault has stopped the device.
func (s *Sim) Hung() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hung
}

func (s *Sim) caps() uint32 {
	c := CapRectCopy | CapExtendedFIFO | CapPitchlock
	if !s.cfg.No3D {
		c |= Cap3D
	}
	switch {
	case s.cfg.NoGMR:
	case s.cfg.LegacyGMR:
		c |= CapGMR
	default:
		c |= CapGMR | CapGMR2
	}
	return c
}

// In32 implements PortIO.
func (s *Sim) In32(port uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port&1 == IndexPort {
		return s.index
	}
	return s.read(Reg(s.index))
}

// Out32 implements PortIO.
func (s *Sim) Out32(port uint16, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port&1 == IndexPort {
		s.index = v
		return
	}
	s.write(Reg(s.index), v)
}

func (s *Sim) bytesPerLine() uint32 {
	bpp := s.regs[RegBitsPerPixel]
	if bpp == 0 {
		bpp = 32
	}
	return s.regs[RegWidth] * bpp / 8
}

func (s *Sim) read(r Reg) uint32 {
	switch r {
	case RegID:
		return s.id
	case RegMaxWidth:
		return uint32(s.cfg.MaxWidth)
	case RegMaxHeight:
		return uint32(s.cfg.MaxHeight)
	case RegDepth:
		return 24
	case RegBitsPerPixel:
		if v, ok := s.regs[r]; ok {
			return v
		}
		return 32
	case RegRedMask:
		return 0xFF0000
	case RegGreenMask:
		return 0x00FF00
	case RegBlueMask:
		return 0x0000FF
	case RegBytesPerLine:
		return s.bytesPerLine()
	case RegFBStart:
		return uint32(SimVRAMBase)
	case RegFBOffset:
		return 0
	case RegVRAMSize:
		return uint32(len(s.vram))
	case RegFBSize:
		return s.bytesPerLine() * s.regs[RegHeight]
	case RegCapabilities:
		return s.caps()
	case RegMemStart:
		return uint32(SimFIFOBase)
	case RegMemSize:
		return uint32(len(s.fifo))
	case RegMemRegs:
		return uint32(s.cfg.MemRegs)
	case RegBusy:
		if s.busy || s.hung || s.cfg.StuckBusy {
			return 1
		}
		return 0
	case RegGMRMaxIDs:
		if s.cfg.NoGMR {
			return 0
		}
		return 64
	case RegGMRMaxDescriptorLen:
		return 4096
	}
	return s.regs[r]
}

func (s *Sim) write(r Reg, v uint32) {
	switch r {
	case RegID:
		if v&^0xFF == Magic && int(v&0xFF) <= s.cfg.MaxVersion {
			s.id = v
		}
	case RegSync:
		s.busy = true
		s.drain(v == SyncFIFOFull)
		s.busy = false
	case RegGMRID:
		s.gmrID = v
	case RegGMRDescriptor:
		s.defineLegacyGMR(s.gmrID, v)
	default:
		s.regs[r] = v
	}
}

// Map implements Mapper for the VRAM, FIFO and RAM apertures.
func (s *Sim) Map(phys uint64, size int) (Memory, error) {
	for _, a := range []struct {
		base uint64
		mem  RAM
	}{
		{SimVRAMBase, s.vram},
		{SimFIFOBase, s.fifo},
		{SimRAMBase, s.ram},
	} {
		if phys < a.base || phys >= a.base+uint64(len(a.mem)) {
			continue
		}
		off := phys - a.base
		if size < 0 || off+uint64(size) > uint64(len(a.mem)) {
			break
		}
		return a.mem[off : off+uint64(size)], nil
	}
	return nil, fmt.Errorf("svga: sim map %#x+%d: %w", phys, size, ErrOutOfRange)
}

// AllocPages implements DMAAllocator with a first-fit page bitmap.
func (s *Sim) AllocPages(n int) (DMABuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return DMABuffer{}, fmt.Errorf("svga: sim alloc %d pages", n)
	}
	run := 0
	for i, u := range s.used {
		if u {
			run = 0
			continue
		}
		run++
		if run < n {
			continue
		}
		first := i - n + 1
		for j := first; j <= i; j++ {
			s.used[j] = true
		}
		mem := s.ram[first*PageSize : (i+1)*PageSize]
		clear(mem)
		return DMABuffer{
			Phys:  SimRAMBase + uint64(first*PageSize),
			Pages: n,
			Mem:   mem,
		}, nil
	}
	return DMABuffer{}, ErrSimOutOfMemory
}

// FreePages implements DMAAllocator.
func (s *Sim) FreePages(b DMABuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := int((b.Phys - SimRAMBase) / PageSize)
	for i := first; i < first+b.Pages && i < len(s.used); i++ {
		s.used[i] = false
	}
}

// page returns the RAM backing physical page ppn.
func (s *Sim) page(ppn uint32) (RAM, bool) {
	phys := uint64(ppn) * PageSize
	if phys < SimRAMBase {
		return nil, false
	}
	off := phys - SimRAMBase
	if off+PageSize > uint64(len(s.ram)) {
		return nil, false
	}
	return s.ram[off : off+PageSize], true
}
