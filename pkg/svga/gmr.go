package svga

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taigrr/tessel/internal/logging"
)

// MaxGMRs is the number of guest memory region slots the driver manages.
const MaxGMRs = 16

var (
	// ErrNoGMR is returned when the device supports neither GMR flavor.
	ErrNoGMR = errors.New("svga: guest memory regions not supported")
	// ErrGMRExhausted is returned when every slot is in use.
	ErrGMRExhausted = errors.New("svga: no free guest memory region")
	// ErrGMRNotFound is returned by Free for an unknown id.
	ErrGMRNotFound = errors.New("svga: no such guest memory region")
)

// GMR is a guest memory region: pinned pages registered with the device
// under an id that DMA commands refer to.
type GMR struct {
	ID    uint32
	Mem   Memory
	PPN   uint32
	Pages int
	Size  int

	buf DMABuffer
}

// GMRs is the device's region table. Slot i holds id i+1.
type GMRs struct {
	mu     sync.Mutex
	dev    *Device
	gmr2   bool
	maxIDs int
	slots  [MaxGMRs]*GMR
}

func newGMRs(d *Device) *GMRs {
	g := &GMRs{dev: d, gmr2: HasCap(d.caps, CapGMR2), maxIDs: MaxGMRs}
	if !g.gmr2 {
		if n := int(d.regs.Read(RegGMRMaxIDs)); n > 0 && n < MaxGMRs {
			// Id 0 is reserved, so the last usable id is n-1.
			g.maxIDs = n - 1
		}
	}
	return g
}

// Alloc pins enough pages for size bytes and registers them.
func (g *GMRs) Alloc(size int) (*GMR, error) {
	if size <= 0 {
		return nil, fmt.Errorf("svga: gmr size %d", size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	slot := -1
	for i := range g.maxIDs {
		if g.slots[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrGMRExhausted
	}

	pages := (size + PageSize - 1) / PageSize
	buf, err := g.dev.bus.DMA.AllocPages(pages)
	if err != nil {
		return nil, fmt.Errorf("svga: gmr pages: %w", err)
	}
	r := &GMR{ID: uint32(slot + 1), Mem: buf.Mem, PPN: buf.PPN(), Pages: pages, Size: size, buf: buf}
	if err := g.register(r); err != nil {
		g.dev.bus.DMA.FreePages(buf)
		return nil, err
	}
	g.slots[slot] = r
	logging.Get().Debug("svga: gmr allocated", "id", r.ID, "pages", pages, "gmr2", g.gmr2)
	return r, nil
}

func (g *GMRs) register(r *GMR) error {
	if g.gmr2 {
		ppns := make([]uint32, r.Pages)
		for i := range ppns {
			ppns[i] = r.PPN + uint32(i)
		}
		f := g.dev.fifo
		if !f.DefineGMR2(r.ID, uint32(r.Pages)) || !f.RemapGMR2(r.ID, ppns) {
			return fmt.Errorf("svga: define gmr %d: %w", r.ID, ErrCommandDropped)
		}
		return nil
	}

	// The device reads the descriptor when GMR_DESCRIPTOR is written, so
	// the page can be released right after.
	desc, err := g.dev.bus.DMA.AllocPages(1)
	if err != nil {
		return fmt.Errorf("svga: gmr descriptor: %w", err)
	}
	defer g.dev.bus.DMA.FreePages(desc)
	NewWords(desc.Mem).WriteWords(0, []uint32{r.PPN, uint32(r.Pages), 0, 0})
	g.dev.regs.Write(RegGMRID, r.ID)
	g.dev.regs.Write(RegGMRDescriptor, desc.PPN())
	return nil
}

// Get returns the region with the given id.
func (g *GMRs) Get(id uint32) (*GMR, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == 0 || id > MaxGMRs || g.slots[id-1] == nil {
		return nil, false
	}
	return g.slots[id-1], true
}

// Len returns the number of allocated regions.
func (g *GMRs) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Free unregisters region id and releases its pages.
func (g *GMRs) Free(id uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == 0 || id > MaxGMRs || g.slots[id-1] == nil {
		return ErrGMRNotFound
	}
	g.release(g.slots[id-1])
	g.slots[id-1] = nil
	return nil
}

func (g *GMRs) release(r *GMR) {
	// Queued DMA may still read the pages.
	if err := g.dev.fifo.Sync(); err != nil {
		logging.Get().Warn("svga: sync before gmr free", "id", r.ID, "error", err)
	}
	if g.gmr2 {
		if !g.dev.fifo.DefineGMR2(r.ID, 0) {
			logging.Get().Warn("svga: gmr undefine dropped", "id", r.ID)
		}
	} else {
		g.dev.regs.Write(RegGMRID, r.ID)
		g.dev.regs.Write(RegGMRDescriptor, 0)
	}
	g.dev.bus.DMA.FreePages(r.buf)
}

func (g *GMRs) freeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, s := range g.slots {
		if s != nil {
			g.release(s)
			g.slots[i] = nil
		}
	}
}
