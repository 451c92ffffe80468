package svga

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// PageSize is the granularity of DMA allocations and GMR descriptors.
const PageSize = 4096

// ErrOutOfRange is returned for accesses past the end of a Memory.
var ErrOutOfRange = errors.New("svga: access out of range")

// Memory is a mapped device or guest memory region. Offsets are relative
// to the start of the region.
type Memory interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Mapper maps a physical range of the device's address space.
type Mapper interface {
	Map(phys uint64, size int) (Memory, error)
}

// DMABuffer is a physically contiguous, pinned run of pages the device can
// read by physical page number.
type DMABuffer struct {
	Phys  uint64
	Pages int
	Mem   Memory
}

// PPN returns the physical page number of the first page.
func (b DMABuffer) PPN() uint32 { return uint32(b.Phys / PageSize) }

// DMAAllocator hands out pinned pages.
type DMAAllocator interface {
	AllocPages(n int) (DMABuffer, error)
	FreePages(b DMABuffer)
}

// RAM is a Memory backed by a byte slice. Slicing a RAM yields a window
// sharing the same storage.
type RAM []byte

// ReadAt implements io.ReaderAt.
func (r RAM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r)) {
		return 0, ErrOutOfRange
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Partial writes are refused.
func (r RAM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r)) {
		return 0, ErrOutOfRange
	}
	return copy(r[off:], p), nil
}

// Size returns the region length in bytes.
func (r RAM) Size() int64 { return int64(len(r)) }

// Words gives typed little-endian 32-bit access to a Memory. Memory errors
// are out-of-bounds programming errors and panic.
type Words struct {
	m Memory
}

// NewWords wraps m.
func NewWords(m Memory) Words { return Words{m: m} }

// Memory returns the wrapped region.
func (w Words) Memory() Memory { return w.m }

// Word returns the 32-bit word at index i.
func (w Words) Word(i int) uint32 {
	var buf [4]byte
	if _, err := w.m.ReadAt(buf[:], int64(i)*4); err != nil {
		panic(fmt.Errorf("svga: read word %d: %w", i, err))
	}
	return binary.LittleEndian.Uint32(buf[:])
}

// SetWord stores v at word index i.
func (w Words) SetWord(i int, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.m.WriteAt(buf[:], int64(i)*4); err != nil {
		panic(fmt.Errorf("svga: write word %d: %w", i, err))
	}
}

// WriteWords stores ws starting at byte offset off.
func (w Words) WriteWords(off int64, ws []uint32) {
	buf := make([]byte, 4*len(ws))
	for i, v := range ws {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	if _, err := w.m.WriteAt(buf, off); err != nil {
		panic(fmt.Errorf("svga: write %d words at %#x: %w", len(ws), off, err))
	}
}

// ReadWords fills ws from byte offset off.
func (w Words) ReadWords(off int64, ws []uint32) {
	buf := make([]byte, 4*len(ws))
	if _, err := w.m.ReadAt(buf, off); err != nil {
		panic(fmt.Errorf("svga: read %d words at %#x: %w", len(ws), off, err))
	}
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
}

// F32 returns the IEEE-754 bits of f as a command word.
func F32(f float32) uint32 { return math.Float32bits(f) }

// FromF32 interprets a command word as a float32.
func FromF32(w uint32) float32 { return math.Float32frombits(w) }
