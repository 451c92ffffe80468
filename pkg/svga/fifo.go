package svga

import (
	"errors"
	"sync/atomic"

	"github.com/taigrr/tessel/internal/logging"
)

// DefaultSyncRetries bounds the BUSY polls of a single Sync.
const DefaultSyncRetries = 1_000_000

// ErrSyncTimeout is returned when the device stays busy past the retry
// bound.
var ErrSyncTimeout = errors.New("svga: sync timed out")

// Fencer is implemented by memories that need an explicit barrier between
// command writes and the cursor update that publishes them.
type Fencer interface {
	Fence()
}

// FIFO is the guest side of the command ring. The first words of the
// region are the MIN, MAX, NEXT_CMD and STOP registers; commands live in
// [MIN, MAX). The guest owns NEXT_CMD, the device owns STOP.
//
// A reservation is never split across the end of the ring. When the tail
// is too short the reservation fails; Sync rewinds a drained ring to MIN
// so later reservations see the whole capacity again.
//
// FIFO is not safe for concurrent use.
type FIFO struct {
	words   Words
	regs    *Registers
	caps    uint32
	retries int

	pending  bool
	full     bool
	fullStop uint32

	commands atomic.Uint64
	dropped  atomic.Uint64
}

// NewFIFO wraps a mapped ring. retries <= 0 selects DefaultSyncRetries.
func NewFIFO(mem Memory, regs *Registers, retries int) *FIFO {
	if retries <= 0 {
		retries = DefaultSyncRetries
	}
	return &FIFO{words: NewWords(mem), regs: regs, retries: retries}
}

// Init resets the ring to empty. numRegs is the device's MEM_REGS value;
// the command area starts after max(numRegs, FIFONumRegs) words. FIFO
// capabilities are read only when the device reports CapExtendedFIFO.
func (f *FIFO) Init(numRegs int, deviceCaps uint32) {
	minOff := uint32(max(numRegs, FIFONumRegs) * 4)
	maxOff := uint32(f.words.Memory().Size())
	f.words.SetWord(FIFOMin, minOff)
	f.words.SetWord(FIFOMax, maxOff)
	f.words.SetWord(FIFONextCmd, minOff)
	f.words.SetWord(FIFOStop, minOff)
	f.fence()

	f.caps = 0
	if HasCap(deviceCaps, CapExtendedFIFO) {
		f.caps = f.words.Word(FIFOCaps)
	}
	f.pending = false
	f.full = false
}

// Caps returns the FIFO capability bits.
func (f *FIFO) Caps() uint32 { return f.caps }

// Reg returns FIFO register word i.
func (f *FIFO) Reg(i int) uint32 { return f.words.Word(i) }

// Reserve claims n contiguous bytes and returns their offset in the ring.
// It fails while another reservation is pending, when the ring is full, or
// when the space ahead of NEXT_CMD is shorter than n.
//
// A full ring stays full until STOP moves or a Sync completes. STOP alone
// cannot tell an untouched full ring from one the device consumed a whole
// lap of, so recovery goes through Sync, which WriteCommand does for its
// retry.
func (f *FIFO) Reserve(n uint32) (uint32, bool) {
	if f.pending || n == 0 || n%4 != 0 {
		return 0, false
	}
	minOff := f.words.Word(FIFOMin)
	maxOff := f.words.Word(FIFOMax)
	next := f.words.Word(FIFONextCmd)
	stop := f.words.Word(FIFOStop)
	if n > maxOff-minOff {
		return 0, false
	}
	if f.full {
		if stop == f.fullStop {
			return 0, false
		}
		f.full = false
	}

	if next >= stop {
		if maxOff-next < n {
			return 0, false
		}
	} else if stop-next < n {
		return 0, false
	}
	f.pending = true
	return next, true
}

// Commit publishes n bytes written at the last reservation.
func (f *FIFO) Commit(n uint32) {
	f.pending = false
	minOff := f.words.Word(FIFOMin)
	maxOff := f.words.Word(FIFOMax)
	next := f.words.Word(FIFONextCmd) + n
	if next >= maxOff {
		next = minOff + (next - maxOff)
	}
	f.fence()
	f.words.SetWord(FIFONextCmd, next)
	f.fence()

	if stop := f.words.Word(FIFOStop); next == stop {
		f.full = true
		f.fullStop = stop
	}
	f.commands.Add(1)
}

// WriteCommand copies words into the ring. A failed reservation triggers
// one Sync and one retry; if that fails too the command is dropped and
// WriteCommand reports false.
func (f *FIFO) WriteCommand(words ...uint32) bool {
	n := uint32(len(words) * 4)
	off, ok := f.Reserve(n)
	if !ok {
		if err := f.Sync(); err != nil {
			logging.Get().Warn("svga: sync before retry", "error", err)
		}
		off, ok = f.Reserve(n)
	}
	if !ok {
		f.dropped.Add(1)
		logging.Get().Warn("svga: command dropped", "id", words[0], "bytes", n)
		return false
	}
	f.words.WriteWords(int64(off), words)
	f.Commit(n)
	return true
}

// Sync asks the device to drain the ring and polls BUSY until it clears,
// at most the configured number of times. On a full ring the request
// carries SyncFIFOFull so the device consumes the whole lap.
func (f *FIFO) Sync() error {
	reason := SyncGeneric
	if f.full {
		reason = SyncFIFOFull
	}
	f.regs.Write(RegSync, reason)
	for range f.retries {
		if f.regs.Read(RegBusy) == 0 {
			f.full = false
			f.rewind()
			return nil
		}
	}
	return ErrSyncTimeout
}

// rewind moves both cursors back to MIN once the device has consumed
// everything, bracketing the update with CONFIG_DONE so the device does
// not read the ring meanwhile.
func (f *FIFO) rewind() {
	if f.pending {
		return
	}
	minOff := f.words.Word(FIFOMin)
	next := f.words.Word(FIFONextCmd)
	if next == minOff || next != f.words.Word(FIFOStop) {
		return
	}
	f.regs.Write(RegConfigDone, 0)
	f.words.SetWord(FIFONextCmd, minOff)
	f.words.SetWord(FIFOStop, minOff)
	f.fence()
	f.regs.Write(RegConfigDone, 1)
}

// Commands returns the number of committed commands.
func (f *FIFO) Commands() uint64 { return f.commands.Load() }

// Dropped returns the number of commands dropped for lack of space.
func (f *FIFO) Dropped() uint64 { return f.dropped.Load() }

func (f *FIFO) fence() {
	if fn, ok := f.words.Memory().(Fencer); ok {
		fn.Fence()
	}
}
