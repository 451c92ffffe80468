package svga

import (
	"errors"
	"testing"
)

// newTestFIFO returns an initialized ring of size bytes backed by a sim.
func newTestFIFO(t *testing.T, cfg SimConfig, size int) (*FIFO, *Sim) {
	t.Helper()
	cfg.FIFOSize = size
	sim := NewSim(cfg)
	regs := NewRegisters(sim, 0)
	mem, err := sim.Map(SimFIFOBase, size)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	f := NewFIFO(mem, regs, 64)
	f.Init(cfg.MemRegs, sim.caps())
	regs.Write(RegConfigDone, 1)
	return f, sim
}

func TestFIFOInit(t *testing.T) {
	tests := []struct {
		memRegs int
		wantMin uint32
	}{
		{0, 16},
		{4, 16},
		{10, 40},
	}
	for _, tc := range tests {
		cfg := DefaultSimConfig()
		cfg.MemRegs = tc.memRegs
		f, _ := newTestFIFO(t, cfg, 4096)
		if got := f.Reg(FIFOMin); got != tc.wantMin {
			t.Errorf("memRegs %d: MIN = %d, want %d", tc.memRegs, got, tc.wantMin)
		}
		if got := f.Reg(FIFOMax); got != 4096 {
			t.Errorf("memRegs %d: MAX = %d, want 4096", tc.memRegs, got)
		}
		if f.Reg(FIFONextCmd) != tc.wantMin || f.Reg(FIFOStop) != tc.wantMin {
			t.Errorf("memRegs %d: NEXT/STOP = %d/%d, want both %d", tc.memRegs, f.Reg(FIFONextCmd), f.Reg(FIFOStop), tc.wantMin)
		}
		if f.Caps()&FIFOCapFence == 0 {
			t.Errorf("memRegs %d: Caps = %#x, want fence capability", tc.memRegs, f.Caps())
		}
	}
}

func TestReserveBoundary(t *testing.T) {
	const size = 4096
	f, _ := newTestFIFO(t, DefaultSimConfig(), size)

	off, ok := f.Reserve(size - 16)
	if !ok || off != 16 {
		t.Fatalf("Reserve(%d) = %d, %v; want 16, true", size-16, off, ok)
	}
	if _, ok := f.Reserve(size - 16); ok {
		t.Error("second Reserve while pending succeeded, want failure")
	}
	f.Commit(size - 16)
	if got := f.Reg(FIFONextCmd); got != 16 {
		t.Errorf("NEXT after full commit = %d, want wrapped to 16", got)
	}
	if _, ok := f.Reserve(size - 16); ok {
		t.Error("Reserve on a full ring succeeded, want failure")
	}
	if _, ok := f.Reserve(4); ok {
		t.Error("Reserve(4) on a full ring succeeded, want failure")
	}
}

func TestReserveDoesNotSplit(t *testing.T) {
	const size = 4096
	f, _ := newTestFIFO(t, DefaultSimConfig(), size)

	if _, ok := f.Reserve(4000); !ok {
		t.Fatal("Reserve(4000) failed on an empty ring")
	}
	f.Commit(4000)
	// 80 bytes remain before MAX; more would need a split.
	if _, ok := f.Reserve(84); ok {
		t.Error("Reserve(84) with an 80 byte tail succeeded, want failure")
	}
	off, ok := f.Reserve(80)
	if !ok || off != 4016 {
		t.Fatalf("Reserve(80) = %d, %v; want 4016, true", off, ok)
	}
	f.Commit(80)
	if got := f.Reg(FIFONextCmd); got != 16 {
		t.Errorf("NEXT = %d, want 16 after reaching MAX", got)
	}
}

func TestReserveRejectsBadSizes(t *testing.T) {
	f, _ := newTestFIFO(t, DefaultSimConfig(), 4096)
	for _, n := range []uint32{0, 3, 4096} {
		if _, ok := f.Reserve(n); ok {
			t.Errorf("Reserve(%d) succeeded, want failure", n)
		}
	}
}

func TestWriteCommandSyncsAndRetries(t *testing.T) {
	// 252 bytes of command space hold 12 updates with a 12 byte tail, so
	// every 13th update needs a sync and a rewind.
	f, sim := newTestFIFO(t, DefaultSimConfig(), 268)

	const n = 50
	for i := range n {
		if !f.Update(0, 0, uint32(i+1), 1) {
			t.Fatalf("Update %d dropped", i)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := sim.Stats().Updates; got != n {
		t.Errorf("device executed %d updates, want %d", got, n)
	}
	if got := f.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
	if got := f.Commands(); got != n {
		t.Errorf("Commands = %d, want %d", got, n)
	}
}

func TestFullRingLapIsExecuted(t *testing.T) {
	// 240 bytes of command space hold exactly 12 updates, so the twelfth
	// commit lands NEXT back on STOP.
	f, sim := newTestFIFO(t, DefaultSimConfig(), 256)

	for i := range 12 {
		if !f.Update(0, 0, uint32(i+1), 1) {
			t.Fatalf("Update %d dropped", i)
		}
	}
	if next, stop := f.Reg(FIFONextCmd), f.Reg(FIFOStop); next != stop {
		t.Fatalf("NEXT/STOP = %d/%d, want equal on a full ring", next, stop)
	}
	if _, ok := f.Reserve(4); ok {
		t.Fatal("Reserve(4) on a full ring succeeded, want failure")
	}
	if got := sim.Stats().Updates; got != 0 {
		t.Fatalf("device executed %d updates before any sync, want 0", got)
	}

	if !f.Update(0, 0, 13, 1) {
		t.Fatal("Update after a full lap dropped, want sync and retry")
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := sim.Stats().Updates; got != 13 {
		t.Errorf("device executed %d updates, want 13", got)
	}
	if got := f.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
	if _, ok := f.Reserve(240); !ok {
		t.Error("Reserve(240) after draining failed, want the whole ring")
	}
}

func TestSyncRewindsDrainedRing(t *testing.T) {
	f, _ := newTestFIFO(t, DefaultSimConfig(), 4096)
	for range 5 {
		f.Fence(1)
	}
	if f.Reg(FIFONextCmd) == 16 {
		t.Fatal("NEXT did not advance")
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if next, stop := f.Reg(FIFONextCmd), f.Reg(FIFOStop); next != 16 || stop != 16 {
		t.Errorf("NEXT/STOP after sync = %d/%d, want 16/16", next, stop)
	}
}

func TestWriteCommandDropsWhenDeviceStuck(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.StuckBusy = true
	f, _ := newTestFIFO(t, cfg, 268)

	for i := range 12 {
		if !f.Update(0, 0, 1, 1) {
			t.Fatalf("Update %d dropped before the ring was full", i)
		}
	}
	if f.Update(0, 0, 1, 1) {
		t.Error("Update on a full ring with a stuck device succeeded, want dropped")
	}
	if got := f.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestSyncTimeout(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.StuckBusy = true
	f, _ := newTestFIFO(t, cfg, 4096)
	if err := f.Sync(); !errors.Is(err, ErrSyncTimeout) {
		t.Errorf("Sync = %v, want ErrSyncTimeout", err)
	}
}

func TestRemapGMR2Encoding(t *testing.T) {
	f, _ := newTestFIFO(t, DefaultSimConfig(), 4096)
	if !f.RemapGMR2(3, []uint32{0x100, 0x101}) {
		t.Fatal("RemapGMR2 dropped")
	}
	want := []uint32{CmdRemapGMR2, 3, RemapGMR2PPN32, 0, 2, 0x100, 0x101}
	got := make([]uint32, len(want))
	f.words.ReadWords(16, got)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
