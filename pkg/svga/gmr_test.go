package svga

import (
	"bytes"
	"errors"
	"testing"
)

func TestGMRAllocRegisters(t *testing.T) {
	tests := []struct {
		name   string
		legacy bool
	}{
		{"gmr2", false},
		{"legacy", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSimConfig()
			cfg.LegacyGMR = tc.legacy
			dev, sim := openSim(t, cfg)
			gmrs, err := dev.GMRs()
			if err != nil {
				t.Fatalf("GMRs: %v", err)
			}

			r, err := gmrs.Alloc(PageSize + 100)
			if err != nil {
				t.Fatalf("Alloc: %v", err)
			}
			if r.ID != 1 || r.Pages != 2 {
				t.Errorf("region = id %d, %d pages; want id 1, 2 pages", r.ID, r.Pages)
			}
			payload := bytes.Repeat([]byte{0xAB, 0xCD}, PageSize/2+50)
			if _, err := r.Mem.WriteAt(payload, 0); err != nil {
				t.Fatalf("WriteAt: %v", err)
			}
			if err := dev.Sync(); err != nil {
				t.Fatalf("Sync: %v", err)
			}

			got := make([]byte, len(payload))
			if !sim.gmrCopy(r.ID, 0, got, false) {
				t.Fatal("device cannot read the region")
			}
			if !bytes.Equal(got, payload) {
				t.Error("device view of the region differs from the guest view")
			}

			if err := gmrs.Free(r.ID); err != nil {
				t.Fatalf("Free: %v", err)
			}
			if err := dev.Sync(); err != nil {
				t.Fatalf("Sync: %v", err)
			}
			if _, ok := sim.gmrs[r.ID]; ok {
				t.Error("region still registered after Free")
			}
			if err := gmrs.Free(r.ID); !errors.Is(err, ErrGMRNotFound) {
				t.Errorf("second Free = %v, want ErrGMRNotFound", err)
			}
		})
	}
}

func TestGMRExhausted(t *testing.T) {
	dev, _ := openSim(t, DefaultSimConfig())
	gmrs, err := dev.GMRs()
	if err != nil {
		t.Fatalf("GMRs: %v", err)
	}
	for i := range MaxGMRs {
		if _, err := gmrs.Alloc(16); err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
	}
	if _, err := gmrs.Alloc(16); !errors.Is(err, ErrGMRExhausted) {
		t.Errorf("Alloc past capacity = %v, want ErrGMRExhausted", err)
	}
	if err := gmrs.Free(3); err != nil {
		t.Fatalf("Free: %v", err)
	}
	r, err := gmrs.Alloc(16)
	if err != nil {
		t.Fatalf("Alloc after Free: %v", err)
	}
	if r.ID != 3 {
		t.Errorf("reused slot id = %d, want 3", r.ID)
	}
	if got := gmrs.Len(); got != MaxGMRs {
		t.Errorf("Len = %d, want %d", got, MaxGMRs)
	}
}

func TestNoGMR(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.NoGMR = true
	dev, _ := openSim(t, cfg)
	if _, err := dev.GMRs(); !errors.Is(err, ErrNoGMR) {
		t.Errorf("GMRs = %v, want ErrNoGMR", err)
	}
}
