package tiles

import (
	"image/color"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/taigrr/tessel/pkg/render"
)

func randomTriangle(t testing.TB, rng *rand.Rand, w, h int) render.ScreenTriangle {
	t.Helper()
	for {
		var v [3]render.ScreenVertex
		cx, cy := rng.Float64()*float64(w), rng.Float64()*float64(h)
		spread := 4 + rng.Float64()*150
		for i := range v {
			v[i] = render.ScreenVertex{
				X:     cx + (rng.Float64()-0.5)*spread,
				Y:     cy + (rng.Float64()-0.5)*spread,
				Z:     1,
				Color: color.RGBA{255, 255, 255, 255},
			}
		}
		if st, ok := render.NewScreenTriangle(v, w, h); ok {
			return st
		}
	}
}

func newTestBinner(w, h, size, maxTris, perTile int) *Binner {
	g := NewGrid(w, h, size)
	return NewBinner(g, NewBuffer(maxTris), NewBins(g.Len(), perTile))
}

// TestBinCoverage checks that each triangle lands in exactly the tiles its
// bounding box overlaps.
func TestBinCoverage(t *testing.T) {
	const w, h = 300, 200
	b := newTestBinner(w, h, 64, 0, 0)
	rng := rand.New(rand.NewPCG(9, 9))

	var tris []render.ScreenTriangle
	for range 500 {
		st := randomTriangle(t, rng, w, h)
		if n := b.Bin(st); n == 0 {
			t.Fatalf("Bin(%v) = 0, want > 0", st.Bounds())
		}
		tris = append(tris, st)
	}

	if got := b.Buffer().Len(); got != len(tris) {
		t.Fatalf("Buffer.Len = %d, want %d", got, len(tris))
	}
	for _, tile := range b.Grid().Tiles() {
		bin := b.Bins().Tile(tile.Index)
		for i, st := range tris {
			overlaps := st.Bounds().Overlaps(tile.Rect())
			in := slices.Contains(bin, int32(i))
			if overlaps != in {
				t.Fatalf("triangle %d bounds %v, tile %v: overlaps=%v binned=%v",
					i, st.Bounds(), tile.Rect(), overlaps, in)
			}
		}
		if !slices.IsSorted(bin) {
			t.Errorf("tile %d bin is not in submission order", tile.Index)
		}
	}
}

func TestBinReturnsTileCount(t *testing.T) {
	b := newTestBinner(256, 256, 64, 0, 0)
	white := color.RGBA{255, 255, 255, 255}
	st, ok := render.NewScreenTriangle([3]render.ScreenVertex{
		{X: 10, Y: 10, Z: 1, Color: white},
		{X: 140, Y: 10, Z: 1, Color: white},
		{X: 10, Y: 70, Z: 1, Color: white},
	}, 256, 256)
	if !ok {
		t.Fatal("NewScreenTriangle rejected a visible triangle")
	}
	// Bounds span columns 0..2 and rows 0..1.
	if n := b.Bin(st); n != 6 {
		t.Errorf("Bin = %d, want 6", n)
	}
	if s := b.Stats(); s.TilesWithWork != 6 || s.Triangles != 1 {
		t.Errorf("Stats = %+v, want 6 tiles with work and 1 triangle", s)
	}
}

func TestBufferSaturates(t *testing.T) {
	buf := NewBuffer(4)
	var st render.ScreenTriangle
	for i := range 4 {
		idx, ok := buf.Push(st)
		if !ok || idx != i {
			t.Fatalf("Push #%d = %d, %v, want %d, true", i, idx, ok, i)
		}
	}
	for range 3 {
		if _, ok := buf.Push(st); ok {
			t.Fatal("Push on a full buffer succeeded")
		}
	}
	if buf.Len() != 4 || buf.Dropped() != 3 {
		t.Errorf("Len, Dropped = %d, %d, want 4, 3", buf.Len(), buf.Dropped())
	}
	buf.Reset()
	if buf.Len() != 0 || buf.Dropped() != 0 {
		t.Errorf("after Reset Len, Dropped = %d, %d, want 0, 0", buf.Len(), buf.Dropped())
	}
}

func TestBinsSaturate(t *testing.T) {
	bins := NewBins(2, 3)
	for i := range 5 {
		ok := bins.Insert(1, int32(i))
		if want := i < 3; ok != want {
			t.Errorf("Insert #%d = %v, want %v", i, ok, want)
		}
	}
	if got := bins.Tile(1); !slices.Equal(got, []int32{0, 1, 2}) {
		t.Errorf("Tile(1) = %v, want [0 1 2]", got)
	}
	if len(bins.Tile(0)) != 0 {
		t.Errorf("Tile(0) = %v, want empty", bins.Tile(0))
	}
	if bins.Overflows() != 2 {
		t.Errorf("Overflows = %d, want 2", bins.Overflows())
	}
	bins.Reset()
	if bins.Count(1) != 0 || bins.Overflows() != 0 {
		t.Errorf("after Reset Count, Overflows = %d, %d, want 0, 0", bins.Count(1), bins.Overflows())
	}
}

func TestBinnerDropsWhenFull(t *testing.T) {
	const w, h = 128, 128
	b := newTestBinner(w, h, 64, 2, 0)
	rng := rand.New(rand.NewPCG(1, 1))
	for range 5 {
		b.Bin(randomTriangle(t, rng, w, h))
	}
	s := b.Stats()
	if s.Triangles != 2 || s.Dropped != 3 {
		t.Errorf("Stats = %+v, want 2 stored and 3 dropped", s)
	}
	for i := range b.Grid().Len() {
		for _, idx := range b.Bins().Tile(i) {
			if idx >= 2 {
				t.Errorf("tile %d references dropped triangle %d", i, idx)
			}
		}
	}
}
