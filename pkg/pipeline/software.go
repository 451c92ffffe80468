package pipeline

import (
	"github.com/taigrr/tessel/internal/smp"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/tiles"
)

// SoftwareBackend bins triangles into screen tiles on the submitting
// goroutine, then rasterizes the tiles on a pool of pinned workers that
// claim them from a shared atomic cursor.
type SoftwareBackend struct {
	binner  *tiles.Binner
	queue   *tiles.Queue
	pool    *smp.Pool
	display Display

	// One slot per worker so the hot loop shares nothing.
	partial []render.RasterStats
}

// NewSoftwareBackend builds the tile structures for a width×height target
// and starts the worker pool.
func NewSoftwareBackend(cfg Config, display Display) *SoftwareBackend {
	grid := tiles.NewGrid(cfg.Width, cfg.Height, cfg.TileSize)
	pool := smp.NewPool(cfg.Workers, cfg.PinWorkers)
	if display == nil {
		display = NopDisplay{}
	}
	return &SoftwareBackend{
		binner: tiles.NewBinner(grid,
			tiles.NewBuffer(cfg.MaxTriangles),
			tiles.NewBins(grid.Len(), cfg.MaxTrianglesPerTile)),
		queue:   tiles.NewQueue(grid),
		pool:    pool,
		display: display,
		partial: make([]render.RasterStats, pool.Size()),
	}
}

// Name implements Backend.
func (s *SoftwareBackend) Name() string { return string(BackendSoftware) }

// Binner exposes the tile structures.
func (s *SoftwareBackend) Binner() *tiles.Binner { return s.binner }

// Begin implements Backend.
func (s *SoftwareBackend) Begin(*Frame) error {
	s.binner.Reset()
	return nil
}

// Submit implements Backend.
func (s *SoftwareBackend) Submit(tri render.ScreenTriangle) {
	s.binner.Bin(tri)
}

// Finish rasterizes every tile. Binning is complete before the pool
// starts, and Run returns only after all workers pass the barrier.
func (s *SoftwareBackend) Finish(f *Frame) error {
	s.queue.Reset()
	tris := s.binner.Buffer().Triangles()
	bins := s.binner.Bins()
	clear(s.partial)
	err := s.pool.Run(func(worker int) {
		var st render.RasterStats
		for {
			tile, ok := s.queue.Claim()
			if !ok {
				break
			}
			st.Add(render.RasterizeTile(f.Target, tile.Rect(), tris, bins.Tile(tile.Index)))
		}
		s.partial[worker] = st
	})
	if err != nil {
		return err
	}
	if f.Stats != nil {
		for _, p := range s.partial {
			f.Stats.Raster.Add(p)
		}
		f.Stats.Tiles = s.binner.Stats()
		f.Stats.Dropped += f.Stats.Tiles.Dropped
	}
	return nil
}

// Present copies the back buffer to the front buffer and refreshes the
// display.
func (s *SoftwareBackend) Present(f *Frame) error {
	f.Framebuffer.Present()
	return s.display.Refresh(f.Framebuffer)
}

// Close stops the worker pool.
func (s *SoftwareBackend) Close() error {
	return s.pool.Close()
}
