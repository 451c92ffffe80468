// Package config loads the YAML settings shared by the renderer and the
// simulated SVGA device.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taigrr/tessel/pkg/pipeline"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/svga"
	"github.com/taigrr/tessel/pkg/tiles"
)

// maxConfigSize caps how much of a config file is read.
const maxConfigSize = 1 << 20

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the on-disk configuration.
type Config struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	Backend       string `yaml:"backend"`
	AllowFallback bool   `yaml:"allow_fallback"`

	Workers    int  `yaml:"workers"`
	PinWorkers bool `yaml:"pin_workers"`

	TileSize            int `yaml:"tile_size"`
	MaxTriangles        int `yaml:"max_triangles"`
	MaxTrianglesPerTile int `yaml:"max_triangles_per_tile"`
	BatchCapacity       int `yaml:"batch_capacity"`

	TargetFPS int  `yaml:"target_fps"`
	VSync     bool `yaml:"vsync"`

	Cull       Cull   `yaml:"cull"`
	ClearColor string `yaml:"clear_color"`
	SVGA       SVGA   `yaml:"svga"`
	LogLevel   string `yaml:"log_level"`
}

// Cull configures object culling.
type Cull struct {
	Policy string  `yaml:"policy"`
	Far    float64 `yaml:"far"`
	Margin float64 `yaml:"margin"`
}

// SVGA configures the simulated device used by the hardware backend.
type SVGA struct {
	VRAMSize    int  `yaml:"vram_size"`
	FIFOSize    int  `yaml:"fifo_size"`
	MaxVersion  int  `yaml:"max_version"`
	GMR         bool `yaml:"gmr"`
	SyncRetries int  `yaml:"sync_retries"`
}

// Default returns the built-in configuration.
func Default() Config {
	sim := svga.DefaultSimConfig()
	return Config{
		Width:               320,
		Height:              240,
		Backend:             string(pipeline.BackendAuto),
		AllowFallback:       true,
		TileSize:            tiles.DefaultTileSize,
		MaxTriangles:        tiles.DefaultMaxTriangles,
		MaxTrianglesPerTile: tiles.DefaultMaxPerTile,
		TargetFPS:           pipeline.DefaultTargetFPS,
		Cull: Cull{
			Policy: render.CullDistance.String(),
			Far:    500,
			Margin: 100,
		},
		ClearColor: "#000000",
		SVGA: SVGA{
			VRAMSize:    sim.VRAMSize,
			FIFOSize:    sim.FIFOSize,
			MaxVersion:  sim.MaxVersion,
			GMR:         true,
			SyncRetries: svga.DefaultSyncRetries,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults;
// a missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return cfg, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config: %s is %d bytes, limit %d", path, info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes c to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Width <= 0 || c.Height <= 0 {
		bad("size %dx%d must be positive", c.Width, c.Height)
	}
	if _, err := pipeline.ParseBackendKind(c.Backend); err != nil {
		bad("backend: %v", err)
	}
	if c.Workers < 0 {
		bad("workers %d is negative", c.Workers)
	}
	if c.TileSize < 8 {
		bad("tile_size %d is below 8", c.TileSize)
	}
	if c.MaxTriangles <= 0 || c.MaxTrianglesPerTile <= 0 {
		bad("triangle limits %d/%d must be positive", c.MaxTriangles, c.MaxTrianglesPerTile)
	}
	if c.BatchCapacity < 0 {
		bad("batch_capacity %d is negative", c.BatchCapacity)
	}
	if c.TargetFPS <= 0 {
		bad("target_fps %d must be positive", c.TargetFPS)
	}
	if _, err := render.ParseCullPolicy(c.Cull.Policy); err != nil {
		bad("cull: %v", err)
	}
	if c.Cull.Far <= 0 {
		bad("cull far %v must be positive", c.Cull.Far)
	}
	if c.Cull.Margin < 0 {
		bad("cull margin %v is negative", c.Cull.Margin)
	}
	if _, err := ParseColor(c.ClearColor); err != nil {
		bad("clear_color: %v", err)
	}
	if c.SVGA.MaxVersion < 0 || c.SVGA.MaxVersion > 2 {
		bad("svga.max_version %d not in 0..2", c.SVGA.MaxVersion)
	}
	if c.SVGA.FIFOSize < 4096 || c.SVGA.FIFOSize%4 != 0 {
		bad("svga.fifo_size %d must be a multiple of 4 of at least 4096", c.SVGA.FIFOSize)
	}
	if c.SVGA.VRAMSize < c.Width*c.Height*4 {
		bad("svga.vram_size %d cannot hold a %dx%d frame", c.SVGA.VRAMSize, c.Width, c.Height)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		bad("log_level %q", c.LogLevel)
	}
	return errors.Join(errs...)
}

// Pipeline converts c into a pipeline configuration. c should be valid.
func (c Config) Pipeline() pipeline.Config {
	kind, _ := pipeline.ParseBackendKind(c.Backend)
	policy, _ := render.ParseCullPolicy(c.Cull.Policy)
	clearColor, _ := ParseColor(c.ClearColor)
	return pipeline.Config{
		Width:               c.Width,
		Height:              c.Height,
		Backend:             kind,
		AllowFallback:       c.AllowFallback,
		Workers:             c.Workers,
		PinWorkers:          c.PinWorkers,
		TileSize:            c.TileSize,
		MaxTriangles:        c.MaxTriangles,
		MaxTrianglesPerTile: c.MaxTrianglesPerTile,
		BatchCapacity:       c.BatchCapacity,
		TargetFPS:           c.TargetFPS,
		VSync:               c.VSync,
		CullPolicy:          policy,
		CullFar:             c.Cull.Far,
		CullMargin:          c.Cull.Margin,
		Clear:               clearColor,
	}
}

// Sim returns the simulated device settings.
func (c Config) Sim() svga.SimConfig {
	sim := svga.DefaultSimConfig()
	sim.VRAMSize = c.SVGA.VRAMSize
	sim.FIFOSize = c.SVGA.FIFOSize
	sim.MaxVersion = c.SVGA.MaxVersion
	sim.NoGMR = !c.SVGA.GMR
	return sim
}

// Device returns the settings passed to svga.Open.
func (c Config) Device() svga.Config {
	return svga.Config{
		Width:       c.Width,
		Height:      c.Height,
		SyncRetries: c.SVGA.SyncRetries,
	}
}

// ParseColor parses "#rrggbb" or "#rrggbbaa". The leading '#' is optional.
func ParseColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("config: color %q: want 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("config: color %q: %w", s, err)
	}
	if len(h) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
