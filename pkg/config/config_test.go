package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/taigrr/tessel/pkg/pipeline"
	"github.com/taigrr/tessel/pkg/render"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tessel.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
width: 640
height: 480
backend: software
workers: 2
cull:
  policy: frustum
  far: 200
clear_color: "#102030"
svga:
  gmr: false
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
	if cfg.Cull.Margin != def.Cull.Margin {
		t.Errorf("cull.margin = %v, want default %v", cfg.Cull.Margin, def.Cull.Margin)
	}
	if cfg.TileSize != def.TileSize {
		t.Errorf("tile_size = %d, want default %d", cfg.TileSize, def.TileSize)
	}

	p := cfg.Pipeline()
	if p.Backend != pipeline.BackendSoftware {
		t.Errorf("Pipeline().Backend = %q, want software", p.Backend)
	}
	if p.CullPolicy != render.CullFrustumAndDistance || p.CullFar != 200 {
		t.Errorf("Pipeline() cull = %v far %v, want frustum far 200", p.CullPolicy, p.CullFar)
	}
	if want := (color.RGBA{0x10, 0x20, 0x30, 0xff}); p.Clear != want {
		t.Errorf("Pipeline().Clear = %v, want %v", p.Clear, want)
	}
	if p.Workers != 2 {
		t.Errorf("Pipeline().Workers = %d, want 2", p.Workers)
	}
	if !cfg.Sim().NoGMR {
		t.Error("Sim().NoGMR = false with svga.gmr off")
	}
	if d := cfg.Device(); d.Width != 640 || d.SyncRetries != def.SVGA.SyncRetries {
		t.Errorf("Device() = %+v", d)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "width: [1, 2\n")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"unknown backend", func(c *Config) { c.Backend = "metal" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"tiny tiles", func(c *Config) { c.TileSize = 4 }},
		{"no triangles", func(c *Config) { c.MaxTriangles = 0 }},
		{"zero fps", func(c *Config) { c.TargetFPS = 0 }},
		{"unknown cull policy", func(c *Config) { c.Cull.Policy = "octree" }},
		{"zero far", func(c *Config) { c.Cull.Far = 0 }},
		{"bad color", func(c *Config) { c.ClearColor = "#12" }},
		{"version 3", func(c *Config) { c.SVGA.MaxVersion = 3 }},
		{"unaligned fifo", func(c *Config) { c.SVGA.FIFOSize = 4098 }},
		{"small vram", func(c *Config) { c.SVGA.VRAMSize = 1024 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Width = 800
	cfg.Cull.Policy = "frustum"
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Errorf("Load(Save(cfg)) = %+v, want %+v", got, cfg)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#ff8000", color.RGBA{255, 128, 0, 255}, false},
		{"00ff0080", color.RGBA{0, 255, 0, 128}, false},
		{" #000000 ", color.RGBA{0, 0, 0, 255}, false},
		{"#xyzxyz", color.RGBA{}, true},
		{"", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseColor(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
