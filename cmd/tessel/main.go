// tessel renders a 3D scene through the tiled software rasterizer or the
// simulated SVGA3D device, either live in the terminal or headless to an
// image file.
//
// Controls (interactive):
//
//	A/D, Left/Right - Spin
//	+/-, Scroll     - Zoom
//	R               - Reset view
//	Q, Esc          - Quit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/taigrr/tessel/internal/logging"
	"github.com/taigrr/tessel/pkg/config"
	"github.com/taigrr/tessel/pkg/pipeline"
	"github.com/taigrr/tessel/pkg/render"
	"github.com/taigrr/tessel/pkg/snapshot"
	"github.com/taigrr/tessel/pkg/svga"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file")
	modelPath   = flag.String("model", "", "glTF/GLB model to show instead of the demo scene")
	width       = flag.Int("width", 0, "Framebuffer width (headless)")
	height      = flag.Int("height", 0, "Framebuffer height (headless)")
	backend     = flag.String("backend", "", "Backend: auto, software or hardware")
	fallback    = flag.Bool("fallback", true, "Fall back to software when hardware is unavailable")
	workers     = flag.Int("workers", 0, "Rasterizer workers (0 = one per CPU)")
	targetFPS   = flag.Int("fps", 0, "Target FPS")
	vsync       = flag.Bool("vsync", false, "Sleep out the rest of each frame")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn or error")
	frames      = flag.Int("frames", 0, "Render N frames headless and exit")
	outPath     = flag.String("out", "", "Write the last frame to this .png, .webp or .bmp file")
	comparePath = flag.String("compare", "", "Compare the last frame against this reference image")
	tolerance   = flag.Int("tolerance", 2, "Per-channel tolerance for -compare")
	bench       = flag.Bool("bench", false, "Print per-frame averages after a headless run")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tessel - tiled 3D renderer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tessel [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nControls:\n")
		fmt.Fprintf(os.Stderr, "  A/D, Left/Right - Spin\n")
		fmt.Fprintf(os.Stderr, "  +/-, Scroll     - Zoom\n")
		fmt.Fprintf(os.Stderr, "  R               - Reset view\n")
		fmt.Fprintf(os.Stderr, "  Q, Esc          - Quit\n")
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "backend":
			cfg.Backend = *backend
		case "fallback":
			cfg.AllowFallback = *fallback
		case "workers":
			cfg.Workers = *workers
		case "fps":
			cfg.TargetFPS = *targetFPS
		case "vsync":
			cfg.VSync = *vsync
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := *frames == 0 && term.IsTerminal(int(os.Stdout.Fd()))
	level := logging.ParseLevel(cfg.LogLevel)
	if interactive {
		// Anything below errors would scribble over the alt screen.
		level = max(level, slog.LevelError)
	}
	logging.Set(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	objects := demoObjects()
	if *modelPath != "" {
		if objects, err = modelObjects(*modelPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interactive {
		return runInteractive(ctx, cfg, objects)
	}
	return runHeadless(ctx, cfg, objects)
}

// newPipeline opens a simulated device unless software rendering was
// requested, then builds the pipeline. The returned func releases both.
func newPipeline(ctx context.Context, cfg config.Config, display pipeline.Display) (*pipeline.Context, func(), error) {
	pcfg := cfg.Pipeline()
	var opts []pipeline.Option
	var dev *svga.Device
	if pcfg.Backend != pipeline.BackendSoftware {
		sim := svga.NewSim(cfg.Sim())
		d, err := svga.Open(ctx, sim.Bus(), cfg.Device())
		if err != nil {
			logging.Get().Warn("svga: device unavailable", "error", err)
		} else {
			dev = d
			opts = append(opts, pipeline.WithDevice(dev))
		}
	}

	switch {
	case display != nil:
		opts = append(opts, pipeline.WithDisplay(display))
	case dev != nil:
		// Software frames go out through the device's 2D framebuffer.
		opts = append(opts, pipeline.WithDisplay(dev))
	}

	pc, err := pipeline.New(pcfg, opts...)
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		return nil, nil, err
	}
	return pc, func() {
		pc.Close()
		if dev != nil {
			dev.Close()
		}
	}, nil
}

func runHeadless(ctx context.Context, cfg config.Config, objects []pipeline.Object) error {
	pc, release, err := newPipeline(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer release()

	cam := render.NewCamera(float64(cfg.Width) / float64(cfg.Height))
	o := newOrbit(cfg.TargetFPS, cam.Distance)
	o.spin = 0.02

	n := max(*frames, 1)
	bar := progressbar.Default(int64(n))
	defer bar.Close()

	var (
		sum      pipeline.FrameStats
		rendered int
		skipped  int
	)
	start := time.Now()
	for range n {
		if ctx.Err() != nil {
			break
		}
		o.step(cam)
		res := pc.RenderFrame(pipeline.SceneFromCamera(cam, objects...))
		if res.Skipped {
			skipped++
		}
		rendered++
		sum.Submitted += res.Stats.Submitted
		sum.Culled += res.Stats.Culled
		sum.Dropped += res.Stats.Dropped
		sum.Batches += res.Stats.Batches
		sum.Raster.Add(res.Stats.Raster)
		bar.Add(1)
	}
	elapsed := time.Since(start)
	bar.Finish()

	st := pc.Timer().Stats()
	fmt.Printf("%s: %d frames in %v (%.1f fps), %.1f%% over budget, %d skipped\n",
		pc.Backend().Name(), rendered, elapsed.Round(time.Millisecond),
		float64(rendered)/elapsed.Seconds(), st.DropRate*100, skipped)
	if *bench && rendered > 0 {
		per := func(v int) float64 { return float64(v) / float64(rendered) }
		fmt.Printf("per frame: %.1f triangles, %.1f culled objects, %.1f dropped, %.1f batches, %.0f pixels written, %.0f blocks skipped\n",
			per(sum.Submitted), per(sum.Culled), per(sum.Dropped), per(sum.Batches),
			per(sum.Raster.PixelsWritten), per(sum.Raster.BlocksSkipped))
	}

	if *outPath != "" {
		if err := snapshot.SaveFramebuffer(*outPath, pc.Framebuffer()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *outPath)
	}
	if *comparePath != "" {
		return compareFrame(pc.Framebuffer(), *comparePath)
	}
	return nil
}

func compareFrame(fb *render.Framebuffer, refPath string) error {
	ref, err := snapshot.Load(refPath)
	if err != nil {
		return err
	}
	img := fb.ToImage()
	tol := uint8(min(max(*tolerance, 0), 255))

	var diff snapshot.Diff
	if img.Bounds().Size() == ref.Bounds().Size() {
		diff, err = snapshot.Compare(img, ref, tol)
	} else {
		diff, err = snapshot.CompareScaled(img, ref, 64, tol)
	}
	if err != nil {
		return err
	}
	if !diff.Match() {
		return fmt.Errorf("compare %s: %d of %d pixels differ (max delta %d)", refPath, diff.Differ, diff.Pixels, diff.MaxDelta)
	}
	fmt.Printf("matches %s\n", refPath)
	return nil
}

func runInteractive(ctx context.Context, cfg config.Config, objects []pipeline.Object) error {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	// Two framebuffer rows per cell. The framebuffer keeps this size when
	// the window is resized.
	cfg.Width, cfg.Height = cols, rows*2
	cfg.VSync = true
	if err := cfg.Validate(); err != nil {
		return err
	}

	t := uv.DefaultTerminal()
	if err := t.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	t.EnterAltScreen()
	t.HideCursor()
	t.Resize(cols, rows)
	defer func() {
		t.ExitAltScreen()
		t.ShowCursor()
		t.Shutdown(context.Background())
	}()

	disp := &termDisplay{term: t}
	pc, release, err := newPipeline(ctx, cfg, disp)
	if err != nil {
		return err
	}
	defer release()

	cam := render.NewCamera(float64(cfg.Width) / float64(cfg.Height))
	home := cam.Distance
	o := newOrbit(cfg.TargetFPS, home)
	o.spin = 0.005
	ctl := make(chan func(*orbit), 16)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-t.Events():
				if !ok {
					return nil
				}
				var fn func(*orbit)
				switch ev := ev.(type) {
				case uv.WindowSizeEvent:
					t.Erase()
					t.Resize(ev.Width, ev.Height)
				case uv.KeyPressEvent:
					switch {
					case ev.MatchString("q", "escape", "ctrl+c"):
						cancel()
						return nil
					case ev.MatchString("a", "left"):
						fn = func(o *orbit) { o.impulse(-0.05) }
					case ev.MatchString("d", "right"):
						fn = func(o *orbit) { o.impulse(0.05) }
					case ev.MatchString("+", "="):
						fn = func(o *orbit) { o.zoom(-1) }
					case ev.MatchString("-", "_"):
						fn = func(o *orbit) { o.zoom(1) }
					case ev.MatchString("r"):
						fn = func(o *orbit) { o.reset(home) }
					}
				case uv.MouseWheelEvent:
					switch ev.Button {
					case uv.MouseWheelUp:
						fn = func(o *orbit) { o.zoom(-1) }
					case uv.MouseWheelDown:
						fn = func(o *orbit) { o.zoom(1) }
					}
				}
				if fn != nil {
					select {
					case ctl <- fn:
					default:
					}
				}
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		for ctx.Err() == nil {
		drain:
			for {
				select {
				case fn := <-ctl:
					fn(o)
				default:
					break drain
				}
			}
			o.step(cam)
			res := pc.RenderFrame(pipeline.SceneFromCamera(cam, objects...))
			disp.setStatus(fmt.Sprintf(" %s %.0f fps %d tris %d culled ",
				pc.Backend().Name(), res.FPS, res.Stats.Submitted, res.Stats.Culled))
		}
		return nil
	})

	return g.Wait()
}
