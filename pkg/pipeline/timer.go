package pipeline

import "time"

// DefaultTargetFPS is the frame rate FrameTimer aims for when none is set.
const DefaultTargetFPS = 60

// TimerStats summarizes frame pacing.
type TimerStats struct {
	Total    uint64
	Dropped  uint64
	DropRate float64
	FPS      float64
}

// FrameTimer measures frames against a fixed budget. A frame that overruns
// the budget counts as dropped and is not waited for.
type FrameTimer struct {
	budget time.Duration
	vsync  bool

	now   func() time.Time
	sleep func(time.Duration)

	start   time.Time
	elapsed time.Duration
	onTime  bool

	total   uint64
	dropped uint64

	window       time.Time
	windowFrames int
	fps          float64
}

// NewFrameTimer returns a timer for fps frames per second. fps <= 0
// selects DefaultTargetFPS.
func NewFrameTimer(fps int, vsync bool) *FrameTimer {
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	return &FrameTimer{
		budget: time.Second / time.Duration(fps),
		vsync:  vsync,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Budget returns the time allowed per frame.
func (t *FrameTimer) Budget() time.Duration { return t.budget }

// BeginFrame marks the start of a frame.
func (t *FrameTimer) BeginFrame() {
	t.start = t.now()
	if t.window.IsZero() {
		t.window = t.start
	}
}

// EndFrame closes the frame and reports whether it fit the budget. FPS is
// recomputed once per second of wall time.
func (t *FrameTimer) EndFrame() bool {
	end := t.now()
	t.elapsed = end.Sub(t.start)
	t.onTime = t.elapsed <= t.budget
	t.total++
	if !t.onTime {
		t.dropped++
	}

	t.windowFrames++
	if span := end.Sub(t.window); span >= time.Second {
		t.fps = float64(t.windowFrames) / span.Seconds()
		t.window = end
		t.windowFrames = 0
	}
	return t.onTime
}

// Elapsed returns the duration of the last completed frame.
func (t *FrameTimer) Elapsed() time.Duration { return t.elapsed }

// Wait sleeps out the rest of an on-time frame when vsync is on. Late
// frames return at once.
func (t *FrameTimer) Wait() {
	if !t.vsync || !t.onTime {
		return
	}
	if rest := t.budget - t.elapsed; rest > 0 {
		t.sleep(rest)
	}
}

// Stats returns the counters so far.
func (t *FrameTimer) Stats() TimerStats {
	s := TimerStats{Total: t.total, Dropped: t.dropped, FPS: t.fps}
	if t.total > 0 {
		s.DropRate = float64(t.dropped) / float64(t.total)
	}
	return s
}
