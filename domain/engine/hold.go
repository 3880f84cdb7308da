package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/prompt-bot-go/domain/capture"
)

const (
	defaultHoldBackoff = 10 * time.Millisecond
	minHoldInterval    = time.Millisecond
	fpsWindow          = time.Second
)

// HoldStatus is reported on every hold transition.
type HoldStatus struct {
	Holding bool
	Latency time.Duration // detection-to-keydown time; zero on release
	Label   string        // template that triggered the hold
	Score   float64
}

func (s HoldStatus) String() string {
	if s.Holding {
		return "HOLDING"
	}
	return "NOT_HOLDING"
}

// HoldOptions configures a HoldController.
type HoldOptions struct {
	Key          string
	Templates    []*capture.Template
	Threshold    float64
	ScanInterval time.Duration // floored at 1ms
	// ReleaseDelay is the number of consecutive misses tolerated while
	// holding; the key is released on the miss that exceeds it.
	ReleaseDelay int
	Backoff      time.Duration // after a failed cycle; default 10ms
	MaxErrors    int
	Clock        Clock
	Metrics      Metrics
	OnStatus     func(HoldStatus)
	OnFPS        func(fps float64)
	OnHalt       func(err error)
}

// HoldStats is a snapshot of the controller.
type HoldStats struct {
	Holding     bool
	Misses      int
	CurrentHold time.Duration
	TotalHeld   time.Duration
	Holds       int
	FPS         float64
}

// HoldController holds one key down while any of its templates is visible
// and releases it after ReleaseDelay+1 consecutive misses.
type HoldController struct {
	src    capture.FrameSource
	scan   BestScanner
	act    Holder
	opts   HoldOptions
	state  *RunState
	logger *slog.Logger

	mu       sync.Mutex // guards the fields below and serialises key transitions
	misses   int
	frames   int
	fpsStart time.Time
	lastFPS  float64
	session  HoldSession
	stop     chan struct{}
	done     chan struct{}

	held atomic.Bool
}

// NewHoldController wires a hold engine. A nil logger disables logging.
func NewHoldController(src capture.FrameSource, scan BestScanner, act Holder, opts HoldOptions, logger *slog.Logger) *HoldController {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultHoldBackoff
	}
	if opts.ScanInterval < minHoldInterval {
		opts.ScanInterval = minHoldInterval
	}
	if opts.ReleaseDelay < 0 {
		opts.ReleaseDelay = 0
	}
	return &HoldController{
		src:    src,
		scan:   scan,
		act:    act,
		opts:   opts,
		state:  NewRunState(opts.MaxErrors),
		logger: logger,
	}
}

// State exposes the engine run state.
func (h *HoldController) State() *RunState { return h.state }

// Running reports whether the loop is live.
func (h *HoldController) Running() bool { return h.state.Running() }

// Holding reports whether the key is currently held down.
func (h *HoldController) Holding() bool { return h.held.Load() }

// Stats returns a snapshot of the controller counters.
func (h *HoldController) Stats() HoldStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, total, holds := h.session.Values()
	return HoldStats{
		Holding:     h.held.Load(),
		Misses:      h.misses,
		CurrentHold: cur,
		TotalHeld:   total,
		Holds:       holds,
		FPS:         h.lastFPS,
	}
}

// Start launches the hold loop. It returns ErrAlreadyRunning if the engine
// is live. After a Stop it first waits for the previous loop to exit, so it
// must not be called from a callback. Cancelling ctx stops the engine like
// Stop.
func (h *HoldController) Start(ctx context.Context) error {
	if h.state.Running() {
		return ErrAlreadyRunning
	}
	h.Wait()
	if !h.state.Start() {
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	h.mu.Lock()
	h.stop, h.done = stop, done
	h.misses, h.frames = 0, 0
	h.fpsStart = h.opts.Clock.Now()
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("engine started", "engine", EngineHold, "key", h.opts.Key, "templates", len(h.opts.Templates))
	}
	go h.loop(ctx, stop, done)
	return nil
}

// Stop clears the running flag and releases the key if it is held.
func (h *HoldController) Stop() {
	wasRunning := h.state.Stop()
	h.mu.Lock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	h.mu.Unlock()
	h.release()
	if wasRunning && h.logger != nil {
		h.logger.Info("engine stopped", "engine", EngineHold)
	}
}

// Wait blocks until the loop has exited.
func (h *HoldController) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (h *HoldController) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer h.release()
	defer recoverLog(h.logger, "hold loop panic")

	sched := newSchedule(h.opts.Clock, h.opts.ScanInterval)
	for h.state.Running() && !stopped(stop) {
		sched.begin()
		if err := h.Step(); err != nil {
			if h.fail(err) {
				return
			}
			if !sleep(ctx, h.opts.Clock, h.opts.Backoff, stop) {
				break
			}
			sched.reset()
			continue
		}
		if !sched.wait(ctx, stop) {
			break
		}
	}
	if ctx.Err() != nil {
		h.state.Stop()
	}
}

func (h *HoldController) fail(err error) bool {
	if h.logger != nil {
		h.logger.Warn("cycle failed", "engine", EngineHold, "error", err, "errors", h.state.Errors()+1)
	}
	if !h.state.Fail() {
		return false
	}
	h.opts.Metrics.Halted(EngineHold)
	if h.logger != nil {
		h.logger.Error("engine halted", "engine", EngineHold, "errors", h.state.Errors())
	}
	if h.opts.OnHalt != nil {
		h.opts.OnHalt(ErrHalted)
	}
	return true
}

// Step runs one capture and best-of scan and applies the result. A failed
// capture or scan counts as a miss and its error is returned.
func (h *HoldController) Step() error {
	clk := h.opts.Clock
	start := clk.Now()
	var (
		det   capture.Detection
		found bool
	)
	err := guard(h.logger, "hold cycle panic", func() error {
		f, err := h.src.Capture()
		if err != nil {
			return err
		}
		det, found, err = h.scan.ScanBest(f, h.opts.Templates, h.opts.Threshold)
		return err
	})
	h.opts.Metrics.Cycle(EngineHold, clk.Now().Sub(start), err)
	if err == nil {
		n := 0
		if found {
			n = 1
		}
		h.opts.Metrics.Detections(EngineHold, n)
	}

	h.mu.Lock()
	var status *HoldStatus
	if err == nil && found {
		status = h.onHit(det, start)
	} else {
		status = h.onMiss()
	}
	fps, fpsReady := 0.0, false
	if err == nil {
		fps, fpsReady = h.tickFPS(clk.Now())
	}
	h.session.OnTick(h.held.Load(), clk.Now())
	h.mu.Unlock()

	if status != nil && h.opts.OnStatus != nil {
		h.opts.OnStatus(*status)
	}
	if fpsReady {
		h.opts.Metrics.HoldFPS(fps)
		if h.opts.OnFPS != nil {
			h.opts.OnFPS(fps)
		}
	}
	return err
}

// onHit is called with mu held.
func (h *HoldController) onHit(det capture.Detection, start time.Time) *HoldStatus {
	h.misses = 0
	if h.held.Load() {
		return nil
	}
	err := h.act.KeyDown(h.opts.Key)
	h.opts.Metrics.KeyAction(EngineHold, "down", err)
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("key down dropped", "key", h.opts.Key, "error", err)
		}
		return nil
	}
	h.held.Store(true)
	latency := h.opts.Clock.Now().Sub(start)
	h.opts.Metrics.HoldEngaged(true)
	h.opts.Metrics.HoldLatency(latency)
	if h.logger != nil {
		h.logger.Debug("hold engaged", "key", h.opts.Key, "template", det.Name, "score", det.Score, "latency", latency)
	}
	return &HoldStatus{Holding: true, Latency: latency, Label: det.Name, Score: det.Score}
}

// onMiss is called with mu held.
func (h *HoldController) onMiss() *HoldStatus {
	h.misses++
	if !h.held.Load() || h.misses <= h.opts.ReleaseDelay {
		return nil
	}
	return h.keyUpLocked()
}

// keyUpLocked releases the key. On failure the key stays marked held so the
// next miss retries.
func (h *HoldController) keyUpLocked() *HoldStatus {
	err := h.act.KeyUp(h.opts.Key)
	h.opts.Metrics.KeyAction(EngineHold, "up", err)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("key up failed", "key", h.opts.Key, "error", err)
		}
		return nil
	}
	h.held.Store(false)
	h.opts.Metrics.HoldEngaged(false)
	if h.logger != nil {
		h.logger.Debug("hold released", "key", h.opts.Key, "misses", h.misses)
	}
	return &HoldStatus{Holding: false}
}

// release lets go of a held key outside the detection loop.
func (h *HoldController) release() {
	h.mu.Lock()
	var status *HoldStatus
	if h.held.Load() {
		status = h.keyUpLocked()
		h.session.OnTick(h.held.Load(), h.opts.Clock.Now())
	}
	h.mu.Unlock()
	if status != nil && h.opts.OnStatus != nil {
		h.opts.OnStatus(*status)
	}
}

// tickFPS counts a completed cycle and closes the window once a second has
// passed. Called with mu held.
func (h *HoldController) tickFPS(now time.Time) (float64, bool) {
	if h.fpsStart.IsZero() {
		h.fpsStart = now
	}
	h.frames++
	elapsed := now.Sub(h.fpsStart)
	if elapsed < fpsWindow {
		return 0, false
	}
	fps := float64(h.frames) / elapsed.Seconds()
	h.frames = 0
	h.fpsStart = now
	h.lastFPS = fps
	return fps, true
}
