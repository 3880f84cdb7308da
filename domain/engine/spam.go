package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/prompt-bot-go/domain/action"
	"github.com/soocke/prompt-bot-go/domain/capture"
)

const defaultSpamBackoff = 100 * time.Millisecond

// SpamOptions configures a SpamManager.
type SpamOptions struct {
	Templates    []*capture.Template
	Threshold    float64
	ScanInterval time.Duration
	SpamInterval time.Duration
	Backoff      time.Duration // after a failed cycle; default 100ms
	MaxErrors    int
	Clock        Clock
	Metrics      Metrics
	// Observer receives the sorted detected keys once per successful cycle.
	// It runs on the coordinator goroutine and must return quickly.
	Observer func(keys []string)
	// OnHalt is called once when the error ceiling stops the engine.
	OnHalt func(err error)
}

// keyWorker repeat-presses one key while active. stop is closed when the
// worker is deactivated; done is closed when its goroutine has returned.
type keyWorker struct {
	key    string
	active atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

func newKeyWorker(key string) *keyWorker {
	w := &keyWorker{key: key, stop: make(chan struct{}), done: make(chan struct{})}
	w.active.Store(true)
	return w
}

// deactivate clears the flag and wakes the worker. Safe to call repeatedly.
func (w *keyWorker) deactivate() {
	if w.active.CompareAndSwap(true, false) {
		close(w.stop)
	}
}

// SpamManager detects many prompts at once and keeps one repeat-press worker
// per detected key. A key's worker runs while the key stays detected.
type SpamManager struct {
	src    capture.FrameSource
	scan   MultiScanner
	act    Presser
	opts   SpamOptions
	state  *RunState
	logger *slog.Logger

	mu      sync.Mutex // guards workers, stop, done
	workers map[string]*keyWorker
	stop    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	spawned atomic.Uint64
	cycles  atomic.Uint64
}

// NewSpamManager wires a spam engine. A nil logger disables logging.
func NewSpamManager(src capture.FrameSource, scan MultiScanner, act Presser, opts SpamOptions, logger *slog.Logger) *SpamManager {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultSpamBackoff
	}
	return &SpamManager{
		src:     src,
		scan:    scan,
		act:     act,
		opts:    opts,
		state:   NewRunState(opts.MaxErrors),
		logger:  logger,
		workers: map[string]*keyWorker{},
	}
}

// State exposes the engine run state.
func (m *SpamManager) State() *RunState { return m.state }

// Running reports whether the coordinator is live.
func (m *SpamManager) Running() bool { return m.state.Running() }

// Spawned returns how many workers have been started since construction.
func (m *SpamManager) Spawned() uint64 { return m.spawned.Load() }

// Cycles returns how many detection cycles have completed.
func (m *SpamManager) Cycles() uint64 { return m.cycles.Load() }

// Active returns the keys whose workers are active, sorted.
func (m *SpamManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, w := range m.workers {
		if w.active.Load() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Start launches the coordinator. It returns ErrAlreadyRunning if the
// engine is live. After a Stop it first waits for the previous coordinator
// and its workers to exit, so it must not be called from OnHalt or the
// Observer. Cancelling ctx stops the engine like Stop.
func (m *SpamManager) Start(ctx context.Context) error {
	if m.state.Running() {
		return ErrAlreadyRunning
	}
	m.Wait()
	if !m.state.Start() {
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.mu.Lock()
	m.stop, m.done = stop, done
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Info("engine started", "engine", EngineSpam, "templates", len(m.opts.Templates))
	}
	go m.loop(ctx, stop, done)
	return nil
}

// Stop clears the running flag and every active flag. Workers and the
// coordinator exit on their own; an in-flight press may still complete.
func (m *SpamManager) Stop() {
	wasRunning := m.state.Stop()
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.mu.Unlock()
	m.deactivateAll()
	if wasRunning && m.logger != nil {
		m.logger.Info("engine stopped", "engine", EngineSpam)
	}
}

// Wait blocks until the coordinator and all workers have exited.
func (m *SpamManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	m.wg.Wait()
}

func (m *SpamManager) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer m.deactivateAll()
	defer recoverLog(m.logger, "spam coordinator panic")

	sched := newSchedule(m.opts.Clock, m.opts.ScanInterval)
	for m.state.Running() && !stopped(stop) {
		sched.begin()
		if _, err := m.RunCycle(); err != nil {
			m.deactivateAll()
			if m.fail(err) {
				return
			}
			if !sleep(ctx, m.opts.Clock, m.opts.Backoff, stop) {
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
		m.state.Stop()
	}
}

// fail counts a failed cycle and reports whether the engine halted.
func (m *SpamManager) fail(err error) bool {
	if m.logger != nil {
		m.logger.Warn("cycle failed", "engine", EngineSpam, "error", err, "errors", m.state.Errors()+1)
	}
	if !m.state.Fail() {
		return false
	}
	m.halt()
	return true
}

func (m *SpamManager) halt() {
	m.opts.Metrics.Halted(EngineSpam)
	if m.logger != nil {
		m.logger.Error("engine halted", "engine", EngineSpam, "errors", m.state.Errors())
	}
	if m.opts.OnHalt != nil {
		m.opts.OnHalt(ErrHalted)
	}
}

// RunCycle performs one capture, scan and reconcile step. A capture or scan
// failure is returned without touching the active set.
func (m *SpamManager) RunCycle() (capture.DetectionResult, error) {
	start := m.opts.Clock.Now()
	var res capture.DetectionResult
	err := guard(m.logger, "spam cycle panic", func() error {
		f, err := m.src.Capture()
		if err != nil {
			return err
		}
		res, err = m.scan.ScanAll(f, m.opts.Templates, m.opts.Threshold)
		return err
	})
	m.opts.Metrics.Cycle(EngineSpam, m.opts.Clock.Now().Sub(start), err)
	if err != nil {
		return res, err
	}
	m.cycles.Add(1)
	m.opts.Metrics.Detections(EngineSpam, res.Len())

	keys := res.Keys()
	m.reconcile(keys, res)
	if m.opts.Observer != nil {
		m.opts.Observer(keys)
	}
	return res, nil
}

// reconcile applies one detection snapshot: spawn for new keys, deactivate
// keys that disappeared.
func (m *SpamManager) reconcile(keys []string, res capture.DetectionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		prev := m.workers[k]
		if prev != nil && prev.active.Load() {
			continue
		}
		if !m.state.Running() {
			break
		}
		w := newKeyWorker(k)
		m.workers[k] = w
		m.wg.Add(1)
		m.spawned.Add(1)
		m.opts.Metrics.WorkerSpawned(k)
		if m.logger != nil {
			m.logger.Debug("key active", "engine", EngineSpam, "key", k)
		}
		go m.work(w, prev)
	}
	active := 0
	for k, w := range m.workers {
		if !w.active.Load() {
			continue
		}
		if !res.Has(k) {
			w.deactivate()
			if m.logger != nil {
				m.logger.Debug("key inactive", "engine", EngineSpam, "key", k)
			}
			continue
		}
		active++
	}
	m.opts.Metrics.ActiveKeys(active)
}

func (m *SpamManager) deactivateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		w.deactivate()
	}
	m.opts.Metrics.ActiveKeys(0)
}

// work is the per-key press loop. A replacement worker waits for its
// predecessor to return so one key never has two pressing loops.
func (m *SpamManager) work(w *keyWorker, prev *keyWorker) {
	defer m.wg.Done()
	defer close(w.done)
	if prev != nil {
		select {
		case <-prev.done:
		case <-w.stop:
			return
		}
	}
	ctx := context.Background()
	for w.active.Load() && m.state.Running() {
		err := guard(m.logger, "spam worker panic", func() error { return m.act.Press(w.key) })
		switch {
		case errors.Is(err, errPanic):
			if m.fail(err) {
				return
			}
		case err != nil:
			m.opts.Metrics.KeyAction(EngineSpam, "press", err)
			if m.logger != nil && !errors.Is(err, action.ErrUnfocused) {
				m.logger.Debug("press dropped", "key", w.key, "error", err)
			}
		default:
			m.opts.Metrics.KeyAction(EngineSpam, "press", nil)
		}
		if !sleep(ctx, m.opts.Clock, m.opts.SpamInterval, w.stop) {
			return
		}
	}
}
