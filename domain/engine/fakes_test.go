package engine

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soocke/prompt-bot-go/domain/capture"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

var errGrab = errors.New("grab failed")

// manualClock only moves when told to. After fires immediately and advances
// the clock by d, so loops driven by it never block.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock { return &manualClock{now: time.Unix(1_700_000_000, 0)} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// fakeSource hands out a tiny frame, or an error when fail reports true.
type fakeSource struct {
	calls atomic.Int64
	fail  func(call int64) bool
}

func (s *fakeSource) Capture() (*capture.Frame, error) {
	n := s.calls.Add(1)
	if s.fail != nil && s.fail(n) {
		return nil, errGrab
	}
	return capture.NewFrame(image.NewGray(image.Rect(0, 0, 4, 4)), time.Now(), image.Rectangle{}, 1), nil
}

func (s *fakeSource) Calls() int64 { return s.calls.Load() }

// keysScanner reports whatever keys the current script says are visible.
type keysScanner struct {
	mu   sync.Mutex
	keys []string
}

func (s *keysScanner) Set(keys ...string) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

func (s *keysScanner) ScanAll(_ *capture.Frame, _ []*capture.Template, _ float64) (capture.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := make([]capture.Detection, 0, len(s.keys))
	for _, k := range s.keys {
		ds = append(ds, capture.Detection{Name: k + ".png", Key: k, Score: 0.9})
	}
	return capture.NewDetectionResult(ds...), nil
}

// seqScanner replays a fixed hit/miss sequence for the hold engine.
type seqScanner struct {
	mu   sync.Mutex
	hits []bool
	i    int
}

func (s *seqScanner) ScanBest(_ *capture.Frame, _ []*capture.Template, _ float64) (capture.Detection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hit := false
	if s.i < len(s.hits) {
		hit = s.hits[s.i]
	}
	s.i++
	if !hit {
		return capture.Detection{}, false, nil
	}
	return capture.Detection{Name: "chatgo.png", Key: "e", Score: 0.91}, true, nil
}

// slowScanner delays every scan and records how many overlap.
type slowScanner struct {
	delay time.Duration
	multi *keysScanner
	best  *seqScanner

	mu       sync.Mutex
	inFlight int
	peak     int
	started  int
}

func (s *slowScanner) enter() {
	s.mu.Lock()
	s.inFlight++
	s.started++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	time.Sleep(s.delay)
}

func (s *slowScanner) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *slowScanner) ScanAll(f *capture.Frame, ts []*capture.Template, th float64) (capture.DetectionResult, error) {
	s.enter()
	defer s.leave()
	return s.multi.ScanAll(f, ts, th)
}

func (s *slowScanner) ScanBest(f *capture.Frame, ts []*capture.Template, th float64) (capture.Detection, bool, error) {
	s.enter()
	defer s.leave()
	return s.best.ScanBest(f, ts, th)
}

func (s *slowScanner) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func (s *slowScanner) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// countingPresser counts presses per key and the peak number of
// overlapping presses of the same key.
type countingPresser struct {
	mu       sync.Mutex
	presses  map[string]int
	inFlight map[string]int
	peak     int
	hold     time.Duration
}

func newCountingPresser(hold time.Duration) *countingPresser {
	return &countingPresser{presses: map[string]int{}, inFlight: map[string]int{}, hold: hold}
}

func (p *countingPresser) Press(key string) error {
	p.mu.Lock()
	p.inFlight[key]++
	if p.inFlight[key] > p.peak {
		p.peak = p.inFlight[key]
	}
	p.mu.Unlock()
	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	p.mu.Lock()
	p.inFlight[key]--
	p.presses[key]++
	p.mu.Unlock()
	return nil
}

func (p *countingPresser) Count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presses[key]
}

func (p *countingPresser) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// recordingHolder records key transitions and can refuse them.
type recordingHolder struct {
	mu       sync.Mutex
	events   []string
	failDown bool
	failUp   bool
}

func (h *recordingHolder) KeyDown(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failDown {
		return errors.New("down refused")
	}
	h.events = append(h.events, "down:"+key)
	return nil
}

func (h *recordingHolder) KeyUp(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failUp {
		return errors.New("up refused")
	}
	h.events = append(h.events, "up:"+key)
	return nil
}

func (h *recordingHolder) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHolder) SetFail(down, up bool) {
	h.mu.Lock()
	h.failDown, h.failUp = down, up
	h.mu.Unlock()
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// waitDone fails the test if fn does not return within timeout.
func waitDone(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("did not finish within %v", timeout)
	}
}
