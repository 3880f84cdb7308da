package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSpam(src *fakeSource, sc *keysScanner, p *countingPresser, opts SpamOptions) *SpamManager {
	if opts.SpamInterval == 0 {
		opts.SpamInterval = 5 * time.Millisecond
	}
	if opts.ScanInterval == 0 {
		opts.ScanInterval = 2 * time.Millisecond
	}
	opts.Threshold = 0.8
	return NewSpamManager(src, sc, p, opts, discardLogger)
}

func TestSpam_ActivationIsIdempotent(t *testing.T) {
	sc := &keysScanner{}
	p := newCountingPresser(0)
	m := newTestSpam(&fakeSource{}, sc, p, SpamOptions{})
	m.state.Start()
	defer func() { m.Stop(); m.Wait() }()

	sc.Set("a", "b")
	for i := 0; i < 5; i++ {
		if _, err := m.RunCycle(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if got := m.Spawned(); got != 2 {
		t.Fatalf("expected exactly 2 workers, spawned %d", got)
	}
	if got := m.Active(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("active keys %v", got)
	}
	waitFor(t, time.Second, "presses on both keys", func() bool { return p.Count("a") > 0 && p.Count("b") > 0 })
}

func TestSpam_RemovedKeyStopsWithinOneTick(t *testing.T) {
	sc := &keysScanner{}
	p := newCountingPresser(0)
	m := newTestSpam(&fakeSource{}, sc, p, SpamOptions{SpamInterval: 20 * time.Millisecond})
	m.state.Start()
	defer func() { m.Stop(); m.Wait() }()

	sc.Set("a")
	if _, err := m.RunCycle(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "first press", func() bool { return p.Count("a") > 0 })

	m.mu.Lock()
	w := m.workers["a"]
	m.mu.Unlock()

	sc.Set()
	removed := time.Now()
	if _, err := m.RunCycle(); err != nil {
		t.Fatal(err)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("key should be inactive after one missing cycle")
	}
	select {
	case <-w.done:
	case <-time.After(20*time.Millisecond + 100*time.Millisecond):
		t.Fatalf("worker still running %v after removal", time.Since(removed))
	}
	n := p.Count("a")
	time.Sleep(50 * time.Millisecond)
	if p.Count("a") != n {
		t.Fatalf("presses continued after worker exit")
	}
}

func TestSpam_NeverTwoPressLoopsPerKey(t *testing.T) {
	sc := &keysScanner{}
	p := newCountingPresser(3 * time.Millisecond)
	m := newTestSpam(&fakeSource{}, sc, p, SpamOptions{SpamInterval: time.Millisecond})
	m.state.Start()
	defer func() { m.Stop(); m.Wait() }()

	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			sc.Set("q")
		} else {
			sc.Set()
		}
		if _, err := m.RunCycle(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if p.Peak() > 1 {
		t.Fatalf("observed %d overlapping press loops for one key", p.Peak())
	}
	if m.Spawned() != 20 {
		t.Fatalf("expected a worker per activation, got %d", m.Spawned())
	}
}

func TestSpam_ErrorCeilingHalts(t *testing.T) {
	src := &fakeSource{fail: func(int64) bool { return true }}
	var halts atomic.Int32
	m := newTestSpam(src, &keysScanner{}, newCountingPresser(0), SpamOptions{
		MaxErrors: 10,
		Clock:     newManualClock(),
		OnHalt:    func(err error) { halts.Add(1) },
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, 2*time.Second, m.Wait)

	if got := src.Calls(); got != 11 {
		t.Fatalf("expected 11 failed cycles before halt, got %d", got)
	}
	if m.Running() || !m.State().Halted() {
		t.Fatalf("engine should be halted")
	}
	if halts.Load() != 1 {
		t.Fatalf("OnHalt called %d times", halts.Load())
	}
	time.Sleep(20 * time.Millisecond)
	if got := src.Calls(); got != 11 {
		t.Fatalf("cycles continued after halt: %d", got)
	}
}

func TestSpam_FailedCycleClearsActiveKeys(t *testing.T) {
	src := &fakeSource{fail: func(n int64) bool { return n > 1 }}
	sc := &keysScanner{}
	sc.Set("a")
	m := newTestSpam(src, sc, newCountingPresser(0), SpamOptions{MaxErrors: 1000, Backoff: time.Millisecond})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { m.Stop(); m.Wait() }()

	waitFor(t, time.Second, "failing cycles", func() bool { return src.Calls() >= 3 })
	if got := m.Active(); len(got) != 0 {
		t.Fatalf("failed cycles must clear active keys, got %v", got)
	}
	if m.State().Errors() < 2 {
		t.Fatalf("errors not counted: %d", m.State().Errors())
	}
}

func TestSpam_ObserverAndStop(t *testing.T) {
	sc := &keysScanner{}
	sc.Set("b", "a")
	p := newCountingPresser(0)
	var (
		mu   sync.Mutex
		seen [][]string
	)
	m := newTestSpam(&fakeSource{}, sc, p, SpamOptions{Observer: func(keys []string) {
		mu.Lock()
		seen = append(seen, keys)
		mu.Unlock()
	}})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	waitFor(t, time.Second, "observer", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	})
	mu.Lock()
	first := seen[0]
	mu.Unlock()
	if !reflect.DeepEqual(first, []string{"a", "b"}) {
		t.Fatalf("observer keys %v", first)
	}

	m.Stop()
	waitDone(t, time.Second, m.Wait)
	if m.Running() || len(m.Active()) != 0 {
		t.Fatalf("stop left engine running=%v active=%v", m.Running(), m.Active())
	}
	a := p.Count("a")
	time.Sleep(30 * time.Millisecond)
	if p.Count("a") != a {
		t.Fatalf("worker kept pressing after stop")
	}
}

func TestSpam_ContextCancelStops(t *testing.T) {
	sc := &keysScanner{}
	sc.Set("x")
	m := newTestSpam(&fakeSource{}, sc, newCountingPresser(0), SpamOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "a cycle", func() bool { return m.Cycles() > 0 })
	cancel()
	waitDone(t, time.Second, m.Wait)
	if m.Running() {
		t.Fatalf("engine still running after cancel")
	}
	if m.State().Halted() {
		t.Fatalf("cancel is not a halt")
	}
}

func TestSpam_NoSpawnWhenStopped(t *testing.T) {
	sc := &keysScanner{}
	sc.Set("a")
	m := newTestSpam(&fakeSource{}, sc, newCountingPresser(0), SpamOptions{})
	if _, err := m.RunCycle(); err != nil {
		t.Fatal(err)
	}
	if m.Spawned() != 0 {
		t.Fatalf("a stopped engine must not spawn workers")
	}
}

func TestSpam_RestartWaitsForPreviousCoordinator(t *testing.T) {
	keys := &keysScanner{}
	keys.Set("a")
	sc := &slowScanner{delay: 30 * time.Millisecond, multi: keys}
	p := newCountingPresser(0)
	m := NewSpamManager(&fakeSource{}, sc, p, SpamOptions{
		Threshold:    0.8,
		ScanInterval: time.Millisecond,
		SpamInterval: 2 * time.Millisecond,
	}, discardLogger)

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "first scan in flight", sc.Busy)
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer func() { m.Stop(); m.Wait() }()

	waitFor(t, time.Second, "key active after restart", func() bool { return len(m.Active()) == 1 })
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		if got := m.Active(); len(got) != 1 {
			t.Fatalf("restarted run lost its worker: active=%v", got)
		}
	}
	if sc.Peak() != 1 {
		t.Fatalf("coordinators overlapped: peak concurrent scans %d", sc.Peak())
	}
	n := p.Count("a")
	waitFor(t, time.Second, "presses after restart", func() bool { return p.Count("a") > n })
}
