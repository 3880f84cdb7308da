package telemetry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soocke/prompt-bot-go/domain/capture"
	"github.com/soocke/prompt-bot-go/domain/engine"
)

var _ engine.Metrics = (*Recorder)(nil)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Cycle(engine.EngineSpam, 3*time.Millisecond, nil)
	r.Cycle(engine.EngineSpam, time.Millisecond, errors.New("boom"))
	r.KeyAction(engine.EngineSpam, "press", nil)
	r.KeyAction(engine.EngineHold, "down", errors.New("dropped"))
	r.WorkerSpawned("a")
	r.WorkerSpawned("a")
	r.ActiveKeys(3)
	r.HoldEngaged(true)
	r.HoldFPS(42)
	r.Halted(engine.EngineHold)

	if got := testutil.ToFloat64(r.cycles.WithLabelValues("spam", "ok")); got != 1 {
		t.Fatalf("ok cycles %v", got)
	}
	if got := testutil.ToFloat64(r.cycles.WithLabelValues("spam", "error")); got != 1 {
		t.Fatalf("error cycles %v", got)
	}
	if got := testutil.ToFloat64(r.keyActions.WithLabelValues("hold", "down", "error")); got != 1 {
		t.Fatalf("failed key downs %v", got)
	}
	if got := testutil.ToFloat64(r.spawned.WithLabelValues("a")); got != 2 {
		t.Fatalf("spawned %v", got)
	}
	if testutil.ToFloat64(r.activeKeys) != 3 || testutil.ToFloat64(r.holding) != 1 || testutil.ToFloat64(r.holdFPS) != 42 {
		t.Fatal("gauges not set")
	}
	if got := testutil.ToFloat64(r.halts.WithLabelValues("hold")); got != 1 {
		t.Fatalf("halts %v", got)
	}
	if n := testutil.CollectAndCount(r.cycleSeconds); n != 1 {
		t.Fatalf("only successful cycles are timed, got %d series", n)
	}
}

func TestRecorder_DetectionsAndLatency(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.Detections(engine.EngineSpam, 4)
	r.Detections(engine.EngineSpam, 2)
	r.HoldLatency(20 * time.Millisecond)
	r.HoldLatency(40 * time.Millisecond)

	if got := testutil.ToFloat64(r.detections.WithLabelValues("spam")); got != 2 {
		t.Fatalf("detections should hold the last cycle, got %v", got)
	}
	if n := testutil.CollectAndCount(r.holdLatency); n != 1 {
		t.Fatalf("latency series %d", n)
	}
}

func TestRecorder_NilIsInert(t *testing.T) {
	var r *Recorder
	r.Cycle("spam", time.Second, nil)
	r.Detections("spam", 1)
	r.ActiveKeys(1)
	r.WorkerSpawned("a")
	r.KeyAction("spam", "press", nil)
	r.HoldEngaged(true)
	r.HoldLatency(time.Millisecond)
	r.HoldFPS(1)
	r.Halted("spam")
}

type stubSource struct{ st capture.CaptureStats }

func (s stubSource) Stats() capture.CaptureStats { return s.st }

type stubScanner struct{ st capture.ScanStats }

func (s stubScanner) Stats() capture.ScanStats { return s.st }

func TestCaptureCollector(t *testing.T) {
	c := NewCaptureCollector(map[string]SourceStats{
		"spam": stubSource{capture.CaptureStats{Captures: 7, CacheHits: 3, Failures: 1}},
	}, stubScanner{capture.ScanStats{Scans: 5, Skipped: 2, MemoHits: 4}})

	want := `
# HELP promptbot_captures_total Screen grabs performed by a frame source.
# TYPE promptbot_captures_total counter
promptbot_captures_total{source="spam"} 7
# HELP promptbot_capture_cache_hits_total Capture calls served from the frame cache.
# TYPE promptbot_capture_cache_hits_total counter
promptbot_capture_cache_hits_total{source="spam"} 3
# HELP promptbot_templates_skipped_total Template matches skipped because of an error.
# TYPE promptbot_templates_skipped_total counter
promptbot_templates_skipped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"promptbot_captures_total", "promptbot_capture_cache_hits_total", "promptbot_templates_skipped_total")
	if err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(c); n != 8 {
		t.Fatalf("expected 8 series, got %d", n)
	}
}
