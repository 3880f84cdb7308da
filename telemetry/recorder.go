// Package telemetry exports engine and capture statistics to Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "promptbot"

// Recorder implements engine.Metrics on top of Prometheus collectors. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	cycles       *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	detections   *prometheus.GaugeVec
	activeKeys   prometheus.Gauge
	spawned      *prometheus.CounterVec
	keyActions   *prometheus.CounterVec
	holding      prometheus.Gauge
	holdLatency  prometheus.Histogram
	holdFPS      prometheus.Gauge
	halts        *prometheus.CounterVec
}

// NewRecorder creates the engine collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Detection cycles by engine and outcome.",
		}, []string{"engine", "outcome"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Capture plus scan time per cycle.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"engine"}),
		detections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detections",
			Help:      "Detections in the last successful cycle.",
		}, []string{"engine"}),
		activeKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spam_active_keys",
			Help:      "Keys with an active repeat-press worker.",
		}),
		spawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spam_workers_spawned_total",
			Help:      "Repeat-press workers started per key.",
		}, []string{"key"}),
		keyActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_actions_total",
			Help:      "Key actions by engine, kind and outcome.",
		}, []string{"engine", "kind", "outcome"}),
		holding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hold_engaged",
			Help:      "1 while the hold key is down.",
		}),
		holdLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hold_latency_seconds",
			Help:      "Time from cycle start to key down.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1},
		}),
		holdFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hold_fps",
			Help:      "Hold loop cycles per second over the last window.",
		}),
		halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halts_total",
			Help:      "Engines stopped by the error ceiling.",
		}, []string{"engine"}),
	}
	if reg != nil {
		reg.MustRegister(r.cycles, r.cycleSeconds, r.detections, r.activeKeys, r.spawned,
			r.keyActions, r.holding, r.holdLatency, r.holdFPS, r.halts)
	}
	return r
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Cycle counts one engine cycle by outcome. Only successful cycles are timed.
func (r *Recorder) Cycle(engine string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(engine, outcome(err)).Inc()
	if err == nil {
		r.cycleSeconds.WithLabelValues(engine).Observe(d.Seconds())
	}
}

// Detections sets how many templates matched in the last cycle.
func (r *Recorder) Detections(engine string, n int) {
	if r == nil {
		return
	}
	r.detections.WithLabelValues(engine).Set(float64(n))
}

// ActiveKeys sets the number of keys currently being spammed.
func (r *Recorder) ActiveKeys(n int) {
	if r == nil {
		return
	}
	r.activeKeys.Set(float64(n))
}

// WorkerSpawned counts a press worker started for key.
func (r *Recorder) WorkerSpawned(key string) {
	if r == nil {
		return
	}
	r.spawned.WithLabelValues(key).Inc()
}

// KeyAction counts a press, down or up by outcome.
func (r *Recorder) KeyAction(engine, kind string, err error) {
	if r == nil {
		return
	}
	r.keyActions.WithLabelValues(engine, kind, outcome(err)).Inc()
}

// HoldEngaged reports whether the hold key is down.
func (r *Recorder) HoldEngaged(held bool) {
	if r == nil {
		return
	}
	v := 0.0
	if held {
		v = 1
	}
	r.holding.Set(v)
}

// HoldLatency observes the time from capture start to key down.
func (r *Recorder) HoldLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.holdLatency.Observe(d.Seconds())
}

// HoldFPS sets the hold loop frame rate.
func (r *Recorder) HoldFPS(fps float64) {
	if r == nil {
		return
	}
	r.holdFPS.Set(fps)
}

// Halted counts an engine stopped by its error ceiling.
func (r *Recorder) Halted(engine string) {
	if r == nil {
		return
	}
	r.halts.WithLabelValues(engine).Inc()
}
