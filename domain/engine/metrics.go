package engine

import "time"

// Engine names used in logs and metrics.
const (
	EngineSpam = "spam"
	EngineHold = "hold"
)

// Metrics receives engine telemetry. All methods must be cheap and safe for
// concurrent use.
type Metrics interface {
	Cycle(engine string, d time.Duration, err error)
	Detections(engine string, n int)
	ActiveKeys(n int)
	WorkerSpawned(key string)
	KeyAction(engine, kind string, err error)
	HoldEngaged(held bool)
	HoldLatency(d time.Duration)
	HoldFPS(fps float64)
	Halted(engine string)
}

type nopMetrics struct{}

func (nopMetrics) Cycle(string, time.Duration, error) {}
func (nopMetrics) Detections(string, int)             {}
func (nopMetrics) ActiveKeys(int)                     {}
func (nopMetrics) WorkerSpawned(string)               {}
func (nopMetrics) KeyAction(string, string, error)    {}
func (nopMetrics) HoldEngaged(bool)                   {}
func (nopMetrics) HoldLatency(time.Duration)          {}
func (nopMetrics) HoldFPS(float64)                    {}
func (nopMetrics) Halted(string)                      {}
