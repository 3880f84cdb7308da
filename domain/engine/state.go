// Package engine drives key actions from detections: the multi-key spam
// engine and the single-key hold engine.
package engine

import (
	"errors"
	"sync/atomic"
)

// DefaultMaxErrors is the failed-cycle ceiling used when none is given.
const DefaultMaxErrors = 10

var (
	// ErrAlreadyRunning is returned by Start on a running engine.
	ErrAlreadyRunning = errors.New("engine: already running")
	// ErrHalted is reported to OnHalt when the error ceiling is exceeded.
	ErrHalted = errors.New("engine: error ceiling exceeded")
	errPanic  = errors.New("engine: recovered panic")
)

// RunState is the running flag and failed-cycle counter shared by an
// engine's coordinator and its workers.
type RunState struct {
	running atomic.Bool
	halted  atomic.Bool
	errors  atomic.Int32
	ceiling int32
}

// NewRunState returns a stopped RunState that halts once more than ceiling
// failures are recorded.
func NewRunState(ceiling int) *RunState {
	if ceiling <= 0 {
		ceiling = DefaultMaxErrors
	}
	return &RunState{ceiling: int32(ceiling)}
}

// Start marks the state running and clears the counter. It reports false if
// already running.
func (s *RunState) Start() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.errors.Store(0)
	s.halted.Store(false)
	return true
}

// Stop clears the running flag. It reports whether the state was running.
func (s *RunState) Stop() bool { return s.running.CompareAndSwap(true, false) }

// Running reports the running flag.
func (s *RunState) Running() bool { return s.running.Load() }

// Fail records one failed cycle. When the count exceeds the ceiling the
// state is stopped and marked halted; Fail reports true only to the caller
// that performed that transition.
func (s *RunState) Fail() bool {
	if s.errors.Add(1) <= s.ceiling {
		return false
	}
	if !s.running.CompareAndSwap(true, false) {
		return false
	}
	s.halted.Store(true)
	return true
}

// Errors returns the failed-cycle count since the last Start.
func (s *RunState) Errors() int { return int(s.errors.Load()) }

// Halted reports whether the last run ended on the error ceiling.
func (s *RunState) Halted() bool { return s.halted.Load() }
