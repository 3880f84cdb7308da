package engine

import (
	"log/slog"
	"runtime/debug"

	"github.com/soocke/prompt-bot-go/domain/capture"
)

// MultiScanner reports every key detected in a frame.
type MultiScanner interface {
	ScanAll(f *capture.Frame, templates []*capture.Template, threshold float64) (capture.DetectionResult, error)
}

// BestScanner reports the single best detection in a frame.
type BestScanner interface {
	ScanBest(f *capture.Frame, templates []*capture.Template, threshold float64) (capture.Detection, bool, error)
}

// Presser taps a key.
type Presser interface {
	Press(key string) error
}

// Holder holds and releases a key.
type Holder interface {
	KeyDown(key string) error
	KeyUp(key string) error
}

func recoverLog(logger *slog.Logger, msg string) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error(msg, "error", r, "stack", string(debug.Stack()))
		}
	}
}

// guard runs fn and converts a panic into errPanic.
func guard(logger *slog.Logger, msg string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error(msg, "error", r, "stack", string(debug.Stack()))
			}
			err = errPanic
		}
	}()
	return fn()
}
