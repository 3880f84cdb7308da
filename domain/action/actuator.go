package action

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Options configures an Actuator.
type Options struct {
	Method        string
	PressDuration time.Duration
	// Focus, when set, must report true for Press and KeyDown to proceed.
	// KeyUp is never gated so a held key can always be released.
	Focus func() bool
	Sleep func(time.Duration)
}

// Stats counts actuator outcomes.
type Stats struct {
	Actions   uint64
	Fallbacks uint64
	Dropped   uint64
}

// Actuator presses, holds and releases keys through a primary backend and
// retries once on a fixed fallback backend.
type Actuator struct {
	primary  Backend
	fallback Backend
	press    time.Duration
	focus    func() bool
	sleep    func(time.Duration)
	logger   *slog.Logger

	actions   atomic.Uint64
	fallbacks atomic.Uint64
	dropped   atomic.Uint64
}

// FallbackMethod is the backend tried when the configured one fails.
func FallbackMethod() string {
	if runtime.GOOS == "windows" {
		return MethodWin32
	}
	return MethodRobotgo
}

// New builds an Actuator for opts.Method. A primary backend that cannot be
// constructed is replaced by the fallback.
func New(opts Options, logger *slog.Logger) *Actuator {
	fallback, err := NewBackend(FallbackMethod())
	if err != nil && logger != nil {
		logger.Warn("fallback backend unavailable", "method", FallbackMethod(), "error", err)
	}
	primary, err := NewBackend(opts.Method)
	if err != nil {
		if logger != nil {
			logger.Warn("input backend unavailable", "method", opts.Method, "error", err)
		}
		primary, fallback = fallback, nil
	}
	return NewWithBackends(primary, fallback, opts, logger)
}

// NewWithBackends builds an Actuator from explicit backends. fallback may be
// nil; it is ignored when it is the same backend as primary.
func NewWithBackends(primary, fallback Backend, opts Options, logger *slog.Logger) *Actuator {
	if fallback != nil && primary != nil && fallback.Name() == primary.Name() {
		fallback = nil
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Actuator{
		primary:  primary,
		fallback: fallback,
		press:    opts.PressDuration,
		focus:    opts.Focus,
		sleep:    opts.Sleep,
		logger:   logger,
	}
}

// Method returns the primary backend name.
func (a *Actuator) Method() string {
	if a.primary == nil {
		return ""
	}
	return a.primary.Name()
}

// Stats returns a snapshot of the counters.
func (a *Actuator) Stats() Stats {
	return Stats{Actions: a.actions.Load(), Fallbacks: a.fallbacks.Load(), Dropped: a.dropped.Load()}
}

func (a *Actuator) tap(b Backend, key string) error {
	if err := b.KeyDown(key); err != nil {
		return err
	}
	if a.press > 0 {
		a.sleep(a.press)
	}
	return b.KeyUp(key)
}

// run tries op on the primary backend, then once on the fallback.
func (a *Actuator) run(kind, key string, op func(Backend) error) error {
	a.actions.Add(1)
	var errs []error
	for i, b := range []Backend{a.primary, a.fallback} {
		if b == nil {
			continue
		}
		if i == 1 {
			a.fallbacks.Add(1)
		}
		err := op(b)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	a.dropped.Add(1)
	if len(errs) == 0 {
		errs = append(errs, ErrUnsupportedBackend)
	}
	if a.logger != nil {
		a.logger.Debug("key action dropped", "action", kind, "key", key, "error", errors.Join(errs...))
	}
	return fmt.Errorf("%w: %s %q: %w", ErrDropped, kind, key, errors.Join(errs...))
}

func (a *Actuator) focused() bool { return a.focus == nil || a.focus() }

// Press sends a key down, waits PressDuration and sends the key up.
func (a *Actuator) Press(key string) error {
	if !a.focused() {
		return ErrUnfocused
	}
	return a.run("press", key, func(b Backend) error { return a.tap(b, key) })
}

// KeyDown presses key without releasing it.
func (a *Actuator) KeyDown(key string) error {
	if !a.focused() {
		return ErrUnfocused
	}
	return a.run("down", key, func(b Backend) error { return b.KeyDown(key) })
}

// KeyUp releases key.
func (a *Actuator) KeyUp(key string) error {
	return a.run("up", key, func(b Backend) error { return b.KeyUp(key) })
}

// FocusGate returns a Focus func that accepts actions only while the
// foreground window title contains substr (case-insensitive). It returns
// nil for an empty substr. Where the title cannot be read on this platform
// the gate stays open.
func FocusGate(substr string) func() bool {
	substr = strings.ToLower(strings.TrimSpace(substr))
	if substr == "" {
		return nil
	}
	return func() bool {
		title, err := ForegroundWindowTitle()
		if err != nil {
			return errors.Is(err, ErrUnsupportedBackend)
		}
		return strings.Contains(strings.ToLower(title), substr)
	}
}
