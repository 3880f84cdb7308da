package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soocke/prompt-bot-go/debug"
	"github.com/soocke/prompt-bot-go/domain/engine"
	"github.com/soocke/prompt-bot-go/telemetry"
)

// ErrNothingToRun is returned by Run when no engine is enabled with
// templates to detect.
var ErrNothingToRun = errors.New("app: no engine enabled with loaded templates")

const debugInterval = 2 * time.Second

// App runs the configured engines until the context ends or every engine
// has stopped on its own.
type App struct {
	c *Container
}

// New wraps a built container.
func New(c *Container) *App { return &App{c: c} }

// Container returns the wired components.
func (a *App) Container() *Container { return a.c }

type runner interface {
	Start(ctx context.Context) error
	Stop()
	Wait()
}

// Run starts every enabled engine and blocks until ctx is cancelled or all
// started engines have exited (for example after halting on errors).
func (a *App) Run(ctx context.Context) error {
	cfg, logger := a.c.Config, a.c.Logger

	var engines []runner
	if cfg.Spam.Enabled {
		if a.c.SpamLibrary.Len() == 0 {
			logger.Warn("spam engine enabled without templates", "dir", cfg.TemplatesDir)
		} else {
			engines = append(engines, a.c.Spam)
		}
	}
	if cfg.Hold.Enabled {
		if a.c.HoldLibrary.Len() == 0 {
			logger.Warn("hold engine enabled without templates", "dir", cfg.TemplatesDir)
		} else {
			engines = append(engines, a.c.Hold)
		}
	}
	if len(engines) == 0 {
		return ErrNothingToRun
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, a.c.Registry, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	if cfg.Debug {
		debug.StartRuntimeLogger(ctx, debugInterval, logger, a.engineStats)
	}

	started := make([]runner, 0, len(engines))
	for _, e := range engines {
		if err := e.Start(ctx); err != nil {
			for _, s := range started {
				s.Stop()
				s.Wait()
			}
			return err
		}
		started = append(started, e)
	}

	exited := make(chan struct{})
	go func() {
		for _, e := range started {
			e.Wait()
		}
		close(exited)
	}()

	select {
	case <-ctx.Done():
	case <-exited:
		logger.Warn("all engines stopped")
	}
	for _, e := range started {
		e.Stop()
	}
	<-exited
	logger.Info("shutdown complete",
		"spam_halted", a.c.Spam.State().Halted(),
		"hold_halted", a.c.Hold.State().Halted())
	return nil
}

func (a *App) engineStats() []slog.Attr {
	hs := a.c.Hold.Stats()
	cs := a.c.SpamSource.Stats()
	as := a.c.Actuator.Stats()
	return []slog.Attr{
		slog.Int("spam_active", len(a.c.Spam.Active())),
		slog.Uint64("spam_cycles", a.c.Spam.Cycles()),
		slog.Int("spam_errors", a.c.Spam.State().Errors()),
		slog.Bool("hold_engaged", hs.Holding),
		slog.Float64("hold_fps", hs.FPS),
		slog.Duration("hold_total", hs.TotalHeld),
		slog.Int("hold_errors", a.c.Hold.State().Errors()),
		slog.Float64("capture_hit_ratio", cs.HitRatio()),
		slog.Uint64("key_fallbacks", as.Fallbacks),
		slog.Uint64("key_dropped", as.Dropped),
	}
}

var (
	_ runner = (*engine.SpamManager)(nil)
	_ runner = (*engine.HoldController)(nil)
)
