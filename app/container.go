package app

import (
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soocke/prompt-bot-go/config"
	"github.com/soocke/prompt-bot-go/domain/action"
	"github.com/soocke/prompt-bot-go/domain/capture"
	"github.com/soocke/prompt-bot-go/domain/engine"
	"github.com/soocke/prompt-bot-go/domain/templates"
	"github.com/soocke/prompt-bot-go/telemetry"
)

// Deps overrides the platform-bound parts of the container. Zero fields are
// built from the configuration.
type Deps struct {
	Grabber capture.Grabber
	Backend action.Backend // used as the only backend when set
	Clock   engine.Clock
	Alert   func(title, msg string) error
}

// Container assembles sources, templates, the actuator and both engines.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *telemetry.Recorder

	Grabber     capture.Grabber
	Scanner     *capture.Scanner
	SpamSource  *capture.Source
	HoldSource  *capture.Source
	SpamLibrary *templates.Library
	HoldLibrary *templates.Library
	Actuator    *action.Actuator

	Spam *engine.SpamManager
	Hold *engine.HoldController

	alerter *alerter
}

// BuildContainer constructs all components. Side-effects are limited to
// template loading; nothing is started.
func BuildContainer(cfg *config.Config, logger *slog.Logger, deps Deps) *Container {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	_ = cfg.Validate()
	c := &Container{Config: cfg, Logger: logger}

	c.Registry = prometheus.NewRegistry()
	c.Metrics = telemetry.NewRecorder(c.Registry)

	c.Grabber = deps.Grabber
	if c.Grabber == nil {
		g, err := capture.NewGrabber(cfg.CaptureMode)
		if err != nil {
			logger.Warn("capture backend unavailable, using screenshot", "backend", cfg.CaptureMode, "error", err)
			g = capture.ScreenshotGrabber{}
		}
		c.Grabber = g
	}

	c.Scanner = capture.NewScanner(capture.ScanOptions{
		Stride: cfg.Match.Stride,
		Refine: cfg.Match.Refine,
	}, logger)

	c.SpamSource = capture.NewSource(c.Grabber, capture.SourceOptions{
		Region:     cfg.Spam.Region.Rect(),
		FullScreen: cfg.Spam.FullScreen,
		TTL:        cfg.Spam.CacheTTL(),
	}, logger.With("source", engine.EngineSpam))

	holdScale := cfg.Hold.EffectiveScale()
	c.HoldSource = capture.NewSource(c.Grabber, capture.SourceOptions{
		Region:     cfg.Hold.Region.Rect(),
		FullScreen: !cfg.Hold.UseRegion,
		Scale:      holdScale,
		TTL:        cfg.Hold.CacheTTL(),
	}, logger.With("source", engine.EngineHold))

	c.SpamLibrary = templates.NewLibrary(1, logger)
	c.SpamLibrary.Load(cfg.TemplatesDir, templates.KeyCandidates(cfg.Spam.Keys))
	c.HoldLibrary = templates.NewLibrary(holdScale, logger)
	c.HoldLibrary.Load(cfg.TemplatesDir, templates.NamedCandidates(cfg.Hold.Templates, cfg.Hold.Key))

	actOpts := action.Options{
		Method:        cfg.InputMethod,
		PressDuration: cfg.PressDuration(),
		Focus:         action.FocusGate(cfg.FocusWindow),
	}
	if deps.Backend != nil {
		c.Actuator = action.NewWithBackends(deps.Backend, nil, actOpts, logger)
	} else {
		c.Actuator = action.New(actOpts, logger)
	}

	c.alerter = newAlerter(cfg.AlertOnHalt, deps.Alert, logger)

	// Runs on the coordinator goroutine only.
	var lastKeys []string
	observeKeys := func(keys []string) {
		if slices.Equal(keys, lastKeys) {
			return
		}
		lastKeys = keys
		logger.Debug("spam keys", "keys", keys)
	}

	c.Spam = engine.NewSpamManager(c.SpamSource, c.Scanner, c.Actuator, engine.SpamOptions{
		Templates:    c.SpamLibrary.Templates(),
		Threshold:    cfg.Spam.Threshold,
		ScanInterval: cfg.Spam.ScanInterval(),
		SpamInterval: cfg.Spam.SpamInterval(),
		MaxErrors:    cfg.MaxErrors,
		Clock:        deps.Clock,
		Metrics:      c.Metrics,
		Observer:     observeKeys,
		OnHalt:       c.alerter.onHalt(engine.EngineSpam),
	}, logger)

	c.Hold = engine.NewHoldController(c.HoldSource, c.Scanner, c.Actuator, engine.HoldOptions{
		Key:          cfg.Hold.Key,
		Templates:    c.HoldLibrary.Templates(),
		Threshold:    cfg.Hold.Threshold,
		ScanInterval: cfg.Hold.ScanInterval(),
		ReleaseDelay: cfg.Hold.ReleaseDelay,
		MaxErrors:    cfg.MaxErrors,
		Clock:        deps.Clock,
		Metrics:      c.Metrics,
		OnStatus: func(s engine.HoldStatus) {
			logger.Info("hold status", "status", s.String(), "template", s.Label, "latency", s.Latency)
		},
		OnHalt: c.alerter.onHalt(engine.EngineHold),
	}, logger)

	c.Registry.MustRegister(telemetry.NewCaptureCollector(map[string]telemetry.SourceStats{
		engine.EngineSpam: c.SpamSource,
		engine.EngineHold: c.HoldSource,
	}, c.Scanner))

	return c
}
