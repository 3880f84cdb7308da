package app

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"
)

const alertTitle = "prompt-bot"

// alerter raises a desktop notification when an engine halts.
type alerter struct {
	enabled bool
	notify  func(title, msg string) error
	logger  *slog.Logger
}

func newAlerter(enabled bool, notify func(title, msg string) error, logger *slog.Logger) *alerter {
	if notify == nil {
		notify = desktopAlert
	}
	return &alerter{enabled: enabled, notify: notify, logger: logger}
}

// desktopAlert shows a notification and falls back to a plain beep.
func desktopAlert(title, msg string) error {
	if err := beeep.Notify(title, msg, ""); err != nil {
		return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
	}
	return nil
}

// onHalt returns the OnHalt callback for the named engine.
func (a *alerter) onHalt(engineName string) func(error) {
	return func(err error) {
		if !a.enabled {
			return
		}
		msg := fmt.Sprintf("%s engine stopped: %v", engineName, err)
		if aerr := a.notify(alertTitle, msg); aerr != nil {
			a.logger.Warn("halt alert failed", "error", aerr)
		}
	}
}
