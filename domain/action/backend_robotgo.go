package action

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// robotgoBackend is the cross-platform high-level simulator.
type robotgoBackend struct{}

func (robotgoBackend) Name() string { return MethodRobotgo }

func (robotgoBackend) KeyDown(key string) error {
	if err := robotgo.KeyToggle(normalizeKey(key), "down"); err != nil {
		return fmt.Errorf("action: robotgo down %q: %w", key, err)
	}
	return nil
}

func (robotgoBackend) KeyUp(key string) error {
	if err := robotgo.KeyToggle(normalizeKey(key), "up"); err != nil {
		return fmt.Errorf("action: robotgo up %q: %w", key, err)
	}
	return nil
}
