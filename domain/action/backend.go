package action

import (
	"errors"
)

// Backend names, as accepted in configuration.
const (
	MethodRobotgo     = "robotgo"
	MethodDirectInput = "directinput"
	MethodWin32       = "win32"
	MethodSendInput   = "sendinput"
)

var (
	// ErrUnsupportedBackend is returned when a backend cannot run on this
	// platform.
	ErrUnsupportedBackend = errors.New("action: backend not supported on this platform")
	// ErrDropped marks a key action that failed on every backend. Engines
	// log it and carry on; the next detection cycle retries.
	ErrDropped = errors.New("action: key action dropped")
	// ErrUnfocused is returned when the focus gate rejects an action.
	ErrUnfocused = errors.New("action: target window not focused")
)

// Backend injects key transitions. Implementations hold no shared state.
type Backend interface {
	Name() string
	KeyDown(key string) error
	KeyUp(key string) error
}

// NewBackend returns the backend registered under method. Unknown names
// select the robotgo simulator.
func NewBackend(method string) (Backend, error) {
	switch normalizeKey(method) {
	case MethodWin32:
		return newWin32Backend()
	case MethodSendInput:
		return newSendInputBackend()
	case MethodDirectInput:
		return newDirectInputBackend()
	}
	return robotgoBackend{}, nil
}
