//go:build !windows

package capture

// NewGDIGrabber is only available on Windows.
func NewGDIGrabber() (Grabber, error) { return nil, ErrGDIUnavailable }
