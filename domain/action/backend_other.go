//go:build !windows

package action

func newWin32Backend() (Backend, error) { return nil, ErrUnsupportedBackend }

func newSendInputBackend() (Backend, error) { return nil, ErrUnsupportedBackend }

func newDirectInputBackend() (Backend, error) { return nil, ErrUnsupportedBackend }

// ForegroundWindowTitle is only available on Windows.
func ForegroundWindowTitle() (string, error) { return "", ErrUnsupportedBackend }

// ListWindows is only available on Windows.
func ListWindows() ([]string, error) { return nil, ErrUnsupportedBackend }
