//go:build windows

package action

import (
	"errors"
	"strings"
	"syscall"
	"unicode/utf16"
	"unsafe"
)

var (
	procEnumWindows         = user32.NewProc("EnumWindows")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procIsWindowVisible     = user32.NewProc("IsWindowVisible")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
)

func windowText(hwnd uintptr) string {
	const maxChars = 256
	buf := make([]uint16, maxChars)
	r, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		return ""
	}
	end := int(r)
	for i, v := range buf[:end] {
		if v == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(utf16.Decode(buf[:end])))
}

// ListWindows returns titles of top-level visible windows. Empty titles are
// skipped.
func ListWindows() ([]string, error) {
	var titles []string
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		if vis, _, _ := procIsWindowVisible.Call(hwnd); vis == 0 {
			return 1
		}
		if title := windowText(hwnd); title != "" {
			titles = append(titles, title)
		}
		return 1 // continue enumeration
	})
	if r, _, callErr := procEnumWindows.Call(cb, 0); r == 0 && callErr != nil && callErr != syscall.Errno(0) {
		return nil, callErr
	}
	return titles, nil
}

// ForegroundWindowTitle returns the title of the current foreground window.
func ForegroundWindowTitle() (string, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", errors.New("action: no foreground window")
	}
	return windowText(hwnd), nil
}
