//go:build windows

package action

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	inputKeyboard     = 1
	keyeventfKeyUp    = 0x0002
	keyeventfScanCode = 0x0008
	mapvkVKToVSC      = 0
)

var (
	user32             = windows.NewLazySystemDLL("user32.dll")
	procKeybdEvent     = user32.NewProc("keybd_event")
	procSendInput      = user32.NewProc("SendInput")
	procMapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
)

// keyboardInput mirrors KEYBDINPUT.
type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// input mirrors INPUT for the keyboard case; padding covers the larger
// MOUSEINPUT union member.
type input struct {
	inputType uint32
	ki        keyboardInput
	_         uint64
}

// win32Backend uses the legacy keybd_event call.
type win32Backend struct{}

func newWin32Backend() (Backend, error) {
	if err := procKeybdEvent.Find(); err != nil {
		return nil, fmt.Errorf("action: keybd_event: %w", err)
	}
	return win32Backend{}, nil
}

func (win32Backend) Name() string { return MethodWin32 }

func (win32Backend) KeyDown(key string) error {
	_, _, _ = procKeybdEvent.Call(uintptr(VK(key)), 0, 0, 0)
	return nil
}

func (win32Backend) KeyUp(key string) error {
	_, _, _ = procKeybdEvent.Call(uintptr(VK(key)), 0, keyeventfKeyUp, 0)
	return nil
}

// sendInputBackend injects virtual-key events through SendInput.
type sendInputBackend struct{}

func newSendInputBackend() (Backend, error) {
	if err := procSendInput.Find(); err != nil {
		return nil, fmt.Errorf("action: SendInput: %w", err)
	}
	return sendInputBackend{}, nil
}

func (sendInputBackend) Name() string { return MethodSendInput }

func (sendInputBackend) KeyDown(key string) error {
	vk := VK(key)
	return sendKeyboard(keyboardInput{wVk: vk, wScan: scanCode(vk)})
}

func (sendInputBackend) KeyUp(key string) error {
	vk := VK(key)
	return sendKeyboard(keyboardInput{wVk: vk, wScan: scanCode(vk), dwFlags: keyeventfKeyUp})
}

// directInputBackend sends hardware scan codes only, which games reading
// DirectInput accept where virtual-key events are ignored.
type directInputBackend struct{}

func newDirectInputBackend() (Backend, error) {
	if err := procSendInput.Find(); err != nil {
		return nil, fmt.Errorf("action: SendInput: %w", err)
	}
	if err := procMapVirtualKeyW.Find(); err != nil {
		return nil, fmt.Errorf("action: MapVirtualKeyW: %w", err)
	}
	return directInputBackend{}, nil
}

func (directInputBackend) Name() string { return MethodDirectInput }

func (directInputBackend) KeyDown(key string) error {
	return sendKeyboard(keyboardInput{wScan: scanCode(VK(key)), dwFlags: keyeventfScanCode})
}

func (directInputBackend) KeyUp(key string) error {
	return sendKeyboard(keyboardInput{wScan: scanCode(VK(key)), dwFlags: keyeventfScanCode | keyeventfKeyUp})
}

func scanCode(vk uint16) uint16 {
	sc, _, _ := procMapVirtualKeyW.Call(uintptr(vk), mapvkVKToVSC)
	return uint16(sc)
}

func sendKeyboard(ki keyboardInput) error {
	in := input{inputType: inputKeyboard, ki: ki}
	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if n != 1 {
		return fmt.Errorf("action: SendInput vk=%#x scan=%#x: %w", ki.wVk, ki.wScan, err)
	}
	return nil
}
