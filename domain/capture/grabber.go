package capture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/go-vgo/robotgo"
	"github.com/vova616/screenshot"
)

// Grabber backend names.
const (
	BackendScreenshot = "screenshot"
	BackendGDI        = "gdi"
	BackendRobotgo    = "robotgo"
)

// ErrGDIUnavailable is returned by NewGDIGrabber outside Windows.
var ErrGDIUnavailable = errors.New("capture: gdi backend requires windows")

// NewGrabber returns the grabber for backend. Unknown names use the
// screenshot library.
func NewGrabber(backend string) (Grabber, error) {
	switch backend {
	case BackendGDI:
		return NewGDIGrabber()
	case BackendRobotgo:
		return RobotgoGrabber{}, nil
	}
	return ScreenshotGrabber{}, nil
}

// ScreenshotGrabber captures through github.com/vova616/screenshot.
type ScreenshotGrabber struct{}

// CaptureScreen captures the primary screen.
func (ScreenshotGrabber) CaptureScreen() (*image.RGBA, error) {
	return screenshot.CaptureScreen()
}

// CaptureRect captures r clipped to the screen bounds.
func (ScreenshotGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, errors.New("capture: empty selection")
	}
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("capture: screen rect: %w", err)
	}
	clipped := r.Intersect(screen)
	if clipped.Empty() {
		return nil, fmt.Errorf("capture: selection out of bounds sel=%v screen=%v", r, screen)
	}
	return screenshot.CaptureRect(clipped)
}

// RobotgoGrabber captures through robotgo.CaptureImg.
type RobotgoGrabber struct{}

// CaptureScreen captures the main display.
func (RobotgoGrabber) CaptureScreen() (*image.RGBA, error) {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return nil, fmt.Errorf("capture: robotgo: %w", err)
	}
	return asRGBA(img), nil
}

// CaptureRect captures r in screen coordinates.
func (RobotgoGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, errors.New("capture: empty selection")
	}
	img, err := robotgo.CaptureImg(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	if err != nil {
		return nil, fmt.Errorf("capture: robotgo region %v: %w", r, err)
	}
	return asRGBA(img), nil
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := acquireFrame(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
