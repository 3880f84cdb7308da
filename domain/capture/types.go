package capture

import (
	"errors"
	"image"
	"sync/atomic"
	"time"
)

var (
	// ErrCapture marks a failed screen grab. Engines count it toward their
	// error ceiling.
	ErrCapture = errors.New("capture failed")
	// ErrNoFrame is returned when a scan is asked to run without a frame.
	ErrNoFrame = errors.New("capture: nil frame")
	// ErrTemplateTooLarge is returned by the matcher when a template does
	// not fit inside the frame. Scanners skip the template.
	ErrTemplateTooLarge = errors.New("capture: template larger than frame")
	// ErrEmptyTemplate is returned by the matcher for zero-area templates.
	ErrEmptyTemplate = errors.New("capture: empty template")
	// ErrMatch wraps any other per-template matching failure, including a
	// recovered matcher panic.
	ErrMatch = errors.New("capture: template match failed")
)

// Grabber acquires raw screen pixels. Implementations wrap a platform or
// library screenshot API.
//
// Ownership of the returned image passes to the caller. Source recycles it
// into the shared buffer pool once the grayscale frame is built, so a
// Grabber must hand out a fresh or pool-acquired buffer on every call and
// never touch it again after returning.
type Grabber interface {
	CaptureScreen() (*image.RGBA, error)
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

// FrameSource provides frames to the engines.
type FrameSource interface {
	Capture() (*Frame, error)
}

var frameSeq atomic.Uint64

// Frame is a grayscale capture together with the time it was taken and the
// screen region and scale it represents. A published Frame is never mutated
// and may be shared between goroutines.
type Frame struct {
	Image      *image.Gray
	CapturedAt time.Time
	Region     image.Rectangle // empty for full screen
	Scale      float64
	Seq        uint64
}

// NewFrame wraps img in a Frame with a process-unique sequence number.
func NewFrame(img *image.Gray, at time.Time, region image.Rectangle, scale float64) *Frame {
	if scale <= 0 {
		scale = 1
	}
	return &Frame{Image: img, CapturedAt: at, Region: region, Scale: scale, Seq: frameSeq.Add(1)}
}

// Template is an immutable grayscale reference image bound to one key
// symbol. Build it with NewTemplate so matching statistics are precomputed.
type Template struct {
	Name  string
	Key   string
	Image *image.Gray
	pre   *templatePrecomp
}

// NewTemplate precomputes NCC statistics for img.
func NewTemplate(name, key string, img *image.Gray) *Template {
	return &Template{Name: name, Key: key, Image: img, pre: newTemplatePrecomp(img)}
}

// Size returns the template dimensions.
func (t *Template) Size() image.Point {
	if t == nil || t.Image == nil {
		return image.Point{}
	}
	return t.Image.Bounds().Size()
}
