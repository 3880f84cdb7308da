package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const captureStatsLogInterval = 5 * time.Second

// SourceOptions configures a Source.
type SourceOptions struct {
	Region     image.Rectangle // ignored when FullScreen
	FullScreen bool
	Scale      float64       // 0 < Scale < 1 downsamples; anything else keeps full size
	TTL        time.Duration // cache validity; 0 disables caching
	Now        func() time.Time
}

// Source captures frames through a Grabber and caches the most recent frame
// for TTL. Callers within the window share the same immutable Frame. There
// is no invalidation other than time. Use NewSource to construct an
// instance.
type Source struct {
	grab   Grabber
	opts   SourceOptions
	logger *slog.Logger

	mu      sync.Mutex // serialises grabs
	latest  atomic.Pointer[Frame]
	lastLog time.Time

	captures     atomic.Uint64
	hits         atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
}

// NewSource constructs a Source over grab.
func NewSource(grab Grabber, opts SourceOptions, logger *slog.Logger) *Source {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = 1
	}
	if opts.Region.Empty() {
		opts.FullScreen = true
	}
	return &Source{grab: grab, opts: opts, logger: logger}
}

func (s *Source) cached(now time.Time) *Frame {
	if s.opts.TTL <= 0 {
		return nil
	}
	f := s.latest.Load()
	if f == nil {
		return nil
	}
	if age := now.Sub(f.CapturedAt); age >= 0 && age < s.opts.TTL {
		return f
	}
	return nil
}

// Capture returns the cached frame if it is younger than the TTL and grabs a
// new one otherwise. Grab failures wrap ErrCapture.
func (s *Source) Capture() (*Frame, error) {
	if f := s.cached(s.opts.Now()); f != nil {
		s.hits.Add(1)
		return f, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// another caller may have refreshed the cache while we waited
	if f := s.cached(s.opts.Now()); f != nil {
		s.hits.Add(1)
		return f, nil
	}

	start := time.Now()
	var (
		img    *image.RGBA
		err    error
		region image.Rectangle
	)
	if s.opts.FullScreen {
		img, err = s.grab.CaptureScreen()
	} else {
		region = s.opts.Region
		img, err = s.grab.CaptureRect(region)
	}
	if err == nil && img == nil {
		err = fmt.Errorf("capture: grabber returned no image")
	}
	if err != nil {
		s.failures.Add(1)
		if s.logger != nil {
			s.logger.Error("capture", "region", region, "error", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	gray := ToGray(img, s.opts.Scale)
	// img belongs to us now; see Grabber.
	RecycleFrame(img)
	f := NewFrame(gray, s.opts.Now(), region, s.opts.Scale)

	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	s.latest.Store(f)

	if f.CapturedAt.Sub(s.lastLog) >= captureStatsLogInterval {
		s.lastLog = f.CapturedAt
		s.logStats()
	}
	return f, nil
}

// Latest returns the most recently published frame, or nil.
func (s *Source) Latest() *Frame { return s.latest.Load() }

// Stats returns capture counters.
func (s *Source) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
	}
	st := CaptureStats{
		Captures:   captures,
		CacheHits:  s.hits.Load(),
		Failures:   s.failures.Load(),
		AvgCapture: avg,
	}
	if f := s.latest.Load(); f != nil {
		st.LastCapture = f.CapturedAt
		st.LatestFrameAge = s.opts.Now().Sub(f.CapturedAt)
		st.Sequence = f.Seq
	}
	return st
}

func (s *Source) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"hits", stats.CacheHits,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}
