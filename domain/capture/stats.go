package capture

import "time"

// CaptureStats summarises Source behaviour for instrumentation.
type CaptureStats struct {
	Captures       uint64
	CacheHits      uint64
	Failures       uint64
	AvgCapture     time.Duration
	LastCapture    time.Time
	LatestFrameAge time.Duration
	Sequence       uint64
}

// HitRatio is the fraction of Capture calls served from the cache.
func (s CaptureStats) HitRatio() float64 {
	total := s.Captures + s.CacheHits
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}
