package engine

import (
	"context"
	"time"
)

// Clock abstracts time for the engine loops.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock. time.Now carries a monotonic reading, so
// schedules built on it are immune to wall-clock jumps.
func RealClock() Clock { return realClock{} }

// sleep waits for d, returning false early if ctx is done or stop closes.
func sleep(ctx context.Context, clk Clock, d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		default:
			return true
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-clk.After(d):
		return true
	}
}

// stopped reports whether stop has been closed.
func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// schedule paces a loop at a fixed interval measured from cycle start
// times. A cycle that overruns its slot starts the next one immediately
// without trying to catch up on missed slots.
type schedule struct {
	clk      Clock
	interval time.Duration
	next     time.Time
}

func newSchedule(clk Clock, interval time.Duration) *schedule {
	return &schedule{clk: clk, interval: interval, next: clk.Now()}
}

// begin marks the start of a cycle.
func (s *schedule) begin() {
	now := s.clk.Now()
	s.next = s.next.Add(s.interval)
	if s.next.Before(now) {
		s.next = now
	}
}

// reset re-anchors the schedule after an out-of-band delay such as a
// backoff.
func (s *schedule) reset() { s.next = s.clk.Now() }

// wait sleeps until the next slot.
func (s *schedule) wait(ctx context.Context, stop <-chan struct{}) bool {
	return sleep(ctx, s.clk, s.next.Sub(s.clk.Now()), stop)
}
