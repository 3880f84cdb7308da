package engine

import "time"

// HoldSession tracks how long the hold key has been down: the current (or
// last) hold and the accumulated total. The zero value is ready to use. It
// is not safe for concurrent use; HoldController guards it.
type HoldSession struct {
	active      bool
	holdStart   time.Time
	lastHold    time.Duration
	accumulated time.Duration
	holds       int
}

// OnTick updates the session from the holding flag at now.
func (s *HoldSession) OnTick(holding bool, now time.Time) {
	if s == nil {
		return
	}
	if holding {
		if !s.active { // released -> held
			s.active = true
			s.holdStart = now
			s.lastHold = 0
			s.holds++
		}
		s.lastHold = now.Sub(s.holdStart)
	} else if s.active { // held -> released
		s.lastHold = now.Sub(s.holdStart)
		s.accumulated += s.lastHold
		s.active = false
	}
}

// Values returns the current or last hold duration, the total held time
// including an ongoing hold, and the number of holds.
func (s *HoldSession) Values() (current, total time.Duration, holds int) {
	if s == nil {
		return 0, 0, 0
	}
	current = s.lastHold
	total = s.accumulated
	if s.active {
		total += current
	}
	return current, total, s.holds
}
