// Package clock provides the production coap.Clock implementation. It is
// a thin time.Now() wrapper; no example in the retrieval pack wires a
// third-party time/clock library for this concern (DESIGN.md).
package clock

import "time"

// System is a coap.Clock backed by the monotonic wall clock.
type System struct {
	start time.Time
}

// New returns a System clock referenced to the current time, so early
// NowMS() values stay small instead of starting near the full uint32
// range.
func New() *System {
	return &System{start: time.Now()}
}

// NowMS returns milliseconds elapsed since the clock was constructed,
// truncated to uint32 (wraps after roughly 49 days, per spec.md
// section 6).
func (s *System) NowMS() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}
