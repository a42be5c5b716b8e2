// Package congestion implements delay-based congestion control for
// reliable, ordered byte-stream transports such as RFB/VNC sessions.
package congestion

import "time"

// rttMillis is a round-trip time in whole milliseconds that may not have
// been measured yet. The zero value means "unknown".
type rttMillis struct {
	ms    int64
	known bool
}

// lower records ms if it is the first observation or below the current
// minimum.
func (r *rttMillis) lower(ms int64) {
	if !r.known || ms < r.ms {
		r.ms = ms
		r.known = true
	}
}

// reset forgets the measurement.
func (r *rttMillis) reset() {
	*r = rttMillis{}
}

// duration converts the value to a time.Duration. Only meaningful when known.
func (r rttMillis) duration() time.Duration {
	return time.Duration(r.ms) * time.Millisecond
}

// msBetween returns the elapsed whole milliseconds from a to b.
func msBetween(a, b time.Time) int64 {
	return b.Sub(a).Milliseconds()
}

// posAfter reports whether ring position a is strictly ahead of b.
// The byte counter wraps modulo 2^32, so ordering is judged by the sign of
// the wrapped difference and is only valid while the true distance is less
// than half the counter range.
func posAfter(a, b uint32) bool {
	return int32(a-b) > 0
}

// Snapshot captures the controller's view of the path right after a window
// adjustment.
type Snapshot struct {
	// BaseRTT is the lowest round-trip time seen, the wire latency floor.
	BaseRTT time.Duration

	// MinRTT is the filtered minimum round-trip time over the sample
	// window that triggered the adjustment, with buffering delay already
	// compensated for.
	MinRTT time.Duration

	// Window is the congestion window in bytes after the adjustment.
	Window int64

	// Bandwidth is the throughput implied by Window and BaseRTT, in bits
	// per second.
	Bandwidth float64
}

// AdjustmentCallback is invoked after every window adjustment with a
// Snapshot of the new state. Callbacks run synchronously on the caller's
// goroutine and must not call back into the controller.
type AdjustmentCallback func(Snapshot)
