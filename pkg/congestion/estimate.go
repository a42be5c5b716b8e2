package congestion

import "time"

// IsCongested reports whether the transport should be considered congested,
// i.e. whether the in-flight estimate has reached the congestion window.
// Senders should hold off on more data until it clears.
func (c *Controller) IsCongested() bool {
	return c.InFlight() >= c.window
}

// InFlight estimates the bytes handed to the transport that the remote
// side has not yet processed. The transport gives no acknowledgment of
// application-level consumption, so the estimate interpolates between
// answered and pending probes.
func (c *Controller) InFlight() int64 {
	// Simple case?
	if c.lastPosition == c.lastAck.position {
		return 0
	}

	// Before the first measurement the only marker is the oldest
	// pending probe.
	if !c.baseRTT.known {
		if next, ok := c.pending.front(); ok {
			return int64(c.lastPosition - next.position)
		}
		return 0
	}

	now := c.clock.Now()

	var acked uint32
	if next, ok := c.pending.front(); ok {
		// At least one more response is due. Figure out how far
		// behind it should be and interpolate the position.
		etaNext := c.interval(c.lastAck, next.sentAt, next.extra)

		elapsed := msBetween(c.lastAckArrival, now)
		if etaNext <= elapsed {
			// The response should be here any moment. Be
			// optimistic and use its value already.
			acked = next.position
		} else {
			span := uint64(next.position - c.lastAck.position)
			acked = c.lastAck.position + uint32(span*uint64(elapsed)/uint64(etaNext))
		}
	} else {
		// No responses pending, so guess from the time since the
		// last position update.
		elapsed := msBetween(c.lastUpdate, now)
		var drained int64
		if elapsed > c.baseRTT.ms {
			drained = (elapsed - c.baseRTT.ms) * c.window / c.baseRTT.ms
		}
		if drained > c.extraBuffer {
			drained = c.extraBuffer
		}
		acked = c.lastPosition - uint32(c.extraBuffer) + uint32(drained)
	}

	return int64(c.lastPosition - acked)
}

// ExtraBuffer returns the current estimate of bytes queued in output
// buffers beyond the bandwidth-delay product, decayed for the time elapsed
// since the last position update. Zero until the first RTT measurement.
func (c *Controller) ExtraBuffer() int64 {
	if !c.baseRTT.known {
		return 0
	}

	elapsed := msBetween(c.lastUpdate, c.clock.Now())
	consumed := elapsed * c.window / c.baseRTT.ms

	if consumed >= c.extraBuffer {
		return 0
	}
	return c.extraBuffer - consumed
}

// UncongestedETA estimates how long until the connection stops being
// congested. It returns (0, true) when already uncongested and (0, false)
// when there is no RTT measurement to estimate from.
func (c *Controller) UncongestedETA() (time.Duration, bool) {
	target := c.lastPosition - uint32(c.window)

	// Simple case?
	if posAfter(c.lastAck.position, target) {
		return 0, true
	}

	// No measurements yet?
	if !c.baseRTT.known {
		return 0, false
	}

	elapsed := msBetween(c.lastAckArrival, c.clock.Now())

	// Walk the pending probes to find the response that will clear the
	// congested state, summing expected inter-arrival times on the way.
	prev := c.lastAck
	var eta int64
	for _, s := range c.pending.samples {
		etaNext := c.interval(prev, s.sentAt, s.extra)

		// Found it?
		if posAfter(s.position, target) {
			eta += etaNext * int64(s.position-target) / int64(s.position-prev.position)
			return etaRemaining(eta, elapsed), true
		}

		eta += etaNext
		prev = s
	}

	// No pending response clears the congested state. Estimate the
	// final stretch by pretending a probe followed the last position
	// update.
	etaNext := c.interval(prev, c.lastUpdate, c.extraBuffer)
	eta += etaNext * int64(c.lastPosition-target) / int64(c.lastPosition-prev.position)
	return etaRemaining(eta, elapsed), true
}

// interval estimates the expected arrival gap in milliseconds between the
// response to prev and the response to a probe sent at sentAt with extra
// buffered bytes, compensating both endpoints for their buffering delay.
func (c *Controller) interval(prev probeSample, sentAt time.Time, extra int64) int64 {
	etaNext := msBetween(prev.sentAt, sentAt)
	etaNext += extra * c.baseRTT.ms / c.window
	delay := prev.extra * c.baseRTT.ms / c.window
	if delay >= etaNext {
		return 0
	}
	return etaNext - delay
}

// etaRemaining converts an estimate relative to the last response arrival
// into a remaining duration, flooring at zero for overdue estimates.
func etaRemaining(eta, elapsed int64) time.Duration {
	if elapsed > eta {
		return 0
	}
	return time.Duration(eta-elapsed) * time.Millisecond
}
