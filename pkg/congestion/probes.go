package congestion

import "time"

// probeSample is the state captured when a probe is placed on the outgoing
// stream. It is immutable once enqueued.
type probeSample struct {
	// sentAt is when the probe was handed to the transport.
	sentAt time.Time

	// position is the outgoing byte counter at send time.
	position uint32

	// extra is the over-buffering estimate at send time, in bytes.
	extra int64

	// congested records whether the controller considered itself
	// congested at send time. Only congested samples can show that the
	// window is too small.
	congested bool
}

// probeQueue is a FIFO of in-flight probes. The transport is reliable and
// ordered, so responses always match the oldest pending probe; no
// correlation identifier is needed.
//
// The queue is unbounded: a peer that stops answering probes will make it
// grow without limit. Callers that need a bound must stop probing an
// unresponsive peer themselves.
type probeQueue struct {
	samples []probeSample
}

// push appends a probe to the tail.
func (q *probeQueue) push(s probeSample) {
	q.samples = append(q.samples, s)
}

// pop removes and returns the oldest pending probe.
func (q *probeQueue) pop() (probeSample, bool) {
	if len(q.samples) == 0 {
		return probeSample{}, false
	}
	s := q.samples[0]
	q.samples = q.samples[1:]
	return s, true
}

// front returns the oldest pending probe without removing it.
func (q *probeQueue) front() (probeSample, bool) {
	if len(q.samples) == 0 {
		return probeSample{}, false
	}
	return q.samples[0], true
}

// len returns the number of pending probes.
func (q *probeQueue) len() int {
	return len(q.samples)
}
