package congestion

import (
	"time"

	"github.com/pion/logging"

	"github.com/vncflow/vncflow/pkg/congestion/internal"
)

// The controller works like TCP congestion control in order to avoid
// excessive latency on the transport, which is needed because buffer bloat
// is unfortunately still a very real problem. The transport is reliable, so
// there is never a loss signal; instead it follows TCP Vegas and treats
// queuing delay itself as the congestion signal. Measurements come from
// application-level probe/response round trips with rather coarse
// granularity, so values are heavily interpolated.

// Controller computes a congestion window (a byte budget) for a single
// reliable, ordered connection. The owning connection must call
// UpdatePosition whenever it hands bytes to the transport, SentProbe when
// it places a round-trip probe on the stream, and GotProbeAck when the
// matching response arrives, all from one goroutine (or under external
// locking). Queries never mutate state and never block.
type Controller struct {
	config       Config
	clock        internal.Clock
	log          logging.LeveledLogger
	onAdjustment AdjustmentCallback

	// lastPosition is the outgoing byte counter, a ring counter that
	// wraps modulo 2^32.
	lastPosition uint32

	// extraBuffer estimates bytes sitting in output buffers beyond the
	// bandwidth-delay product. Never negative.
	extraBuffer int64

	// baseRTT is the lowest round-trip time ever seen, the proxy for
	// wire latency absent queuing.
	baseRTT rttMillis

	// window is the congestion window in bytes, always within the
	// configured bounds.
	window int64

	// samples counts RTT measurements since the last adjustment;
	// minRTT and minCongestedRTT are minima over that sample window.
	samples         int
	minRTT          rttMillis
	minCongestedRTT rttMillis

	lastUpdate     time.Time
	lastSent       time.Time
	lastAdjustment time.Time

	// lastAck is the most recently answered probe, kept as the anchor
	// for interpolating how far the remote side has read.
	lastAck        probeSample
	lastAckArrival time.Time

	pending probeQueue
}

// NewController creates a Controller for one connection. Zero fields in
// config are replaced with defaults. A nil clock selects the system
// monotonic clock; tests inject internal.MockClock instead.
func NewController(config Config, clock internal.Clock) *Controller {
	config = config.withDefaults()
	if clock == nil {
		clock = internal.SystemClock{}
	}

	now := clock.Now()
	return &Controller{
		config:         config,
		clock:          clock,
		log:            config.LoggerFactory.NewLogger("congestion"),
		window:         config.InitialWindow,
		lastUpdate:     now,
		lastSent:       now,
		lastAdjustment: now,
		lastAckArrival: now,
	}
}

// SetCallback registers a callback invoked after each window adjustment.
// Pass nil to disable.
func (c *Controller) SetCallback(cb AdjustmentCallback) {
	c.onAdjustment = cb
}

// Window returns the current congestion window in bytes. The sender should
// keep its in-flight estimate below this budget.
func (c *Controller) Window() int64 {
	return c.window
}

// UpdatePosition must be called whenever bytes are handed to the
// transport, with the new value of the outgoing byte counter. The counter
// wraps modulo 2^32; individual steps must stay below half that range.
func (c *Controller) UpdatePosition(pos uint32) {
	now := c.clock.Now()

	delta := pos - c.lastPosition
	if delta > 0 || c.extraBuffer > 0 {
		c.lastSent = now
	}

	// Idle for too long? A very crude RTO stand-in keeps this simple;
	// stale measurements are worse than starting over small.
	idleLimit := c.config.IdleTimeoutFloor
	if c.baseRTT.known && 2*c.baseRTT.duration() > idleLimit {
		idleLimit = 2 * c.baseRTT.duration()
	}
	if now.Sub(c.lastSent) > idleLimit {
		c.log.Debugf("connection idle for %v, resetting congestion control", now.Sub(c.lastSent))

		// Close the window and redo the wire latency measurement.
		if c.window > c.config.InitialWindow {
			c.window = c.config.InitialWindow
		}
		c.baseRTT.reset()
		c.samples = 0
		c.lastAdjustment = now
		c.minRTT.reset()
		c.minCongestedRTT.reset()
	}

	// Commonly the sender overruns the window and bytes pile up in
	// output buffers. Track that excess so its delay can be separated
	// from delay caused by a wrong window. Requires an RTT measurement.
	if c.baseRTT.known {
		c.extraBuffer += int64(delta)
		consumed := msBetween(c.lastUpdate, now) * c.window / c.baseRTT.ms
		c.extraBuffer -= consumed
		if c.extraBuffer < 0 {
			c.extraBuffer = 0
		}
	}

	c.lastPosition = pos
	c.lastUpdate = now
}

// SentProbe must be called when a round-trip probe is placed on the
// outgoing stream, immediately before transmission. Responses are matched
// to probes strictly in order.
func (c *Controller) SentProbe() {
	c.pending.push(probeSample{
		sentAt:    c.clock.Now(),
		position:  c.lastPosition,
		extra:     c.ExtraBuffer(),
		congested: c.IsCongested(),
	})
}

// PendingProbes returns the number of probes still awaiting a response.
// The queue is unbounded; a caller probing a peer that has gone quiet
// should stop before the queue grows without limit.
func (c *Controller) PendingProbes() int {
	return c.pending.len()
}

// GotProbeAck must be called when the response to a probe arrives. A
// response with no pending probe is ignored as spurious.
func (c *Controller) GotProbeAck() {
	sample, ok := c.pending.pop()
	if !ok {
		return
	}

	now := c.clock.Now()
	c.lastAck = sample
	c.lastAckArrival = now

	rtt := msBetween(sample.sentAt, now)
	if rtt < 1 {
		rtt = 1
	}

	// Track the lowest seen latency as the wire latency estimate.
	c.baseRTT.lower(rtt)

	// Probes sent before the last adjustment measured the previous
	// window, not the current one.
	if sample.sentAt.Before(c.lastAdjustment) {
		return
	}

	// Deduct the delay the probe's own buffered bytes added (see
	// UpdatePosition), leaving the delay caused by the window itself.
	delay := sample.extra * c.baseRTT.ms / c.window
	if delay < rtt {
		rtt -= delay
	} else {
		rtt = 1
	}

	// A latency below the wire floor means the buffering estimate was
	// too high. How much is unknowable, so assume no buffer latency.
	if rtt < c.baseRTT.ms {
		rtt = c.baseRTT.ms
	}

	// Track minima to hopefully ignore jitter. All samples feed minRTT:
	// being delay based rather than loss based means uncongested probes
	// still reveal growing queues before the application ever exceeds
	// the window.
	c.minRTT.lower(rtt)
	if sample.congested {
		c.minCongestedRTT.lower(rtt)
	}

	c.samples++
	c.adjustWindow(now)
}

// Window adjustment thresholds, in milliseconds of delay above the wire
// latency floor, and the additive step size in bytes.
const (
	rttFarTooLarge = 100
	rttTooLarge    = 50
	rttFarTooSmall = 5
	rttTooSmall    = 25

	windowStep = 4096
)

// adjustWindow nudges the congestion window once enough samples have
// accumulated. The goal is a slightly too large window, since a perfect
// window cannot be distinguished from a too small one: erring large costs
// a little latency, erring small costs throughput.
func (c *Controller) adjustWindow(now time.Time) {
	if c.samples < c.config.SamplesPerAdjustment {
		return
	}

	// GotProbeAck clamps every sample to the floor, so a minimum below
	// it indicates a defect in the estimation logic, not bad input.
	if c.minRTT.ms < c.baseRTT.ms ||
		(c.minCongestedRTT.known && c.minCongestedRTT.ms < c.baseRTT.ms) {
		c.log.Errorf("RTT minimum below wire latency floor (min %d ms, congested min %d ms, base %d ms)",
			c.minRTT.ms, c.minCongestedRTT.ms, c.baseRTT.ms)
	}

	// First check all samples for signs the window is too large.
	diff := c.minRTT.ms - c.baseRTT.ms

	switch {
	case diff > rttFarTooLarge:
		// Way too fast
		c.window = c.window * c.baseRTT.ms / c.minRTT.ms
	case diff > rttTooLarge:
		// Slightly too fast
		c.window -= windowStep
	default:
		// Only the congested samples can show that the window is
		// too small; an uncongested probe never waited on it.
		if c.minCongestedRTT.known {
			diff = c.minCongestedRTT.ms - c.baseRTT.ms
			if diff < rttFarTooSmall {
				// Way too slow
				c.window += 2 * windowStep
			} else if diff < rttTooSmall {
				// Too slow
				c.window += windowStep
			}
		}
	}

	if c.window < c.config.MinimumWindow {
		c.window = c.config.MinimumWindow
	}
	if c.window > c.config.MaximumWindow {
		c.window = c.config.MaximumWindow
	}

	snapshot := Snapshot{
		BaseRTT:   c.baseRTT.duration(),
		MinRTT:    c.minRTT.duration(),
		Window:    c.window,
		Bandwidth: float64(c.window) * 8 * 1000 / float64(c.baseRTT.ms),
	}

	c.samples = 0
	c.lastAdjustment = now
	c.minRTT.reset()
	c.minCongestedRTT.reset()

	c.log.Debugf("RTT: %d ms (%d ms), window: %d KiB, bandwidth: %g Mbps",
		snapshot.MinRTT.Milliseconds(), snapshot.BaseRTT.Milliseconds(),
		snapshot.Window/1024, snapshot.Bandwidth/1e6)

	if c.onAdjustment != nil {
		c.onAdjustment(snapshot)
	}
}
