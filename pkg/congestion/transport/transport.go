// Package transport hooks the congestion controller into concrete
// byte-stream transports. A Meter wraps any reliable, ordered stream
// (TCP, WebSocket, WebRTC data channel) and keeps the controller's byte
// position and probe bookkeeping in sync with the connection's I/O, so the
// protocol layer only has to decide when to probe and what a probe message
// looks like on the wire.
package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/vncflow/vncflow/pkg/congestion"
	"github.com/vncflow/vncflow/pkg/congestion/internal"
)

// defaultProbeInterval is the minimum spacing between probes. Probing much
// faster than the path round-trip only adds queue entries, not information.
const defaultProbeInterval = 100 * time.Millisecond

// Stream is a reliable, ordered byte stream. The transport must never drop
// or reorder bytes; everything here assumes queuing is the only failure
// mode.
type Stream interface {
	io.ReadWriteCloser
}

// Meter wraps a Stream and drives a congestion.Controller from its write
// path. Like the controller itself, a Meter is bound to one connection and
// one goroutine (or external locking).
type Meter struct {
	stream Stream
	ctrl   *congestion.Controller
	log    logging.LeveledLogger
	clock  internal.Clock

	probeInterval time.Duration
	lastProbe     time.Time

	// position is the outgoing byte counter fed to the controller.
	// It wraps modulo 2^32.
	position uint32
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithProbeInterval sets the minimum spacing between probes sent through
// MaybeSendProbe. Default is 100ms.
func WithProbeInterval(d time.Duration) MeterOption {
	return func(m *Meter) {
		if d > 0 {
			m.probeInterval = d
		}
	}
}

// WithLoggerFactory sets the logger factory for the meter's own logging.
func WithLoggerFactory(f logging.LoggerFactory) MeterOption {
	return func(m *Meter) {
		if f != nil {
			m.log = f.NewLogger("congestion-meter")
		}
	}
}

// WithClock injects the meter's time source. Tests use internal.MockClock;
// the default is the system monotonic clock.
func WithClock(clock internal.Clock) MeterOption {
	return func(m *Meter) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMeter wraps stream and keeps ctrl in sync with the bytes written
// through the returned Meter. The caller keeps ownership of both; probe
// responses must still be routed to ProbeAcked by the protocol layer.
func NewMeter(stream Stream, ctrl *congestion.Controller, opts ...MeterOption) *Meter {
	m := &Meter{
		stream:        stream,
		ctrl:          ctrl,
		log:           logging.NewDefaultLoggerFactory().NewLogger("congestion-meter"),
		clock:         internal.SystemClock{},
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Write hands p to the underlying stream and advances the controller's
// byte position by however much was accepted.
func (m *Meter) Write(p []byte) (int, error) {
	n, err := m.stream.Write(p)
	if n > 0 {
		m.position += uint32(n)
		m.ctrl.UpdatePosition(m.position)
	}
	if err != nil {
		return n, fmt.Errorf("stream write: %w", err)
	}
	return n, nil
}

// Read passes through to the underlying stream.
func (m *Meter) Read(p []byte) (int, error) {
	return m.stream.Read(p)
}

// Close closes the underlying stream.
func (m *Meter) Close() error {
	return m.stream.Close()
}

// MaybeSendProbe sends a round-trip probe if one is due, using writeProbe
// to put the protocol's probe message on the wire. writeProbe should write
// through the Meter so the probe bytes are counted like any others.
// Returns whether a probe was sent.
func (m *Meter) MaybeSendProbe(writeProbe func() error) (bool, error) {
	now := m.clock.Now()
	if !m.lastProbe.IsZero() && now.Sub(m.lastProbe) < m.probeInterval {
		return false, nil
	}

	if err := writeProbe(); err != nil {
		return false, fmt.Errorf("write probe: %w", err)
	}

	m.ctrl.SentProbe()
	m.lastProbe = now
	m.log.Tracef("probe sent at position %d (%d pending)", m.position, m.ctrl.PendingProbes())
	return true, nil
}

// ProbeAcked must be called when the protocol layer receives the response
// to a probe.
func (m *Meter) ProbeAcked() {
	m.ctrl.GotProbeAck()
}

// Budget returns how many more bytes can be written before the connection
// is considered congested. Zero means hold off.
func (m *Meter) Budget() int64 {
	window := m.ctrl.Window()
	inFlight := m.ctrl.InFlight()
	if inFlight >= window {
		return 0
	}
	return window - inFlight
}

// Congested reports whether the connection is congested right now.
func (m *Meter) Congested() bool {
	return m.ctrl.IsCongested()
}

// UncongestedETA proxies the controller's estimate of when the congested
// state will clear.
func (m *Meter) UncongestedETA() (time.Duration, bool) {
	return m.ctrl.UncongestedETA()
}

// Controller exposes the wrapped controller for direct queries.
func (m *Meter) Controller() *congestion.Controller {
	return m.ctrl
}
