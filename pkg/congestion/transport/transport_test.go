package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncflow/vncflow/pkg/congestion"
	"github.com/vncflow/vncflow/pkg/congestion/internal"
)

// fakeStream is an in-memory Stream for meter tests.
type fakeStream struct {
	bytes.Buffer
	closed bool
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// brokenStream fails every write.
type brokenStream struct {
	fakeStream
}

func (b *brokenStream) Write(p []byte) (int, error) {
	return 0, errors.New("pipe is broken")
}

func newTestMeter(stream Stream) (*Meter, *congestion.Controller, *internal.MockClock) {
	clock := internal.NewMockClock(time.Time{})
	ctrl := congestion.NewController(congestion.DefaultConfig(), clock)
	return NewMeter(stream, ctrl, WithClock(clock)), ctrl, clock
}

func TestMeter_WriteAdvancesController(t *testing.T) {
	stream := &fakeStream{}
	m, ctrl, _ := newTestMeter(stream)

	_, err := m.Write(make([]byte, 5000))
	require.NoError(t, err)

	sent, err := m.MaybeSendProbe(func() error { return nil })
	require.NoError(t, err)
	require.True(t, sent)

	_, err = m.Write(make([]byte, 3000))
	require.NoError(t, err)

	assert.Equal(t, 8000, stream.Len(), "all bytes reach the stream")
	assert.Equal(t, int64(3000), ctrl.InFlight(),
		"bytes written after the pending probe count as in flight")
}

func TestMeter_Budget(t *testing.T) {
	m, ctrl, _ := newTestMeter(&fakeStream{})

	assert.Equal(t, ctrl.Window(), m.Budget(), "everything available at start")
	assert.False(t, m.Congested())

	_, err := m.Write(make([]byte, 5000))
	require.NoError(t, err)
	_, err = m.MaybeSendProbe(func() error { return nil })
	require.NoError(t, err)
	_, err = m.Write(make([]byte, 3000))
	require.NoError(t, err)

	assert.Equal(t, ctrl.Window()-3000, m.Budget())

	m.ProbeAcked()
	assert.Equal(t, ctrl.Window(), m.Budget(), "answered probe clears the estimate")
}

func TestMeter_ProbeRateLimit(t *testing.T) {
	m, ctrl, clock := newTestMeter(&fakeStream{})

	probe := func() error { return nil }

	sent, err := m.MaybeSendProbe(probe)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = m.MaybeSendProbe(probe)
	require.NoError(t, err)
	assert.False(t, sent, "second probe within the interval is suppressed")
	assert.Equal(t, 1, ctrl.PendingProbes())

	clock.Advance(100 * time.Millisecond)
	sent, err = m.MaybeSendProbe(probe)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 2, ctrl.PendingProbes())
}

func TestMeter_CustomProbeInterval(t *testing.T) {
	clock := internal.NewMockClock(time.Time{})
	ctrl := congestion.NewController(congestion.DefaultConfig(), clock)
	m := NewMeter(&fakeStream{}, ctrl,
		WithClock(clock), WithProbeInterval(10*time.Millisecond))

	probe := func() error { return nil }

	sent, _ := m.MaybeSendProbe(probe)
	assert.True(t, sent)

	clock.Advance(10 * time.Millisecond)
	sent, _ = m.MaybeSendProbe(probe)
	assert.True(t, sent)
}

func TestMeter_ProbeWriteFailure(t *testing.T) {
	m, ctrl, _ := newTestMeter(&fakeStream{})

	sent, err := m.MaybeSendProbe(func() error { return errors.New("boom") })
	assert.False(t, sent)
	assert.ErrorContains(t, err, "write probe")
	assert.Equal(t, 0, ctrl.PendingProbes(),
		"a probe that never hit the wire must not await a response")
}

func TestMeter_WriteFailure(t *testing.T) {
	m, ctrl, _ := newTestMeter(&brokenStream{})

	n, err := m.Write([]byte("data"))
	assert.Zero(t, n)
	assert.ErrorContains(t, err, "stream write")
	assert.Equal(t, int64(0), ctrl.InFlight())
}

func TestMeter_Close(t *testing.T) {
	stream := &fakeStream{}
	m, _, _ := newTestMeter(stream)

	require.NoError(t, m.Close())
	assert.True(t, stream.closed)
}
