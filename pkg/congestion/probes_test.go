package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeQueue_FIFO(t *testing.T) {
	var q probeQueue

	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		q.push(probeSample{
			sentAt:   base.Add(time.Duration(i) * time.Millisecond),
			position: uint32(i * 1000),
		})
	}
	assert.Equal(t, 3, q.len())

	front, ok := q.front()
	require.True(t, ok)
	assert.Equal(t, uint32(0), front.position, "front must not dequeue")
	assert.Equal(t, 3, q.len())

	for i := 0; i < 3; i++ {
		s, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, uint32(i*1000), s.position, "responses match probes in send order")
	}
	assert.Equal(t, 0, q.len())
}

func TestProbeQueue_Empty(t *testing.T) {
	var q probeQueue

	_, ok := q.pop()
	assert.False(t, ok)

	_, ok = q.front()
	assert.False(t, ok)
}
