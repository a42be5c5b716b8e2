package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(16384), cfg.InitialWindow)
	assert.Equal(t, int64(4096), cfg.MinimumWindow)
	assert.Equal(t, int64(4194304), cfg.MaximumWindow)
	assert.Equal(t, 3, cfg.SamplesPerAdjustment)
	assert.Equal(t, 100*time.Millisecond, cfg.IdleTimeoutFloor)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultConfig().InitialWindow, cfg.InitialWindow)
	assert.NotNil(t, cfg.LoggerFactory)
}

func TestConfig_InitialWindowClampedToBounds(t *testing.T) {
	cfg := Config{MaximumWindow: 8192}.withDefaults()
	assert.Equal(t, int64(8192), cfg.InitialWindow,
		"default initial window must not exceed a smaller maximum")

	cfg = Config{MinimumWindow: 32768}.withDefaults()
	assert.Equal(t, int64(32768), cfg.InitialWindow,
		"default initial window must not undercut a larger minimum")
}
