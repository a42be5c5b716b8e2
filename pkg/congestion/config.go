package congestion

import (
	"time"

	"github.com/pion/logging"
)

// Window sizing defaults. The initial window gets a session going fairly
// fast on a decent network; if it is too high it will rapidly be reduced
// and stay low. The minimum mirrors TCP's 3*MSS floor with a guessed MSS,
// and the maximum matches a common kernel default for socket buffers.
const (
	defaultInitialWindow = 16384
	defaultMinimumWindow = 4096
	defaultMaximumWindow = 4194304
)

// defaultIdleTimeoutFloor is the smallest idle interval that resets the
// controller, used verbatim while no RTT measurement exists yet.
const defaultIdleTimeoutFloor = 100 * time.Millisecond

// defaultSamplesPerAdjustment is how many RTT samples must accumulate
// before the window is adjusted. Fewer than three is too noisy.
const defaultSamplesPerAdjustment = 3

// Config holds the tunable parameters of a Controller.
type Config struct {
	// InitialWindow is the congestion window in bytes at start of
	// session and after an idle reset. Default: 16 KiB.
	InitialWindow int64

	// MinimumWindow is the lower clamp for the congestion window in
	// bytes. Default: 4 KiB.
	MinimumWindow int64

	// MaximumWindow is the upper clamp for the congestion window in
	// bytes. Default: 4 MiB.
	MaximumWindow int64

	// SamplesPerAdjustment is the number of probe RTT samples required
	// before each window adjustment. Default: 3.
	SamplesPerAdjustment int

	// IdleTimeoutFloor is the minimum idle interval that triggers a
	// reset of the window and latency measurements. The effective
	// threshold is max(2*baseRTT, IdleTimeoutFloor). Default: 100ms.
	IdleTimeoutFloor time.Duration

	// LoggerFactory creates the controller's logger. Defaults to
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns a configuration with all fields set to their
// defaults, suitable for typical RFB sessions.
func DefaultConfig() Config {
	return Config{
		InitialWindow:        defaultInitialWindow,
		MinimumWindow:        defaultMinimumWindow,
		MaximumWindow:        defaultMaximumWindow,
		SamplesPerAdjustment: defaultSamplesPerAdjustment,
		IdleTimeoutFloor:     defaultIdleTimeoutFloor,
	}
}

// withDefaults fills in zero values, so a partially populated Config is
// usable.
func (c Config) withDefaults() Config {
	if c.InitialWindow <= 0 {
		c.InitialWindow = defaultInitialWindow
	}
	if c.MinimumWindow <= 0 {
		c.MinimumWindow = defaultMinimumWindow
	}
	if c.MaximumWindow <= 0 {
		c.MaximumWindow = defaultMaximumWindow
	}
	if c.SamplesPerAdjustment <= 0 {
		c.SamplesPerAdjustment = defaultSamplesPerAdjustment
	}
	if c.IdleTimeoutFloor <= 0 {
		c.IdleTimeoutFloor = defaultIdleTimeoutFloor
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	// The window must stay within bounds at all times, including at
	// session start.
	if c.InitialWindow < c.MinimumWindow {
		c.InitialWindow = c.MinimumWindow
	}
	if c.InitialWindow > c.MaximumWindow {
		c.InitialWindow = c.MaximumWindow
	}
	return c
}
