package transport

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DataChannelAPI returns a webrtc.API with data channel detaching enabled,
// which DetachStream requires. Peer connections carrying a metered stream
// must be created through an API from this function.
func DataChannelAPI() *webrtc.API {
	settings := webrtc.SettingEngine{}
	settings.DetachDataChannels()
	return webrtc.NewAPI(webrtc.WithSettingEngine(settings))
}

// DetachStream detaches an open data channel and returns it as a Stream.
// Call it from the channel's OnOpen handler.
//
// The channel must be reliable and ordered (the data channel default):
// the probe/response matching and the position accounting both depend on
// bytes arriving exactly once and in order.
func DetachStream(dc *webrtc.DataChannel) (Stream, error) {
	if !dc.Ordered() {
		return nil, fmt.Errorf("data channel %q is unordered", dc.Label())
	}
	if dc.MaxRetransmits() != nil || dc.MaxPacketLifeTime() != nil {
		return nil, fmt.Errorf("data channel %q is not fully reliable", dc.Label())
	}

	raw, err := dc.Detach()
	if err != nil {
		return nil, fmt.Errorf("detach data channel %q: %w", dc.Label(), err)
	}
	return raw, nil
}
