package pion

import (
	"encoding/json"
	"fmt"
	"sync"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/protocol"

	"github.com/pion/webrtc/v3"
)

// controlChannel wraps a webrtc data channel as a ports.ControlChannel.
// Closing it tears down the whole peer connection it rides on; control
// channels and media calls use separate peer connections, so this never
// disturbs media.
type controlChannel struct {
	peer domain.PeerID
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	once sync.Once
}

func newControlChannel(peer domain.PeerID, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *controlChannel {
	return &controlChannel{peer: peer, pc: pc, dc: dc}
}

func (c *controlChannel) Peer() domain.PeerID { return c.peer }

// RemoteAddress reports the selected ICE candidate's address, best-effort.
func (c *controlChannel) RemoteAddress() string {
	sctp := c.pc.SCTP()
	if sctp == nil {
		return ""
	}
	transport := sctp.Transport()
	if transport == nil {
		return ""
	}
	ice := transport.ICETransport()
	if ice == nil {
		return ""
	}
	pair, err := ice.GetSelectedCandidatePair()
	if err != nil || pair == nil || pair.Remote == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", pair.Remote.Address, pair.Remote.Port)
}

func (c *controlChannel) Send(env protocol.Envelope) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrChannelClosed
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	if err := c.dc.Send(raw); err != nil {
		return fmt.Errorf("send control message: %w", err)
	}
	return nil
}

func (c *controlChannel) Close() error {
	var err error
	c.once.Do(func() {
		err = c.pc.Close()
	})
	return err
}
