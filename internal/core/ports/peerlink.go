package ports

import (
	"context"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/protocol"
)

// ControlChannel is a reliable message channel to one remote peer, carrying
// the protocol schema. The PeerLink owns the underlying connection; holders
// only send on it and trigger closure.
type ControlChannel interface {
	Peer() domain.PeerID
	RemoteAddress() string
	Send(env protocol.Envelope) error
	Close() error
}

// MediaCall is one bidirectional audio+video link to a remote peer,
// independent of the control channel.
type MediaCall interface {
	Peer() domain.PeerID
	// SetSource substitutes the outgoing media in place (screen share
	// start/stop) without renegotiating a new call.
	SetSource(src MediaSource) error
	Close() error
}

// MediaSource produces the local outbound audio and video. Track toggles
// mute the source without stopping it.
type MediaSource interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	// SetOnEnded installs a callback fired when the source terminates on
	// its own (the OS-level "stop sharing" control).
	SetOnEnded(fn func())
	Close() error
}

// MediaDevices acquires local capture sources. Failure to acquire is a
// recoverable, local error.
type MediaDevices interface {
	OpenCamera(ctx context.Context) (MediaSource, error)
	OpenScreen(ctx context.Context) (MediaSource, error)
}

// IncomingCall is an inbound media call that can be answered with a local
// source or rejected.
type IncomingCall interface {
	Peer() domain.PeerID
	Answer(src MediaSource) (MediaCall, error)
	Reject() error
}

// LinkHandler receives PeerLink events. Implementations must be safe to
// invoke from the transport's goroutines; the session loop serializes them.
type LinkHandler interface {
	HandleChannelOpen(ch ControlChannel)
	HandleMessage(from domain.PeerID, env protocol.Envelope)
	HandleIncomingCall(call IncomingCall)
	HandleRemoteStream(peer domain.PeerID)
	HandleChannelClosed(peer domain.PeerID)
	HandleCallClosed(peer domain.PeerID)
}

// PeerLink is the opaque peer-to-peer transport: control channels, media
// calls, and the events they emit.
type PeerLink interface {
	SelfID() domain.PeerID
	SetHandler(h LinkHandler)
	// Connect opens a control channel to a peer id.
	Connect(ctx context.Context, peer domain.PeerID) (ControlChannel, error)
	// Call places a media call carrying the given local source.
	Call(ctx context.Context, peer domain.PeerID, src MediaSource) (MediaCall, error)
	Close() error
}
