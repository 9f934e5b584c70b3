package ports

import (
	"peermeet/internal/core/domain"
	"peermeet/internal/core/protocol"
)

// AdmissionService arbitrates join requests against meeting policy.
// All operations are host-only; a participant-role session never constructs
// one.
type AdmissionService interface {
	// OnJoinRequest records a waiting entry or rejects it, depending on
	// policy. Requests queue in arrival order.
	OnJoinRequest(req protocol.JoinRequestPayload, control ControlChannel)
	Admit(id domain.PeerID) error
	Reject(id domain.PeerID) error
	Kick(id domain.PeerID) error
	// CurrentDecision returns the oldest unresolved waiting entry.
	CurrentDecision() (domain.WaitingEntry, bool)
}

// RelayService maintains the star topology: on the host it fans messages
// out to admitted participants, on a participant it forwards to the host.
type RelayService interface {
	Send(env protocol.Envelope, to domain.PeerID) error
	// Broadcast delivers env to every admitted participant except exclude,
	// in admission order, and returns the delivery count. An empty exclude
	// broadcasts to everyone.
	Broadcast(env protocol.Envelope, exclude domain.PeerID) int
	// SendToHost forwards env over the participant's host channel.
	SendToHost(env protocol.Envelope) error
	// SetHostChannel installs the participant-side channel to the host.
	SetHostChannel(ch ControlChannel)
}

// MediaService pairs peers with media calls and owns the local capture
// state. It captures its working context in Start.
type MediaService interface {
	// Start acquires the local camera source. Acquisition failure is
	// logged and the session continues without outbound media.
	Start()
	// EstablishCall places an outbound call to peer. A call already
	// established or in flight makes this a no-op.
	EstablishCall(peer domain.PeerID)
	AnswerIncoming(call IncomingCall)
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	StartScreenShare() error
	StopScreenShare()
	LocalState() domain.LocalMediaState
	// ClosePeer closes and forgets the call to peer, if any. Safe to call
	// for peers with no call and after transport-initiated closure.
	ClosePeer(peer domain.PeerID)
	// CloseAll tears down every call and the local sources. Idempotent.
	CloseAll()
}

// PresenceService keeps every client's roster and media-state view
// converged via the relay.
type PresenceService interface {
	AnnounceJoin(peer domain.PeerID, displayName string)
	AnnounceLeave(peer domain.PeerID)
	// AnnounceStateChange propagates a media-state change originating at
	// origin, excluding it from the rebroadcast.
	AnnounceStateChange(origin domain.PeerID, kind domain.MediaKind, enabled bool)
}
