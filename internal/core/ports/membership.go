package ports

import "peermeet/internal/core/domain"

// Participant pairs a participant's record with its transport handles.
// A record has at most one live control channel and at most one live media
// call; teardown of either goes through the owning service, never the store.
type Participant struct {
	Record  domain.ParticipantRecord
	Control ControlChannel
	Call    MediaCall
}

// MembershipStore is the single source of truth for who is waiting,
// admitted, or gone. It owns the records; callers are responsible for
// closing transport handles around Remove.
type MembershipStore interface {
	// AddWaiting records a join request. Idempotent: a peer id already
	// waiting is left untouched.
	AddWaiting(entry domain.WaitingEntry, control ControlChannel)
	// Promote moves a waiting entry to an admitted participant.
	// Returns domain.ErrNotWaiting if the peer is not waiting.
	Promote(id domain.PeerID) (*Participant, error)
	// Remove deletes the record, waiting or admitted, tagging it with the
	// given terminal status. Returns the removed participant so the caller
	// can close its handles; idempotent no-op after the first call.
	Remove(id domain.PeerID, reason domain.ParticipantStatus) (*Participant, bool)

	Get(id domain.PeerID) (*Participant, bool)
	GetWaiting(id domain.PeerID) (domain.WaitingEntry, ControlChannel, bool)
	// ListAdmitted returns admitted participants in insertion order. The
	// returned Participants are live: only the session loop may read their
	// records.
	ListAdmitted() []*Participant
	ListWaiting() []domain.WaitingEntry
	// Snapshot returns value copies of the admitted records in insertion
	// order, safe to read from any goroutine.
	Snapshot() []domain.ParticipantRecord

	// AttachCall binds the media call for an admitted peer.
	AttachCall(id domain.PeerID, call MediaCall) error
	// DetachCall clears the media call reference, returning the old handle.
	DetachCall(id domain.PeerID) (MediaCall, bool)
	// SetMediaState updates the peer's self-reported track enablement.
	SetMediaState(id domain.PeerID, kind domain.MediaKind, enabled bool) error
}
