package domain

import "time"

type ParticipantStatus string

const (
	StatusWaiting  ParticipantStatus = "waiting"
	StatusAdmitted ParticipantStatus = "admitted"
	StatusRejected ParticipantStatus = "rejected"
	StatusKicked   ParticipantStatus = "kicked"
	StatusLeft     ParticipantStatus = "left"
)

// WaitingEntry holds what is known about a peer before the admission
// decision. It is promoted to a ParticipantRecord on admit and discarded on
// reject.
type WaitingEntry struct {
	PeerID        PeerID    `json:"peer_id"`
	DisplayName   string    `json:"display_name"`
	OriginAddress string    `json:"origin_address,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// ParticipantRecord is one remote peer the local client knows about.
// Connection handles live alongside it in the membership store, not here.
type ParticipantRecord struct {
	PeerID        PeerID            `json:"peer_id"`
	DisplayName   string            `json:"display_name"`
	OriginAddress string            `json:"origin_address,omitempty"`
	Status        ParticipantStatus `json:"status"`
	Media         MediaState        `json:"media"`
	JoinedAt      time.Time         `json:"joined_at"`
}
