// Package protocol defines the control-channel wire contract between
// meeting peers. Every message is an Envelope whose payload decodes into
// one of the typed payload structs below.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"peermeet/internal/core/domain"
)

type MessageType string

const (
	TypeJoinRequest    MessageType = "join-request"
	TypeAdmitted       MessageType = "admitted"
	TypeRejected       MessageType = "rejected"
	TypeKicked         MessageType = "kicked"
	TypeChat           MessageType = "chat"
	TypePresenceUpdate MessageType = "presence-update"
	TypeForceState     MessageType = "force-state"
	TypeMemberJoined   MessageType = "member-joined"
	TypeMemberLeft     MessageType = "member-left"
	TypeRoster         MessageType = "roster"
)

type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRequestPayload struct {
	PeerID        domain.PeerID `json:"peer_id"`
	DisplayName   string        `json:"display_name"`
	OriginAddress string        `json:"origin_address,omitempty"`
}

// AdmittedPayload carries the host's display name plus the roster of
// already-admitted peers, so a newly admitted participant can label the host
// and place mesh calls when mesh mode is on.
type AdmittedPayload struct {
	HostName string          `json:"host_name,omitempty"`
	Roster   []domain.PeerID `json:"roster"`
}

type ChatPayload struct {
	SenderID   domain.PeerID `json:"sender_id"`
	SenderName string        `json:"sender_name"`
	Text       string        `json:"text"`
	SentAt     time.Time     `json:"sent_at"`
}

type PresenceUpdatePayload struct {
	PeerID  domain.PeerID    `json:"peer_id"`
	Kind    domain.MediaKind `json:"kind"`
	Enabled bool             `json:"enabled"`
}

type ForceStatePayload struct {
	Kind    domain.MediaKind `json:"kind"`
	Enabled bool             `json:"enabled"`
}

type MemberPayload struct {
	PeerID      domain.PeerID `json:"peer_id"`
	DisplayName string        `json:"display_name,omitempty"`
}

// RosterPayload is the periodic roster rebroadcast used in mesh mode.
type RosterPayload struct {
	Peers []domain.PeerID `json:"peers"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
// A nil payload produces an envelope with no payload (rejected, kicked).
func NewEnvelope(t MessageType, payload interface{}) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

// MustEnvelope is NewEnvelope for payload structs that cannot fail to
// marshal. Used for the fixed message types the services emit.
func MustEnvelope(t MessageType, payload interface{}) Envelope {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// DecodePayload unmarshals the envelope payload into out.
func DecodePayload(env Envelope, out interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
