package ports

import "peermeet/internal/core/domain"

// Notifier is the binding point for a presentation layer (the local UI).
// The core calls it on every externally visible change; implementations
// must not block and must not call back into the session synchronously.
type Notifier interface {
	ChatReceived(msg domain.ChatMessage)
	WaitingChanged(entries []domain.WaitingEntry)
	RosterChanged(records []domain.ParticipantRecord)
	PresenceChanged(peer domain.PeerID, kind domain.MediaKind, enabled bool)
	LocalMediaChanged(state domain.LocalMediaState)
	StreamOpened(peer domain.PeerID)
	StreamClosed(peer domain.PeerID)
	// AdmissionResolved fires on the participant side when the host decides.
	AdmissionResolved(admitted bool)
	SessionEnded(reason string)
}

// NopNotifier discards every event; useful as a default and in tests.
type NopNotifier struct{}

func (NopNotifier) ChatReceived(domain.ChatMessage)                         {}
func (NopNotifier) WaitingChanged([]domain.WaitingEntry)                    {}
func (NopNotifier) RosterChanged([]domain.ParticipantRecord)                {}
func (NopNotifier) PresenceChanged(domain.PeerID, domain.MediaKind, bool)   {}
func (NopNotifier) LocalMediaChanged(domain.LocalMediaState)                {}
func (NopNotifier) StreamOpened(domain.PeerID)                              {}
func (NopNotifier) StreamClosed(domain.PeerID)                              {}
func (NopNotifier) AdmissionResolved(bool)                                  {}
func (NopNotifier) SessionEnded(string)                                     {}
