package services

import (
	"context"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/protocol"
)

// The methods below are the session's command surface. Each one runs on the
// session loop via Do, so callers on any goroutine observe consistent state.

func (s *Session) Admit(ctx context.Context, id domain.PeerID) error {
	return s.hostDo(ctx, func() error { return s.admission.Admit(id) })
}

func (s *Session) Reject(ctx context.Context, id domain.PeerID) error {
	return s.hostDo(ctx, func() error { return s.admission.Reject(id) })
}

func (s *Session) Kick(ctx context.Context, id domain.PeerID) error {
	return s.hostDo(ctx, func() error { return s.admission.Kick(id) })
}

// ForceState imposes a media state on a remote participant. The target must
// honor it unconditionally and echo it back as a presence update.
func (s *Session) ForceState(ctx context.Context, id domain.PeerID, kind domain.MediaKind, enabled bool) error {
	if !kind.Valid() {
		return domain.ErrMediaUnavailable
	}
	return s.hostDo(ctx, func() error {
		if _, ok := s.store.Get(id); !ok {
			return domain.ErrNotAdmitted
		}
		env := protocol.MustEnvelope(protocol.TypeForceState, protocol.ForceStatePayload{
			Kind:    kind,
			Enabled: enabled,
		})
		return s.relay.Send(env, id)
	})
}

func (s *Session) SetLocked(ctx context.Context, locked bool) error {
	return s.hostDo(ctx, func() error {
		s.policy.Locked = locked
		s.logger.Infow("meeting lock changed", "locked", locked)
		return nil
	})
}

func (s *Session) SendChat(ctx context.Context, text string) error {
	return s.Do(ctx, func() error {
		msg := domain.ChatMessage{
			SenderID:   s.info.SelfID,
			SenderName: s.info.DisplayName,
			Text:       text,
			SentAt:     time.Now(),
		}
		env := protocol.MustEnvelope(protocol.TypeChat, protocol.ChatPayload{
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Text:       msg.Text,
			SentAt:     msg.SentAt,
		})
		if s.info.IsHost() {
			s.relay.Broadcast(env, s.info.SelfID)
		} else if err := s.relay.SendToHost(env); err != nil {
			return err
		}
		s.metrics.ChatMessage()
		s.notifier.ChatReceived(msg)
		return nil
	})
}

func (s *Session) SetAudioEnabled(ctx context.Context, enabled bool) error {
	return s.Do(ctx, func() error {
		s.media.SetAudioEnabled(enabled)
		s.presence.AnnounceStateChange(s.info.SelfID, domain.MediaAudio, enabled)
		return nil
	})
}

func (s *Session) SetVideoEnabled(ctx context.Context, enabled bool) error {
	return s.Do(ctx, func() error {
		s.media.SetVideoEnabled(enabled)
		s.presence.AnnounceStateChange(s.info.SelfID, domain.MediaVideo, enabled)
		return nil
	})
}

func (s *Session) SetScreenSharing(ctx context.Context, enabled bool) error {
	return s.Do(ctx, func() error {
		if enabled {
			return s.media.StartScreenShare()
		}
		s.media.StopScreenShare()
		return nil
	})
}

func (s *Session) Leave(ctx context.Context) error {
	return s.Do(ctx, func() error {
		s.shutdown("left meeting")
		return nil
	})
}

// --- read queries ---

// Waiting and Roster read the store directly: it is internally synchronized
// and these views only need to be eventually consistent with the loop.

func (s *Session) Waiting() []domain.WaitingEntry {
	return s.store.ListWaiting()
}

func (s *Session) Roster() []domain.ParticipantRecord {
	return s.store.Snapshot()
}

func (s *Session) Policy(ctx context.Context) (domain.MeetingPolicy, error) {
	var p domain.MeetingPolicy
	err := s.Do(ctx, func() error {
		p = s.policy
		return nil
	})
	return p, err
}

func (s *Session) LocalMedia(ctx context.Context) (domain.LocalMediaState, error) {
	var state domain.LocalMediaState
	err := s.Do(ctx, func() error {
		state = s.media.LocalState()
		return nil
	})
	return state, err
}

// IsAdmitted reports whether the local participant has cleared the waiting
// room. Always true for the host.
func (s *Session) IsAdmitted(ctx context.Context) (bool, error) {
	var admitted bool
	err := s.Do(ctx, func() error {
		admitted = s.admitted
		return nil
	})
	return admitted, err
}

func (s *Session) hostDo(ctx context.Context, fn func() error) error {
	if !s.info.IsHost() {
		return domain.ErrNotHost
	}
	return s.Do(ctx, fn)
}
