package services

import (
	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"

	"go.uber.org/zap"
)

// presenceSync converges every client's roster and media-state view.
// On the host it rebroadcasts through the relay; on a participant it only
// reports the local client's own changes upward.
type presenceSync struct {
	info     domain.SessionInfo
	store    ports.MembershipStore
	relay    ports.RelayService
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func NewPresenceSync(
	info domain.SessionInfo,
	store ports.MembershipStore,
	relay ports.RelayService,
	notifier ports.Notifier,
	logger *zap.SugaredLogger,
) ports.PresenceService {
	return &presenceSync{
		info:     info,
		store:    store,
		relay:    relay,
		notifier: notifier,
		logger:   logger,
	}
}

func (p *presenceSync) AnnounceJoin(peer domain.PeerID, displayName string) {
	if !p.info.IsHost() {
		return
	}
	env := protocol.MustEnvelope(protocol.TypeMemberJoined, protocol.MemberPayload{
		PeerID:      peer,
		DisplayName: displayName,
	})
	p.relay.Broadcast(env, peer)
}

func (p *presenceSync) AnnounceLeave(peer domain.PeerID) {
	if !p.info.IsHost() {
		return
	}
	env := protocol.MustEnvelope(protocol.TypeMemberLeft, protocol.MemberPayload{PeerID: peer})
	p.relay.Broadcast(env, peer)
}

func (p *presenceSync) AnnounceStateChange(origin domain.PeerID, kind domain.MediaKind, enabled bool) {
	env := protocol.MustEnvelope(protocol.TypePresenceUpdate, protocol.PresenceUpdatePayload{
		PeerID:  origin,
		Kind:    kind,
		Enabled: enabled,
	})

	if !p.info.IsHost() {
		// Participants report upward; the host rebroadcasts.
		if err := p.relay.SendToHost(env); err != nil {
			p.logger.Warnw("failed to report presence change", "kind", kind, "error", err)
		}
		return
	}

	if origin != p.info.SelfID {
		if err := p.store.SetMediaState(origin, kind, enabled); err != nil {
			p.logger.Warnw("presence update for unknown peer", "peer", origin, "error", err)
			return
		}
	}
	p.relay.Broadcast(env, origin)
	p.notifier.PresenceChanged(origin, kind, enabled)
}
