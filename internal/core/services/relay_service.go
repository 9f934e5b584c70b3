package services

import (
	"fmt"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"

	"go.uber.org/zap"
)

// relayRouter implements the star topology. On the host every fan-out walks
// the admitted list in admission order, so messages from one sender are
// delivered to all recipients in the order the host handled them.
type relayRouter struct {
	info     domain.SessionInfo
	store    ports.MembershipStore
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
	hostChan ports.ControlChannel
}

func NewRelayRouter(
	info domain.SessionInfo,
	store ports.MembershipStore,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) ports.RelayService {
	return &relayRouter{
		info:    info,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (r *relayRouter) Send(env protocol.Envelope, to domain.PeerID) error {
	p, ok := r.store.Get(to)
	if !ok || p.Control == nil {
		return fmt.Errorf("send %s to %s: %w", env.Type, to, domain.ErrPeerNotFound)
	}
	if err := p.Control.Send(env); err != nil {
		return fmt.Errorf("send %s to %s: %w", env.Type, to, err)
	}
	return nil
}

func (r *relayRouter) Broadcast(env protocol.Envelope, exclude domain.PeerID) int {
	sent := 0
	for _, p := range r.store.ListAdmitted() {
		if p.Record.PeerID == exclude || p.Control == nil {
			continue
		}
		if err := p.Control.Send(env); err != nil {
			r.logger.Warnw("broadcast delivery failed",
				"type", env.Type, "peer", p.Record.PeerID, "error", err)
			continue
		}
		sent++
	}
	r.metrics.MessageRelayed(env.Type, sent)
	return sent
}

func (r *relayRouter) SendToHost(env protocol.Envelope) error {
	if r.hostChan == nil {
		return fmt.Errorf("send %s to host: %w", env.Type, domain.ErrChannelClosed)
	}
	if err := r.hostChan.Send(env); err != nil {
		return fmt.Errorf("send %s to host: %w", env.Type, err)
	}
	return nil
}

func (r *relayRouter) SetHostChannel(ch ports.ControlChannel) {
	r.hostChan = ch
}
