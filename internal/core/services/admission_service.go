package services

import (
	"context"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdmissionController is the host-side gate for join requests. It owns the
// waiting-room queue ordering and the admit/reject/kick transitions; the
// actual decisions come from the host user through the control API.
type admissionController struct {
	info     domain.SessionInfo
	policy   *domain.MeetingPolicy
	store    ports.MembershipStore
	relay    ports.RelayService
	media    ports.MediaService
	presence ports.PresenceService
	notifier ports.Notifier
	metrics  ports.MetricsRecorder
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   *zap.SugaredLogger
}

func NewAdmissionController(
	info domain.SessionInfo,
	policy *domain.MeetingPolicy,
	store ports.MembershipStore,
	relay ports.RelayService,
	media ports.MediaService,
	presence ports.PresenceService,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	joinLimit rate.Limit,
	joinBurst int,
	logger *zap.SugaredLogger,
) ports.AdmissionService {
	return &admissionController{
		info:     info,
		policy:   policy,
		store:    store,
		relay:    relay,
		media:    media,
		presence: presence,
		notifier: notifier,
		metrics:  metrics,
		limiter:  rate.NewLimiter(joinLimit, joinBurst),
		tracer:   otel.Tracer("peermeet/admission"),
		logger:   logger,
	}
}

func (a *admissionController) OnJoinRequest(req protocol.JoinRequestPayload, control ports.ControlChannel) {
	if !a.info.IsHost() {
		return
	}

	log := a.logger.With("peer", req.PeerID, "name", req.DisplayName)

	if !a.limiter.Allow() {
		log.Warnw("join request throttled")
		a.metrics.JoinRequest("throttled")
		control.Close()
		return
	}

	// A locked meeting rejects unconditionally; the peer never enters the
	// waiting room.
	if a.policy.Locked {
		log.Infow("join request rejected, meeting locked")
		a.metrics.JoinRequest("rejected-locked")
		if err := control.Send(protocol.MustEnvelope(protocol.TypeRejected, nil)); err != nil {
			log.Warnw("failed to send rejection", "error", err)
		}
		control.Close()
		return
	}

	entry := domain.WaitingEntry{
		PeerID:        req.PeerID,
		DisplayName:   req.DisplayName,
		OriginAddress: req.OriginAddress,
		RequestedAt:   time.Now(),
	}
	a.store.AddWaiting(entry, control)

	if !a.policy.WaitingRoom {
		a.metrics.JoinRequest("auto-admitted")
		if err := a.Admit(req.PeerID); err != nil {
			log.Errorw("auto-admit failed", "error", err)
		}
		return
	}

	log.Infow("join request queued")
	a.metrics.JoinRequest("waiting")
	a.publishCounts()
	a.notifier.WaitingChanged(a.store.ListWaiting())
}

func (a *admissionController) Admit(id domain.PeerID) error {
	_, span := a.tracer.Start(context.Background(), "admission.admit",
		trace.WithAttributes(attribute.String("peer_id", string(id))))
	defer span.End()

	p, err := a.store.Promote(id)
	if err != nil {
		a.logger.Warnw("admit refused", "peer", id, "error", err)
		return err
	}

	// Roster of everyone already admitted, for participant-side mesh calls.
	roster := make([]domain.PeerID, 0)
	for _, other := range a.store.ListAdmitted() {
		if other.Record.PeerID != id {
			roster = append(roster, other.Record.PeerID)
		}
	}

	// The admitted notification must reach the transport before the call is
	// placed, so the participant never sees a stream from an unknown peer.
	env := protocol.MustEnvelope(protocol.TypeAdmitted, protocol.AdmittedPayload{
		HostName: a.info.DisplayName,
		Roster:   roster,
	})
	if err := p.Control.Send(env); err != nil {
		a.logger.Warnw("failed to send admitted message", "peer", id, "error", err)
	}

	a.presence.AnnounceJoin(id, p.Record.DisplayName)
	a.media.EstablishCall(id)

	a.logger.Infow("participant admitted", "peer", id, "name", p.Record.DisplayName)
	a.publishCounts()
	a.notifier.WaitingChanged(a.store.ListWaiting())
	a.notifier.RosterChanged(a.store.Snapshot())
	return nil
}

func (a *admissionController) Reject(id domain.PeerID) error {
	entry, control, ok := a.store.GetWaiting(id)
	if !ok {
		a.logger.Warnw("reject refused", "peer", id, "error", domain.ErrNotWaiting)
		return domain.ErrNotWaiting
	}

	// Notify first, close after: the message must be handed to the
	// transport before the channel goes away.
	if err := control.Send(protocol.MustEnvelope(protocol.TypeRejected, nil)); err != nil {
		a.logger.Warnw("failed to send rejection", "peer", id, "error", err)
	}
	a.store.Remove(id, domain.StatusRejected)
	control.Close()

	a.logger.Infow("participant rejected", "peer", id, "name", entry.DisplayName)
	a.metrics.JoinRequest("rejected")
	a.publishCounts()
	a.notifier.WaitingChanged(a.store.ListWaiting())
	return nil
}

func (a *admissionController) Kick(id domain.PeerID) error {
	ctx, span := a.tracer.Start(context.Background(), "admission.kick",
		trace.WithAttributes(attribute.String("peer_id", string(id))))
	defer span.End()
	_ = ctx

	p, ok := a.store.Get(id)
	if !ok {
		a.logger.Warnw("kick refused", "peer", id, "error", domain.ErrNotAdmitted)
		return domain.ErrNotAdmitted
	}

	if err := p.Control.Send(protocol.MustEnvelope(protocol.TypeKicked, nil)); err != nil {
		a.logger.Warnw("failed to send kicked message", "peer", id, "error", err)
	}

	removed, _ := a.store.Remove(id, domain.StatusKicked)
	if removed != nil && removed.Control != nil {
		removed.Control.Close()
	}
	a.media.ClosePeer(id)

	a.presence.AnnounceLeave(id)

	a.logger.Infow("participant kicked", "peer", id)
	a.publishCounts()
	a.notifier.RosterChanged(a.store.Snapshot())
	return nil
}

func (a *admissionController) CurrentDecision() (domain.WaitingEntry, bool) {
	waiting := a.store.ListWaiting()
	if len(waiting) == 0 {
		return domain.WaitingEntry{}, false
	}
	return waiting[0], true
}

func (a *admissionController) publishCounts() {
	a.metrics.MembershipCounts(len(a.store.ListWaiting()), len(a.store.ListAdmitted()))
}

