package services

import (
	"context"
	"fmt"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"
	"peermeet/pkg/retry"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config wires a Session together. Zero values get sensible defaults.
type Config struct {
	Info         domain.SessionInfo
	Policy       domain.MeetingPolicy
	Store        ports.MembershipStore
	Link         ports.PeerLink
	Devices      ports.MediaDevices
	Notifier     ports.Notifier
	Metrics      ports.MetricsRecorder
	Logger       *zap.SugaredLogger
	InitialMedia domain.LocalMediaState

	Retry          retry.Config
	CallTimeout    time.Duration
	JoinRate       rate.Limit
	JoinBurst      int
	ChatRate       rate.Limit
	ChatBurst      int
	RosterInterval time.Duration
	TaskBuffer     int
}

func (c *Config) applyDefaults() {
	if c.Notifier == nil {
		c.Notifier = ports.NopNotifier{}
	}
	if c.Metrics == nil {
		c.Metrics = ports.NopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.JoinRate <= 0 {
		c.JoinRate = 5
	}
	if c.JoinBurst <= 0 {
		c.JoinBurst = 10
	}
	if c.ChatRate <= 0 {
		c.ChatRate = 20
	}
	if c.ChatBurst <= 0 {
		c.ChatBurst = 40
	}
	if c.RosterInterval <= 0 {
		c.RosterInterval = 3 * time.Second
	}
	if c.TaskBuffer <= 0 {
		c.TaskBuffer = 256
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig()
	}
}

// Session is one client's participation in one meeting. A single goroutine
// (Run) executes every task, so the coordination services need no internal
// locking; transport callbacks and API calls are funneled in as tasks.
type Session struct {
	cfg      Config
	info     domain.SessionInfo
	policy   domain.MeetingPolicy
	store    ports.MembershipStore
	link     ports.PeerLink
	notifier ports.Notifier
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger

	admission  ports.AdmissionService
	relay      ports.RelayService
	media      ports.MediaService
	presence   ports.PresenceService
	dispatcher *protocol.Dispatcher

	tasks        chan func()
	done         chan struct{}
	closing      bool
	admitted     bool
	hostChan     ports.ControlChannel
	pendingChans map[domain.PeerID]ports.ControlChannel
	chatLimiter  *rate.Limiter
}

func NewSession(ctx context.Context, cfg Config) *Session {
	cfg.applyDefaults()

	s := &Session{
		cfg:          cfg,
		info:         cfg.Info,
		policy:       cfg.Policy,
		store:        cfg.Store,
		link:         cfg.Link,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("role", cfg.Info.Role, "self", cfg.Info.SelfID),
		tasks:        make(chan func(), cfg.TaskBuffer),
		done:         make(chan struct{}),
		pendingChans: make(map[domain.PeerID]ports.ControlChannel),
		chatLimiter:  rate.NewLimiter(cfg.ChatRate, cfg.ChatBurst),
	}
	// The host is admitted to its own meeting by definition.
	s.admitted = cfg.Info.IsHost()

	s.relay = NewRelayRouter(s.info, s.store, s.metrics, s.logger)
	s.media = NewMediaSessionManager(ctx, s.info, s.link, s.store, cfg.Devices,
		s.notifier, s.metrics, s.Post, cfg.Retry, cfg.CallTimeout, cfg.InitialMedia, s.logger)
	s.presence = NewPresenceSync(s.info, s.store, s.relay, s.notifier, s.logger)
	if s.info.IsHost() {
		s.admission = NewAdmissionController(s.info, &s.policy, s.store, s.relay,
			s.media, s.presence, s.notifier, s.metrics, cfg.JoinRate, cfg.JoinBurst, s.logger)
	}

	s.dispatcher = protocol.NewDispatcher()
	if s.info.IsHost() {
		s.registerHostHandlers()
	} else {
		s.registerParticipantHandlers()
	}
	s.link.SetHandler(s)
	return s
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Info() domain.SessionInfo { return s.info }

// Run drives the session loop until ctx is cancelled or the session leaves.
func (s *Session) Run(ctx context.Context) error {
	s.media.Start()

	if !s.info.IsHost() {
		go s.connectToHost(ctx)
	}

	var rosterTick <-chan time.Time
	if s.info.IsHost() && s.policy.Mesh {
		ticker := time.NewTicker(s.cfg.RosterInterval)
		defer ticker.Stop()
		rosterTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown("context cancelled")
			return ctx.Err()
		case <-s.done:
			return nil
		case fn := <-s.tasks:
			fn()
		case <-rosterTick:
			s.broadcastRoster()
		}
	}
}

// Post schedules fn onto the session loop. Safe from any goroutine; a no-op
// once the session is done.
func (s *Session) Post(fn func()) {
	select {
	case <-s.done:
	case s.tasks <- fn:
	}
}

// Do runs fn on the session loop and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	wrapped := func() { res <- fn() }
	select {
	case <-s.done:
		return fmt.Errorf("session closed")
	case <-ctx.Done():
		return ctx.Err()
	case s.tasks <- wrapped:
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectToHost opens the control channel to the host and sends the join
// request. Runs off-loop; results re-enter through Post.
func (s *Session) connectToHost(ctx context.Context) {
	host := s.info.HostPeerID()
	ch, err := retry.RetryWithResult(ctx, s.cfg.Retry, func() (ports.ControlChannel, error) {
		return s.link.Connect(ctx, host)
	})
	if err != nil {
		s.logger.Errorw("cannot reach host", "host", host, "error", err)
		s.Post(func() { s.shutdown("host unreachable") })
		return
	}
	s.Post(func() {
		s.hostChan = ch
		s.relay.SetHostChannel(ch)
		env := protocol.MustEnvelope(protocol.TypeJoinRequest, protocol.JoinRequestPayload{
			PeerID:      s.info.SelfID,
			DisplayName: s.info.DisplayName,
		})
		if err := ch.Send(env); err != nil {
			s.logger.Errorw("failed to send join request", "error", err)
			s.shutdown("join request failed")
			return
		}
		s.logger.Infow("join request sent", "host", host)
	})
}

// --- host-side message handling ---

func (s *Session) registerHostHandlers() {
	s.dispatcher.Register(protocol.TypeJoinRequest, s.handleJoinRequest)
	s.dispatcher.Register(protocol.TypeChat, s.handleChatAtHost)
	s.dispatcher.Register(protocol.TypePresenceUpdate, s.handlePresenceAtHost)
}

func (s *Session) handleJoinRequest(from domain.PeerID, env protocol.Envelope) error {
	var req protocol.JoinRequestPayload
	if err := protocol.DecodePayload(env, &req); err != nil {
		return err
	}
	ch, ok := s.pendingChans[from]
	if !ok {
		// Channel already gone; nowhere to answer.
		s.logger.Warnw("join request without an open channel", "peer", from)
		return nil
	}
	delete(s.pendingChans, from)
	// The channel, not the payload, is authoritative for the peer identity.
	req.PeerID = from
	if req.OriginAddress == "" {
		req.OriginAddress = ch.RemoteAddress()
	}
	s.admission.OnJoinRequest(req, ch)
	return nil
}

func (s *Session) handleChatAtHost(from domain.PeerID, env protocol.Envelope) error {
	if _, ok := s.store.Get(from); !ok {
		s.logger.Warnw("chat from non-admitted peer dropped", "peer", from)
		return nil
	}
	if !s.chatLimiter.Allow() {
		s.logger.Warnw("chat throttled", "peer", from)
		return nil
	}
	var chat protocol.ChatPayload
	if err := protocol.DecodePayload(env, &chat); err != nil {
		return err
	}
	chat.SenderID = from
	relayed := protocol.MustEnvelope(protocol.TypeChat, chat)

	s.notifier.ChatReceived(domain.ChatMessage{
		SenderID:   chat.SenderID,
		SenderName: chat.SenderName,
		Text:       chat.Text,
		SentAt:     chat.SentAt,
	})
	s.relay.Broadcast(relayed, from)
	s.metrics.ChatMessage()
	return nil
}

func (s *Session) handlePresenceAtHost(from domain.PeerID, env protocol.Envelope) error {
	if _, ok := s.store.Get(from); !ok {
		s.logger.Warnw("presence update from non-admitted peer dropped", "peer", from)
		return nil
	}
	var update protocol.PresenceUpdatePayload
	if err := protocol.DecodePayload(env, &update); err != nil {
		return err
	}
	if !update.Kind.Valid() {
		return fmt.Errorf("presence update with unknown kind %q", update.Kind)
	}
	s.presence.AnnounceStateChange(from, update.Kind, update.Enabled)
	return nil
}

// --- participant-side message handling ---

func (s *Session) registerParticipantHandlers() {
	s.dispatcher.Register(protocol.TypeAdmitted, s.handleAdmitted)
	s.dispatcher.Register(protocol.TypeRejected, func(domain.PeerID, protocol.Envelope) error {
		s.notifier.AdmissionResolved(false)
		s.shutdown("rejected by host")
		return nil
	})
	s.dispatcher.Register(protocol.TypeKicked, func(domain.PeerID, protocol.Envelope) error {
		s.shutdown("kicked by host")
		return nil
	})
	s.dispatcher.Register(protocol.TypeChat, s.handleChatAtParticipant)
	s.dispatcher.Register(protocol.TypePresenceUpdate, s.handlePresenceAtParticipant)
	s.dispatcher.Register(protocol.TypeForceState, s.handleForceState)
	s.dispatcher.Register(protocol.TypeMemberJoined, s.handleMemberJoined)
	s.dispatcher.Register(protocol.TypeMemberLeft, s.handleMemberLeft)
	s.dispatcher.Register(protocol.TypeRoster, s.handleRoster)
}

func (s *Session) handleAdmitted(from domain.PeerID, env protocol.Envelope) error {
	var payload protocol.AdmittedPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return err
	}
	s.admitted = true
	s.notifier.AdmissionResolved(true)
	hostName := payload.HostName
	if hostName == "" {
		hostName = "Host"
	}
	s.addRosterRecord(s.info.HostPeerID(), hostName)
	for _, peer := range payload.Roster {
		if peer == s.info.SelfID {
			continue
		}
		s.addRosterRecord(peer, "")
		s.maybeMeshCall(peer)
	}
	s.notifier.RosterChanged(s.store.Snapshot())
	s.logger.Infow("admitted to meeting", "roster_size", len(payload.Roster))
	return nil
}

func (s *Session) handleChatAtParticipant(from domain.PeerID, env protocol.Envelope) error {
	var chat protocol.ChatPayload
	if err := protocol.DecodePayload(env, &chat); err != nil {
		return err
	}
	s.notifier.ChatReceived(domain.ChatMessage{
		SenderID:   chat.SenderID,
		SenderName: chat.SenderName,
		Text:       chat.Text,
		SentAt:     chat.SentAt,
	})
	return nil
}

func (s *Session) handlePresenceAtParticipant(from domain.PeerID, env protocol.Envelope) error {
	var update protocol.PresenceUpdatePayload
	if err := protocol.DecodePayload(env, &update); err != nil {
		return err
	}
	if err := s.store.SetMediaState(update.PeerID, update.Kind, update.Enabled); err != nil {
		s.logger.Debugw("presence update for unknown peer", "peer", update.PeerID)
		return nil
	}
	s.notifier.PresenceChanged(update.PeerID, update.Kind, update.Enabled)
	return nil
}

// handleForceState applies a host-imposed media override. This is a forced
// state change, not a request: it is honored unconditionally and echoed as
// a regular presence update.
func (s *Session) handleForceState(from domain.PeerID, env protocol.Envelope) error {
	var force protocol.ForceStatePayload
	if err := protocol.DecodePayload(env, &force); err != nil {
		return err
	}
	switch force.Kind {
	case domain.MediaAudio:
		s.media.SetAudioEnabled(force.Enabled)
	case domain.MediaVideo:
		s.media.SetVideoEnabled(force.Enabled)
	default:
		return fmt.Errorf("force-state with unknown kind %q", force.Kind)
	}
	s.presence.AnnounceStateChange(s.info.SelfID, force.Kind, force.Enabled)
	return nil
}

func (s *Session) handleMemberJoined(from domain.PeerID, env protocol.Envelope) error {
	var member protocol.MemberPayload
	if err := protocol.DecodePayload(env, &member); err != nil {
		return err
	}
	s.addRosterRecord(member.PeerID, member.DisplayName)
	s.notifier.RosterChanged(s.store.Snapshot())
	return nil
}

func (s *Session) handleMemberLeft(from domain.PeerID, env protocol.Envelope) error {
	var member protocol.MemberPayload
	if err := protocol.DecodePayload(env, &member); err != nil {
		return err
	}
	s.store.Remove(member.PeerID, domain.StatusLeft)
	s.media.ClosePeer(member.PeerID)
	s.notifier.RosterChanged(s.store.Snapshot())
	return nil
}

func (s *Session) handleRoster(from domain.PeerID, env protocol.Envelope) error {
	if !s.policy.Mesh {
		return nil
	}
	var roster protocol.RosterPayload
	if err := protocol.DecodePayload(env, &roster); err != nil {
		return err
	}
	for _, peer := range roster.Peers {
		if peer == s.info.SelfID {
			continue
		}
		s.addRosterRecord(peer, "")
		s.maybeMeshCall(peer)
	}
	return nil
}

// addRosterRecord records a remote peer in the local roster view. The view
// reuses the membership store; records created this way carry no channel.
func (s *Session) addRosterRecord(id domain.PeerID, displayName string) {
	if _, ok := s.store.Get(id); ok {
		return
	}
	s.store.AddWaiting(domain.WaitingEntry{PeerID: id, DisplayName: displayName}, nil)
	if _, err := s.store.Promote(id); err != nil {
		s.logger.Debugw("roster record not promoted", "peer", id, "error", err)
	}
}

// maybeMeshCall places a direct call to peer in mesh mode. The side with
// the lexicographically smaller peer id calls; the other only answers, so
// no pair ever dials each other simultaneously.
func (s *Session) maybeMeshCall(peer domain.PeerID) {
	if !s.policy.Mesh || peer == s.info.HostPeerID() {
		return
	}
	if s.info.SelfID < peer {
		s.media.EstablishCall(peer)
	}
}

func (s *Session) broadcastRoster() {
	peers := make([]domain.PeerID, 0)
	for _, p := range s.store.ListAdmitted() {
		peers = append(peers, p.Record.PeerID)
	}
	env := protocol.MustEnvelope(protocol.TypeRoster, protocol.RosterPayload{Peers: peers})
	s.relay.Broadcast(env, "")
}

// --- ports.LinkHandler ---

func (s *Session) HandleChannelOpen(ch ports.ControlChannel) {
	s.Post(func() {
		if !s.info.IsHost() {
			// Star topology: participants never accept control channels.
			ch.Close()
			return
		}
		s.pendingChans[ch.Peer()] = ch
	})
}

func (s *Session) HandleMessage(from domain.PeerID, env protocol.Envelope) {
	s.Post(func() {
		if err := s.dispatcher.Dispatch(from, env); err != nil {
			s.logger.Warnw("message handling failed", "type", env.Type, "peer", from, "error", err)
		}
	})
}

func (s *Session) HandleIncomingCall(call ports.IncomingCall) {
	s.Post(func() {
		if !s.allowCallFrom(call.Peer()) {
			s.logger.Warnw("incoming call refused", "peer", call.Peer())
			call.Reject()
			return
		}
		s.media.AnswerIncoming(call)
	})
}

// allowCallFrom enforces the call-initiation rule: a participant answers
// the host (and, in mesh mode, admitted peers); the host never answers
// unless mesh mode is on.
func (s *Session) allowCallFrom(peer domain.PeerID) bool {
	if !s.info.IsHost() {
		if peer == s.info.HostPeerID() {
			return s.admitted
		}
		if !s.policy.Mesh || !s.admitted {
			return false
		}
		_, known := s.store.Get(peer)
		return known
	}
	if !s.policy.Mesh {
		return false
	}
	_, admitted := s.store.Get(peer)
	return admitted
}

func (s *Session) HandleRemoteStream(peer domain.PeerID) {
	s.Post(func() { s.notifier.StreamOpened(peer) })
}

func (s *Session) HandleChannelClosed(peer domain.PeerID) {
	s.Post(func() { s.onChannelClosed(peer) })
}

func (s *Session) HandleCallClosed(peer domain.PeerID) {
	s.Post(func() {
		s.media.ClosePeer(peer)
		s.notifier.StreamClosed(peer)
	})
}

// onChannelClosed treats a transport failure as an implicit leave.
func (s *Session) onChannelClosed(peer domain.PeerID) {
	delete(s.pendingChans, peer)

	if !s.info.IsHost() {
		if peer == s.info.HostPeerID() {
			s.shutdown("host disconnected")
		}
		return
	}

	removed, ok := s.store.Remove(peer, domain.StatusLeft)
	if !ok {
		return
	}
	s.media.ClosePeer(peer)
	s.metrics.MembershipCounts(len(s.store.ListWaiting()), len(s.store.ListAdmitted()))
	if removed.Record.Status == domain.StatusLeft && removed.Record.JoinedAt.IsZero() {
		// Was still waiting; nothing to announce.
		s.notifier.WaitingChanged(s.store.ListWaiting())
		return
	}
	s.presence.AnnounceLeave(peer)
	s.notifier.RosterChanged(s.store.Snapshot())
	s.logger.Infow("participant disconnected", "peer", peer)
}

// shutdown is the single teardown path; every trigger (leave, kick, host
// gone, context cancel) funnels here and it is idempotent.
func (s *Session) shutdown(reason string) {
	if s.closing {
		return
	}
	s.closing = true
	s.logger.Infow("session shutting down", "reason", reason)

	s.media.CloseAll()

	for _, e := range s.store.ListWaiting() {
		if removed, ok := s.store.Remove(e.PeerID, domain.StatusLeft); ok && removed.Control != nil {
			removed.Control.Close()
		}
	}
	for _, p := range s.store.ListAdmitted() {
		if removed, ok := s.store.Remove(p.Record.PeerID, domain.StatusLeft); ok && removed.Control != nil {
			removed.Control.Close()
		}
	}
	for _, ch := range s.pendingChans {
		ch.Close()
	}
	s.pendingChans = map[domain.PeerID]ports.ControlChannel{}
	if s.hostChan != nil {
		s.hostChan.Close()
		s.hostChan = nil
	}

	if err := s.link.Close(); err != nil {
		s.logger.Warnw("peer link close failed", "error", err)
	}
	s.metrics.MembershipCounts(0, 0)
	s.notifier.SessionEnded(reason)
	close(s.done)
}
