package pion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	purposeControl = "control"
	purposeMedia   = "media"
)

// Config holds the PeerLink transport settings.
type Config struct {
	SelfID       domain.PeerID
	BrokerURL    string
	PingInterval time.Duration
	PongTimeout  time.Duration
	DialTimeout  time.Duration
	ICEServers   []string
	// ForwardBase is the first local UDP port remote media is rendered to.
	ForwardBase int
	Logger      *zap.SugaredLogger
}

// Link implements ports.PeerLink on pion/webrtc with a websocket broker
// for SDP exchange. Offers are non-trickle: gathering completes before the
// offer leaves, so the broker protocol stays offer/answer/decline only.
type Link struct {
	cfg       Config
	signaling *signalingClient
	forwarder *remoteForwarder
	webrtcCfg webrtc.Configuration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	handler ports.LinkHandler
	closed  bool
}

// New connects to the broker and returns a ready Link. The handler must be
// installed with SetHandler before remote peers are expected to dial in.
func New(ctx context.Context, cfg Config) (*Link, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 45 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, u := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	l := &Link{
		cfg:       cfg,
		forwarder: newRemoteForwarder(cfg.ForwardBase, cfg.Logger),
		webrtcCfg: webrtc.Configuration{ICEServers: iceServers},
		logger:    cfg.Logger,
	}

	l.signaling = newSignalingClient(cfg.SelfID, cfg.BrokerURL, cfg.PingInterval, cfg.PongTimeout, cfg.Logger)
	l.signaling.onOffer = l.onOffer

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := l.signaling.connect(dialCtx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Link) SelfID() domain.PeerID { return l.cfg.SelfID }

func (l *Link) SetHandler(h ports.LinkHandler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

func (l *Link) currentHandler() ports.LinkHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler
}

// Connect opens a control channel to the given peer and blocks until the
// channel is open or ctx expires.
func (l *Link) Connect(ctx context.Context, peer domain.PeerID) (ports.ControlChannel, error) {
	pc, err := webrtc.NewPeerConnection(l.webrtcCfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("control", nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create control channel: %w", err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	ch := newControlChannel(peer, pc, dc)
	l.wireControlEvents(ch)

	if err := l.dialPeer(ctx, pc, peer, purposeControl); err != nil {
		pc.Close()
		return nil, err
	}

	select {
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	case <-opened:
	}
	return ch, nil
}

// Call places a media call to the given peer with the local source attached.
func (l *Link) Call(ctx context.Context, peer domain.PeerID, src ports.MediaSource) (ports.MediaCall, error) {
	pc, err := webrtc.NewPeerConnection(l.webrtcCfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	audio, video, err := attachTransceivers(pc, src)
	if err != nil {
		pc.Close()
		return nil, err
	}

	call := &mediaCall{peer: peer, pc: pc, audio: audio, video: video, logger: l.logger}
	l.wireMediaEvents(call)

	if err := l.dialPeer(ctx, pc, peer, purposeMedia); err != nil {
		pc.Close()
		return nil, err
	}
	return call, nil
}

// dialPeer runs the full non-trickle offer/answer exchange on pc.
func (l *Link) dialPeer(ctx context.Context, pc *webrtc.PeerConnection, peer domain.PeerID, purpose string) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-gathered:
	}

	answer, err := l.signaling.exchangeOffer(ctx, SignalMessage{
		Type:    "offer",
		From:    l.cfg.SelfID,
		To:      peer,
		CallID:  uuid.NewString(),
		Purpose: purpose,
		SDP:     pc.LocalDescription().SDP,
	})
	if err != nil {
		return err
	}

	return pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
}

// onOffer handles inbound offers from the broker on the signaling goroutine.
func (l *Link) onOffer(msg SignalMessage) {
	var err error
	switch msg.Purpose {
	case purposeControl:
		err = l.acceptControl(msg)
	case purposeMedia:
		err = l.deliverIncomingCall(msg)
	default:
		err = fmt.Errorf("unknown call purpose %q", msg.Purpose)
	}
	if err != nil {
		l.logger.Warnw("inbound offer rejected", "from", msg.From, "purpose", msg.Purpose, "error", err)
		l.decline(msg)
	}
}

// acceptControl answers an inbound control offer. The channel is surfaced
// to the handler once the remote data channel opens.
func (l *Link) acceptControl(msg SignalMessage) error {
	pc, err := webrtc.NewPeerConnection(l.webrtcCfg)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	peer := msg.From
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		ch := newControlChannel(peer, pc, dc)
		dc.OnOpen(func() {
			if h := l.currentHandler(); h != nil {
				h.HandleChannelOpen(ch)
			}
		})
		l.wireControlEvents(ch)
	})

	if err := l.answerOffer(pc, msg); err != nil {
		pc.Close()
		return err
	}
	return nil
}

// deliverIncomingCall surfaces an inbound media offer as a pending call.
// Nothing is negotiated until the handler answers or rejects.
func (l *Link) deliverIncomingCall(msg SignalMessage) error {
	h := l.currentHandler()
	if h == nil {
		return fmt.Errorf("no handler installed")
	}
	h.HandleIncomingCall(&incomingCall{link: l, offer: msg})
	return nil
}

// answerOffer applies an inbound offer to pc and ships the gathered answer.
func (l *Link) answerOffer(pc *webrtc.PeerConnection, msg SignalMessage) error {
	err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	})
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-time.After(l.cfg.DialTimeout):
		return fmt.Errorf("ice gathering timed out")
	case <-gathered:
	}

	return l.signaling.send(SignalMessage{
		Type:    "answer",
		From:    l.cfg.SelfID,
		To:      msg.From,
		CallID:  msg.CallID,
		Purpose: msg.Purpose,
		SDP:     pc.LocalDescription().SDP,
	})
}

func (l *Link) decline(msg SignalMessage) {
	err := l.signaling.send(SignalMessage{
		Type:    "decline",
		From:    l.cfg.SelfID,
		To:      msg.From,
		CallID:  msg.CallID,
		Purpose: msg.Purpose,
	})
	if err != nil {
		l.logger.Debugw("decline send failed", "to", msg.From, "error", err)
	}
}

// wireControlEvents routes data channel traffic and teardown to the handler.
func (l *Link) wireControlEvents(ch *controlChannel) {
	peer := ch.peer
	var closedOnce sync.Once
	notifyClosed := func() {
		closedOnce.Do(func() {
			if h := l.currentHandler(); h != nil {
				h.HandleChannelClosed(peer)
			}
		})
	}

	ch.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var env protocol.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			l.logger.Debugw("malformed control message dropped", "from", peer, "error", err)
			return
		}
		if h := l.currentHandler(); h != nil {
			h.HandleMessage(peer, env)
		}
	})
	ch.dc.OnClose(notifyClosed)
	ch.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			notifyClosed()
		}
	})
}

// wireMediaEvents routes remote tracks and teardown to the handler.
func (l *Link) wireMediaEvents(call *mediaCall) {
	peer := call.peer
	done := make(chan struct{})
	var streamOnce, closedOnce sync.Once

	call.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		streamOnce.Do(func() {
			if h := l.currentHandler(); h != nil {
				h.HandleRemoteStream(peer)
			}
		})
		l.forwarder.consume(call.pc, track, done)
	})
	call.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			closedOnce.Do(func() {
				close(done)
				if h := l.currentHandler(); h != nil {
					h.HandleCallClosed(peer)
				}
			})
		}
	})
}

func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.signaling.close()
	l.forwarder.close()
	return nil
}

// incomingCall defers negotiation of an inbound media offer until the
// session decides whether the caller is allowed.
type incomingCall struct {
	link  *Link
	offer SignalMessage
	once  sync.Once
}

func (c *incomingCall) Peer() domain.PeerID { return c.offer.From }

func (c *incomingCall) Answer(src ports.MediaSource) (ports.MediaCall, error) {
	var (
		call ports.MediaCall
		err  error
	)
	resolved := false
	c.once.Do(func() {
		resolved = true
		call, err = c.answer(src)
	})
	if !resolved {
		return nil, fmt.Errorf("incoming call already resolved")
	}
	return call, err
}

func (c *incomingCall) answer(src ports.MediaSource) (ports.MediaCall, error) {
	pc, err := webrtc.NewPeerConnection(c.link.webrtcCfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	audio, video, err := attachTransceivers(pc, src)
	if err != nil {
		pc.Close()
		return nil, err
	}

	call := &mediaCall{peer: c.offer.From, pc: pc, audio: audio, video: video, logger: c.link.logger}
	c.link.wireMediaEvents(call)

	if err := c.link.answerOffer(pc, c.offer); err != nil {
		pc.Close()
		return nil, err
	}
	return call, nil
}

func (c *incomingCall) Reject() error {
	c.once.Do(func() {
		c.link.decline(c.offer)
	})
	return nil
}
