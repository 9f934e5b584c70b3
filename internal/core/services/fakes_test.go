package services

import (
	"context"
	"sync"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"
)

// fakeChannel records everything sent on it and the order of operations,
// so tests can assert that notifications land before teardown.
type fakeChannel struct {
	mu     sync.Mutex
	peer   domain.PeerID
	remote string
	sent   []protocol.Envelope
	ops    []string
	closed bool
}

func newFakeChannel(peer domain.PeerID) *fakeChannel {
	return &fakeChannel{peer: peer, remote: "198.51.100.7:443"}
}

func (c *fakeChannel) Peer() domain.PeerID   { return c.peer }
func (c *fakeChannel) RemoteAddress() string { return c.remote }

func (c *fakeChannel) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrChannelClosed
	}
	c.sent = append(c.sent, env)
	c.ops = append(c.ops, "send:"+string(env.Type))
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.ops = append(c.ops, "close")
	return nil
}

func (c *fakeChannel) sentTypes() []protocol.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeChannel) operations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) lastOfType(t protocol.MessageType) (protocol.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Type == t {
			return c.sent[i], true
		}
	}
	return protocol.Envelope{}, false
}

type fakeCall struct {
	mu      sync.Mutex
	peer    domain.PeerID
	sources []ports.MediaSource
	closed  bool
}

func (c *fakeCall) Peer() domain.PeerID { return c.peer }

func (c *fakeCall) SetSource(src ports.MediaSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
	return nil
}

func (c *fakeCall) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCall) lastSource() ports.MediaSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sources) == 0 {
		return nil
	}
	return c.sources[len(c.sources)-1]
}

type fakeIncomingCall struct {
	peer     domain.PeerID
	answered bool
	rejected bool
	call     *fakeCall
}

func (c *fakeIncomingCall) Peer() domain.PeerID { return c.peer }

func (c *fakeIncomingCall) Answer(src ports.MediaSource) (ports.MediaCall, error) {
	c.answered = true
	c.call = &fakeCall{peer: c.peer}
	c.call.SetSource(src)
	return c.call, nil
}

func (c *fakeIncomingCall) Reject() error {
	c.rejected = true
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	label   string
	audio   bool
	video   bool
	onEnded func()
	closed  bool
}

func (s *fakeSource) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = enabled
}

func (s *fakeSource) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = enabled
}

func (s *fakeSource) SetOnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) end() {
	s.mu.Lock()
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeDevices struct {
	cameraErr error
	screenErr error

	mu     sync.Mutex
	camera *fakeSource
	screen *fakeSource
}

func (d *fakeDevices) OpenCamera(ctx context.Context) (ports.MediaSource, error) {
	if d.cameraErr != nil {
		return nil, d.cameraErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.camera = &fakeSource{label: "camera", audio: true, video: true}
	return d.camera, nil
}

func (d *fakeDevices) OpenScreen(ctx context.Context) (ports.MediaSource, error) {
	if d.screenErr != nil {
		return nil, d.screenErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = &fakeSource{label: "screen", video: true}
	return d.screen, nil
}

// fakeLink hands out fake channels and calls. Connect and Call succeed
// unless an error is injected.
type fakeLink struct {
	mu       sync.Mutex
	selfID   domain.PeerID
	handler  ports.LinkHandler
	channels map[domain.PeerID]*fakeChannel
	calls    []*fakeCall
	callErr  error
	closed   bool
}

func newFakeLink(selfID domain.PeerID) *fakeLink {
	return &fakeLink{
		selfID:   selfID,
		channels: make(map[domain.PeerID]*fakeChannel),
	}
}

func (l *fakeLink) SelfID() domain.PeerID { return l.selfID }

func (l *fakeLink) SetHandler(h ports.LinkHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *fakeLink) Connect(ctx context.Context, peer domain.PeerID) (ports.ControlChannel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := newFakeChannel(peer)
	l.channels[peer] = ch
	return ch, nil
}

func (l *fakeLink) Call(ctx context.Context, peer domain.PeerID, src ports.MediaSource) (ports.MediaCall, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.callErr != nil {
		return nil, l.callErr
	}
	call := &fakeCall{peer: peer}
	if src != nil {
		call.sources = append(call.sources, src)
	}
	l.calls = append(l.calls, call)
	return call, nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *fakeLink) channelTo(peer domain.PeerID) *fakeChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channels[peer]
}

// fakeMediaService records calls for admission tests that only care about
// the coordination side of media.
type fakeMediaService struct {
	mu          sync.Mutex
	established []domain.PeerID
	closedPeers []domain.PeerID
	local       domain.LocalMediaState
}

func (m *fakeMediaService) Start() {}

func (m *fakeMediaService) EstablishCall(peer domain.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.established = append(m.established, peer)
}

func (m *fakeMediaService) AnswerIncoming(call ports.IncomingCall)      {}
func (m *fakeMediaService) SetAudioEnabled(enabled bool)                { m.local.AudioEnabled = enabled }
func (m *fakeMediaService) SetVideoEnabled(enabled bool)                { m.local.VideoEnabled = enabled }
func (m *fakeMediaService) StartScreenShare() error                     { return nil }
func (m *fakeMediaService) StopScreenShare()                            {}
func (m *fakeMediaService) LocalState() domain.LocalMediaState          { return m.local }

func (m *fakeMediaService) ClosePeer(peer domain.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedPeers = append(m.closedPeers, peer)
}

func (m *fakeMediaService) CloseAll() {}

// recordingNotifier captures notifier events by name.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) ChatReceived(domain.ChatMessage)        { n.record("chat") }
func (n *recordingNotifier) WaitingChanged([]domain.WaitingEntry)   { n.record("waiting") }
func (n *recordingNotifier) RosterChanged([]domain.ParticipantRecord) {
	n.record("roster")
}
func (n *recordingNotifier) PresenceChanged(domain.PeerID, domain.MediaKind, bool) {
	n.record("presence")
}
func (n *recordingNotifier) LocalMediaChanged(domain.LocalMediaState) { n.record("local-media") }
func (n *recordingNotifier) StreamOpened(domain.PeerID)               { n.record("stream-opened") }
func (n *recordingNotifier) StreamClosed(domain.PeerID)               { n.record("stream-closed") }
func (n *recordingNotifier) AdmissionResolved(admitted bool) {
	if admitted {
		n.record("admitted")
	} else {
		n.record("rejected")
	}
}
func (n *recordingNotifier) SessionEnded(string) { n.record("ended") }

// queueRunner collects posted tasks so tests drain them deterministically.
type queueRunner struct {
	mu    sync.Mutex
	tasks []func()
}

func (r *queueRunner) run(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, fn)
}

// drain executes queued tasks, including any they enqueue, until empty.
func (r *queueRunner) drain() {
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		fn()
	}
}

func (r *queueRunner) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
