package services

import (
	"context"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/pkg/retry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TaskRunner schedules a function onto the session loop. Media completion
// callbacks arrive from transport goroutines and are serialized through it.
type TaskRunner func(fn func())

// mediaSessionManager guarantees at most one media call per remote peer and
// owns the local capture sources. All methods run on the session loop; the
// call-establishment goroutines it spawns re-enter through the TaskRunner.
type mediaSessionManager struct {
	info        domain.SessionInfo
	link        ports.PeerLink
	store       ports.MembershipStore
	devices     ports.MediaDevices
	notifier    ports.Notifier
	metrics     ports.MetricsRecorder
	logger      *zap.SugaredLogger
	run         TaskRunner
	retryCfg    retry.Config
	callTimeout time.Duration
	tracer      trace.Tracer
	baseCtx     context.Context

	local   domain.LocalMediaState
	camera  ports.MediaSource
	screen  ports.MediaSource
	calls   map[domain.PeerID]ports.MediaCall
	pending map[domain.PeerID]bool
	closed  bool
}

func NewMediaSessionManager(
	ctx context.Context,
	info domain.SessionInfo,
	link ports.PeerLink,
	store ports.MembershipStore,
	devices ports.MediaDevices,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	run TaskRunner,
	retryCfg retry.Config,
	callTimeout time.Duration,
	initial domain.LocalMediaState,
	logger *zap.SugaredLogger,
) ports.MediaService {
	initial.ScreenSharing = false
	return &mediaSessionManager{
		info:        info,
		link:        link,
		store:       store,
		devices:     devices,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		run:         run,
		retryCfg:    retryCfg,
		callTimeout: callTimeout,
		tracer:      otel.Tracer("peermeet/media"),
		baseCtx:     ctx,
		local:       initial,
		calls:       make(map[domain.PeerID]ports.MediaCall),
		pending:     make(map[domain.PeerID]bool),
	}
}

func (m *mediaSessionManager) Start() {
	cam, err := m.devices.OpenCamera(m.baseCtx)
	if err != nil {
		// Degraded but alive: calls go out without local media.
		m.logger.Warnw("camera unavailable, continuing without outbound media", "error", err)
		m.notifier.LocalMediaChanged(m.local)
		return
	}
	m.camera = cam
	m.camera.SetAudioEnabled(m.local.AudioEnabled)
	m.camera.SetVideoEnabled(m.local.VideoEnabled)
	m.notifier.LocalMediaChanged(m.local)
}

func (m *mediaSessionManager) EstablishCall(peer domain.PeerID) {
	if m.closed || m.calls[peer] != nil || m.pending[peer] {
		return
	}
	m.pending[peer] = true
	src := m.currentSource()
	started := time.Now()

	go func() {
		ctx, cancel := context.WithTimeout(m.baseCtx, m.callTimeout)
		defer cancel()
		ctx, span := m.tracer.Start(ctx, "media.establish_call",
			trace.WithAttributes(attribute.String("peer_id", string(peer))))
		defer span.End()

		call, err := retry.RetryWithResult(ctx, m.retryCfg, func() (ports.MediaCall, error) {
			return m.link.Call(ctx, peer, src)
		})

		m.run(func() { m.finishCall(peer, call, err, started) })
	}()
}

func (m *mediaSessionManager) finishCall(peer domain.PeerID, call ports.MediaCall, err error, started time.Time) {
	delete(m.pending, peer)
	if err != nil {
		m.logger.Warnw("media call failed", "peer", peer, "error", err)
		return
	}
	if m.closed || m.calls[peer] != nil {
		// Lost the race against teardown or an answered inbound call.
		call.Close()
		return
	}
	m.calls[peer] = call
	if err := m.store.AttachCall(peer, call); err != nil {
		m.logger.Debugw("call not attached to roster", "peer", peer, "error", err)
	}
	m.metrics.CallEstablished(time.Since(started).Seconds())
	m.metrics.CallsActive(len(m.calls))
	m.logger.Infow("media call established", "peer", peer)
}

func (m *mediaSessionManager) AnswerIncoming(call ports.IncomingCall) {
	peer := call.Peer()
	if m.closed || m.calls[peer] != nil {
		// One live call per peer; a duplicate offer is refused.
		call.Reject()
		return
	}
	mc, err := call.Answer(m.currentSource())
	if err != nil {
		m.logger.Warnw("failed to answer call", "peer", peer, "error", err)
		return
	}
	m.calls[peer] = mc
	if err := m.store.AttachCall(peer, mc); err != nil {
		m.logger.Debugw("call not attached to roster", "peer", peer, "error", err)
	}
	m.metrics.CallsActive(len(m.calls))
	m.logger.Infow("incoming media call answered", "peer", peer)
}

func (m *mediaSessionManager) SetAudioEnabled(enabled bool) {
	m.local.AudioEnabled = enabled
	if m.camera != nil {
		m.camera.SetAudioEnabled(enabled)
	}
	if m.screen != nil {
		m.screen.SetAudioEnabled(enabled)
	}
	m.notifier.LocalMediaChanged(m.local)
}

func (m *mediaSessionManager) SetVideoEnabled(enabled bool) {
	m.local.VideoEnabled = enabled
	if m.camera != nil {
		m.camera.SetVideoEnabled(enabled)
	}
	if m.screen != nil {
		m.screen.SetVideoEnabled(enabled)
	}
	m.notifier.LocalMediaChanged(m.local)
}

func (m *mediaSessionManager) StartScreenShare() error {
	if m.local.ScreenSharing {
		return nil
	}
	screen, err := m.devices.OpenScreen(m.baseCtx)
	if err != nil {
		m.logger.Warnw("screen capture unavailable", "error", err)
		return domain.ErrMediaUnavailable
	}
	m.screen = screen
	m.screen.SetAudioEnabled(m.local.AudioEnabled)
	m.screen.SetVideoEnabled(true)
	// The OS-level stop control ends the source without us asking.
	m.screen.SetOnEnded(func() {
		m.run(m.revertToCamera)
	})
	m.local.ScreenSharing = true
	m.swapSource(screen)
	m.notifier.LocalMediaChanged(m.local)
	m.logger.Infow("screen share started")
	return nil
}

func (m *mediaSessionManager) StopScreenShare() {
	if !m.local.ScreenSharing {
		return
	}
	if m.screen != nil {
		m.screen.Close()
	}
	m.revertToCamera()
}

// revertToCamera switches every active call back to the camera source. Safe
// to reach from both the user action and the source-ended callback.
func (m *mediaSessionManager) revertToCamera() {
	if !m.local.ScreenSharing {
		return
	}
	m.screen = nil
	m.local.ScreenSharing = false
	m.swapSource(m.camera)
	m.notifier.LocalMediaChanged(m.local)
	m.logger.Infow("screen share stopped, reverted to camera")
}

// swapSource substitutes the outgoing media on all active calls in place;
// no call is renegotiated.
func (m *mediaSessionManager) swapSource(src ports.MediaSource) {
	for peer, call := range m.calls {
		if err := call.SetSource(src); err != nil {
			m.logger.Warnw("failed to swap outgoing media", "peer", peer, "error", err)
		}
	}
}

func (m *mediaSessionManager) LocalState() domain.LocalMediaState {
	return m.local
}

func (m *mediaSessionManager) ClosePeer(peer domain.PeerID) {
	delete(m.pending, peer)
	call, ok := m.calls[peer]
	if !ok {
		return
	}
	delete(m.calls, peer)
	m.store.DetachCall(peer)
	call.Close()
	m.metrics.CallsActive(len(m.calls))
}

func (m *mediaSessionManager) CloseAll() {
	if m.closed {
		return
	}
	m.closed = true
	for peer, call := range m.calls {
		call.Close()
		delete(m.calls, peer)
	}
	if m.screen != nil {
		m.screen.Close()
		m.screen = nil
	}
	if m.camera != nil {
		m.camera.Close()
		m.camera = nil
	}
	m.metrics.CallsActive(0)
}

func (m *mediaSessionManager) currentSource() ports.MediaSource {
	if m.screen != nil {
		return m.screen
	}
	return m.camera
}
