package pion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"peermeet/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DeviceConfig locates the local RTP ingest ports. A capture pipeline
// (ffmpeg, gstreamer) outside this process feeds camera audio/video and the
// screen grab to these ports; this is the headless stand-in for browser
// getUserMedia / getDisplayMedia.
type DeviceConfig struct {
	CameraAudioPort int
	CameraVideoPort int
	ScreenVideoPort int
	// ScreenIdleTimeout ends the screen source when no packets arrive for
	// this long, mirroring the OS-level "stop sharing" control.
	ScreenIdleTimeout time.Duration
}

// Devices implements ports.MediaDevices on top of local RTP ingest.
type Devices struct {
	cfg    DeviceConfig
	logger *zap.SugaredLogger
}

func NewDevices(cfg DeviceConfig, logger *zap.SugaredLogger) *Devices {
	if cfg.ScreenIdleTimeout <= 0 {
		cfg.ScreenIdleTimeout = 5 * time.Second
	}
	return &Devices{cfg: cfg, logger: logger}
}

func (d *Devices) OpenCamera(ctx context.Context) (ports.MediaSource, error) {
	return newRTPSource(sourceSpec{
		label:     "camera",
		audioPort: d.cfg.CameraAudioPort,
		videoPort: d.cfg.CameraVideoPort,
	}, d.logger)
}

func (d *Devices) OpenScreen(ctx context.Context) (ports.MediaSource, error) {
	return newRTPSource(sourceSpec{
		label:       "screen",
		videoPort:   d.cfg.ScreenVideoPort,
		idleTimeout: d.cfg.ScreenIdleTimeout,
	}, d.logger)
}

type sourceSpec struct {
	label       string
	audioPort   int
	videoPort   int
	idleTimeout time.Duration
}

// rtpSource pumps RTP from local UDP sockets into webrtc local tracks.
// Disabling a kind drops its packets without closing the socket, which is
// what a muted-but-live track looks like to the remote side.
type rtpSource struct {
	label      string
	audioTrack *webrtc.TrackLocalStaticRTP
	videoTrack *webrtc.TrackLocalStaticRTP

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool

	onEnded   atomic.Value // func()
	endedOnce sync.Once

	conns  []*net.UDPConn
	closed chan struct{}
	once   sync.Once
	logger *zap.SugaredLogger
}

func newRTPSource(spec sourceSpec, logger *zap.SugaredLogger) (*rtpSource, error) {
	s := &rtpSource{
		label:  spec.label,
		closed: make(chan struct{}),
		logger: logger.With("source", spec.label),
	}
	s.audioEnabled.Store(true)
	s.videoEnabled.Store(true)

	if spec.audioPort > 0 {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", fmt.Sprintf("peermeet-%s-audio", spec.label))
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		conn, err := listenRTP(spec.audioPort)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.audioTrack = track
		s.conns = append(s.conns, conn)
		go s.pump(conn, track, &s.audioEnabled, 0)
	}

	if spec.videoPort > 0 {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", fmt.Sprintf("peermeet-%s-video", spec.label))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create video track: %w", err)
		}
		conn, err := listenRTP(spec.videoPort)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.videoTrack = track
		s.conns = append(s.conns, conn)
		go s.pump(conn, track, &s.videoEnabled, spec.idleTimeout)
	}

	return s, nil
}

func listenRTP(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen rtp ingest on %d: %w", port, err)
	}
	return conn, nil
}

func (s *rtpSource) pump(conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, enabled *atomic.Bool, idleTimeout time.Duration) {
	buf := make([]byte, 1500)
	for {
		if idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(idleTimeout))
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// The feed dried up: the user stopped sharing.
				s.fireEnded()
				return
			}
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger.Warnw("rtp ingest read failed", "error", err)
			}
			return
		}
		if !enabled.Load() {
			continue
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		// Track writes surface io.ErrClosedPipe once the peer connection
		// is gone; by then the call teardown already logged the reason.
		if err := track.WriteRTP(&pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Debugw("track write failed", "error", err)
		}
	}
}

func (s *rtpSource) fireEnded() {
	s.endedOnce.Do(func() {
		if fn, ok := s.onEnded.Load().(func()); ok && fn != nil {
			fn()
		}
	})
}

func (s *rtpSource) SetAudioEnabled(enabled bool) { s.audioEnabled.Store(enabled) }
func (s *rtpSource) SetVideoEnabled(enabled bool) { s.videoEnabled.Store(enabled) }

func (s *rtpSource) SetOnEnded(fn func()) { s.onEnded.Store(fn) }

func (s *rtpSource) Close() error {
	s.once.Do(func() {
		close(s.closed)
		for _, conn := range s.conns {
			conn.Close()
		}
	})
	return nil
}

// tracks returns the local tracks to attach to a peer connection; either
// may be nil for a source without that kind.
func (s *rtpSource) tracks() (audio, video *webrtc.TrackLocalStaticRTP) {
	return s.audioTrack, s.videoTrack
}
