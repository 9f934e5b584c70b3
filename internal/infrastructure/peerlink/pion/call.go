package pion

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const keyframeInterval = 3 * time.Second

// mediaCall wraps one audio+video peer connection. Outgoing media is
// swapped by replacing tracks on the existing senders, never by
// renegotiating.
type mediaCall struct {
	peer   domain.PeerID
	pc     *webrtc.PeerConnection
	audio  *webrtc.RTPSender
	video  *webrtc.RTPSender
	logger *zap.SugaredLogger
	once   sync.Once
}

func (c *mediaCall) Peer() domain.PeerID { return c.peer }

func (c *mediaCall) SetSource(src ports.MediaSource) error {
	audioTrack, videoTrack := sourceTracks(src)
	if c.audio != nil {
		if err := c.audio.ReplaceTrack(trackOrNil(audioTrack)); err != nil {
			return fmt.Errorf("replace audio track: %w", err)
		}
	}
	if c.video != nil {
		if err := c.video.ReplaceTrack(trackOrNil(videoTrack)); err != nil {
			return fmt.Errorf("replace video track: %w", err)
		}
	}
	return nil
}

func (c *mediaCall) Close() error {
	var err error
	c.once.Do(func() {
		err = c.pc.Close()
	})
	return err
}

// attachTransceivers adds one audio and one video transceiver so tracks can
// be replaced later even when the call starts without a local source.
func attachTransceivers(pc *webrtc.PeerConnection, src ports.MediaSource) (audio, video *webrtc.RTPSender, err error) {
	audioTr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
	if err != nil {
		return nil, nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	videoTr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
	if err != nil {
		return nil, nil, fmt.Errorf("add video transceiver: %w", err)
	}

	audio, video = audioTr.Sender(), videoTr.Sender()
	audioTrack, videoTrack := sourceTracks(src)
	if audioTrack != nil {
		if err := audio.ReplaceTrack(audioTrack); err != nil {
			return nil, nil, fmt.Errorf("attach audio track: %w", err)
		}
	}
	if videoTrack != nil {
		if err := video.ReplaceTrack(videoTrack); err != nil {
			return nil, nil, fmt.Errorf("attach video track: %w", err)
		}
	}
	return audio, video, nil
}

func sourceTracks(src ports.MediaSource) (audio, video *webrtc.TrackLocalStaticRTP) {
	rs, ok := src.(*rtpSource)
	if !ok || rs == nil {
		return nil, nil
	}
	return rs.tracks()
}

func trackOrNil(track *webrtc.TrackLocalStaticRTP) webrtc.TrackLocal {
	if track == nil {
		return nil
	}
	return track
}

// remoteForwarder ships inbound RTP to the local render sinks. All peers
// share the sink ports; the renderer demultiplexes by SSRC.
type remoteForwarder struct {
	audioSink *net.UDPConn
	videoSink *net.UDPConn
	logger    *zap.SugaredLogger
}

func newRemoteForwarder(forwardBase int, logger *zap.SugaredLogger) *remoteForwarder {
	f := &remoteForwarder{logger: logger}
	if forwardBase <= 0 {
		return f
	}
	f.audioSink = dialSink(forwardBase, logger)
	f.videoSink = dialSink(forwardBase+2, logger)
	return f
}

func dialSink(port int, logger *zap.SugaredLogger) *net.UDPConn {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		logger.Warnw("render sink unavailable", "port", port, "error", err)
		return nil
	}
	return conn
}

// consume drains one remote track, forwarding packets to the render sink
// and requesting keyframes for video.
func (f *remoteForwarder) consume(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, done <-chan struct{}) {
	isVideo := track.Kind() == webrtc.RTPCodecTypeVideo
	if isVideo {
		go f.keyframeLoop(pc, uint32(track.SSRC()), done)
	}

	sink := f.audioSink
	if isVideo {
		sink = f.videoSink
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if sink == nil {
			continue
		}
		if _, err := sink.Write(buf[:n]); err != nil && !errors.Is(err, net.ErrClosed) {
			f.logger.Debugw("render sink write failed", "error", err)
		}
	}
}

func (f *remoteForwarder) keyframeLoop(pc *webrtc.PeerConnection, ssrc uint32, done <-chan struct{}) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
			if err != nil {
				return
			}
		}
	}
}

func (f *remoteForwarder) close() {
	if f.audioSink != nil {
		f.audioSink.Close()
	}
	if f.videoSink != nil {
		f.videoSink.Close()
	}
}
