package pion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"peermeet/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SignalMessage is the broker envelope used to exchange session
// descriptions between peers. The broker itself is dumb: it routes by the
// To field and never inspects payloads.
type SignalMessage struct {
	Type    string          `json:"type"` // register | offer | answer | decline
	From    domain.PeerID   `json:"from,omitempty"`
	To      domain.PeerID   `json:"to,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Purpose string          `json:"purpose,omitempty"` // control | media
	SDP     string          `json:"sdp,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type signalingClient struct {
	selfID domain.PeerID
	url    string
	logger *zap.SugaredLogger

	pingInterval time.Duration
	pongTimeout  time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan SignalMessage // call_id -> answer waiter

	onOffer func(SignalMessage)
	closed  chan struct{}
	once    sync.Once
}

func newSignalingClient(selfID domain.PeerID, brokerURL string, pingInterval, pongTimeout time.Duration, logger *zap.SugaredLogger) *signalingClient {
	return &signalingClient{
		selfID:       selfID,
		url:          brokerURL,
		logger:       logger,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		pending:      make(map[string]chan SignalMessage),
		closed:       make(chan struct{}),
	}
}

// connect dials the broker, registers the local peer id, and starts the
// read and keepalive loops.
func (s *signalingClient) connect(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("invalid broker url %q: %w", s.url, err)
	}
	q := u.Query()
	q.Set("peer_id", string(s.selfID))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("broker dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.send(SignalMessage{Type: "register", From: s.selfID}); err != nil {
		conn.Close()
		return err
	}

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	go s.readLoop(conn)
	go s.pingLoop(conn)
	return nil
}

func (s *signalingClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.closed:
			default:
				s.logger.Warnw("signaling read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "offer":
			if s.onOffer != nil {
				s.onOffer(msg)
			}
		case "answer", "decline":
			s.mu.Lock()
			waiter := s.pending[msg.CallID]
			delete(s.pending, msg.CallID)
			s.mu.Unlock()
			if waiter != nil {
				waiter <- msg
			}
		default:
			s.logger.Debugw("unknown signaling message ignored", "type", msg.Type)
		}
	}
}

func (s *signalingClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *signalingClient) send(msg SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("signaling connection not established")
	}
	return s.conn.WriteJSON(msg)
}

// exchangeOffer sends an offer and waits for the remote answer.
func (s *signalingClient) exchangeOffer(ctx context.Context, msg SignalMessage) (SignalMessage, error) {
	waiter := make(chan SignalMessage, 1)
	s.mu.Lock()
	s.pending[msg.CallID] = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.CallID)
		s.mu.Unlock()
	}()

	if err := s.send(msg); err != nil {
		return SignalMessage{}, err
	}

	select {
	case <-ctx.Done():
		return SignalMessage{}, ctx.Err()
	case <-s.closed:
		return SignalMessage{}, fmt.Errorf("signaling connection closed")
	case answer := <-waiter:
		if answer.Type == "decline" {
			return SignalMessage{}, fmt.Errorf("peer %s declined %s call", msg.To, msg.Purpose)
		}
		return answer, nil
	}
}

func (s *signalingClient) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
}
