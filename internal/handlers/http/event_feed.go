package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"peermeet/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteTimeout = 5 * time.Second
	feedSendBuffer   = 64
)

// Event is one item on the UI event feed.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventFeed implements ports.Notifier by fanning session events out to
// websocket subscribers. Slow subscribers are dropped rather than allowed
// to stall the session.
type EventFeed struct {
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewEventFeed(logger *zap.SugaredLogger) *EventFeed {
	return &EventFeed{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The control API binds to loopback; the feed trusts whatever
			// reaches it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// HandleWS upgrades the request and streams events until the client leaves.
func (f *EventFeed) HandleWS(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warnw("event feed upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
	}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(client)
	f.readLoop(client)
}

func (f *EventFeed) writeLoop(client *feedClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			f.drop(client)
			return
		}
	}
	client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(feedWriteTimeout))
	client.conn.Close()
}

// readLoop discards inbound frames; the feed is one-way, reading only to
// notice disconnects.
func (f *EventFeed) readLoop(client *feedClient) {
	defer f.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *EventFeed) drop(client *feedClient) {
	f.mu.Lock()
	_, ok := f.clients[client]
	if ok {
		delete(f.clients, client)
		close(client.send)
	}
	f.mu.Unlock()
	if ok {
		client.conn.Close()
	}
}

// publish serializes once and fans out without blocking. A subscriber with
// a full buffer is disconnected.
func (f *EventFeed) publish(event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		f.logger.Errorw("event encode failed", "type", event.Type, "error", err)
		return
	}

	f.mu.Lock()
	var stale []*feedClient
	for client := range f.clients {
		select {
		case client.send <- raw:
		default:
			stale = append(stale, client)
		}
	}
	f.mu.Unlock()

	for _, client := range stale {
		f.logger.Warnw("event feed subscriber too slow, dropping")
		f.drop(client)
	}
}

// Close disconnects every subscriber.
func (f *EventFeed) Close() {
	f.mu.Lock()
	clients := make([]*feedClient, 0, len(f.clients))
	for client := range f.clients {
		clients = append(clients, client)
	}
	f.mu.Unlock()

	for _, client := range clients {
		f.drop(client)
	}
}

// --- ports.Notifier ---

func (f *EventFeed) ChatReceived(msg domain.ChatMessage) {
	f.publish(Event{Type: "chat", Payload: msg})
}

func (f *EventFeed) WaitingChanged(entries []domain.WaitingEntry) {
	f.publish(Event{Type: "waiting", Payload: gin.H{"waiting": entries}})
}

func (f *EventFeed) RosterChanged(records []domain.ParticipantRecord) {
	f.publish(Event{Type: "roster", Payload: gin.H{"participants": records}})
}

func (f *EventFeed) PresenceChanged(peer domain.PeerID, kind domain.MediaKind, enabled bool) {
	f.publish(Event{Type: "presence", Payload: gin.H{
		"peer_id": peer,
		"kind":    kind,
		"enabled": enabled,
	}})
}

func (f *EventFeed) LocalMediaChanged(state domain.LocalMediaState) {
	f.publish(Event{Type: "local-media", Payload: state})
}

func (f *EventFeed) StreamOpened(peer domain.PeerID) {
	f.publish(Event{Type: "stream-opened", Payload: gin.H{"peer_id": peer}})
}

func (f *EventFeed) StreamClosed(peer domain.PeerID) {
	f.publish(Event{Type: "stream-closed", Payload: gin.H{"peer_id": peer}})
}

func (f *EventFeed) AdmissionResolved(admitted bool) {
	f.publish(Event{Type: "admission", Payload: gin.H{"admitted": admitted}})
}

func (f *EventFeed) SessionEnded(reason string) {
	f.publish(Event{Type: "session-ended", Payload: gin.H{"reason": reason}})
}
