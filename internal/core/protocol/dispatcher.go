package protocol

import (
	"fmt"

	"peermeet/internal/core/domain"
)

// HandlerFunc handles one inbound message from a peer.
type HandlerFunc func(from domain.PeerID, env Envelope) error

// Dispatcher routes inbound envelopes to per-type handlers. Components
// register exactly one handler per message type; this is the single routing
// point that replaces per-connection switch statements.
type Dispatcher struct {
	handlers map[MessageType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[MessageType]HandlerFunc)}
}

// Register installs a handler for t. Registering the same type twice is a
// programming error and panics at wiring time.
func (d *Dispatcher) Register(t MessageType, h HandlerFunc) {
	if _, dup := d.handlers[t]; dup {
		panic(fmt.Sprintf("protocol: duplicate handler for %q", t))
	}
	d.handlers[t] = h
}

// Dispatch routes env to its handler. Unknown message types are ignored so
// newer peers can speak a superset of this schema.
func (d *Dispatcher) Dispatch(from domain.PeerID, env Envelope) error {
	h, ok := d.handlers[env.Type]
	if !ok {
		return nil
	}
	return h(from, env)
}

// Handles reports whether a handler is registered for t.
func (d *Dispatcher) Handles(t MessageType) bool {
	_, ok := d.handlers[t]
	return ok
}
