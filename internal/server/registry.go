// Package server implements the socket server: the upgrade handshake, the
// per-path connection registry and the conversion of inbound frames into events.
package server

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/frame"
)

// ErrConnectionGone is returned by operations on a Ref whose connection has
// already been disconnected.
var ErrConnectionGone = errors.New("connection gone")

// Registry owns every live connection, grouped by the path it registered on.
// Connections are addressed by their index in the path's slot list; slots of
// disconnected connections are set to nil and trailing nil slots are trimmed
// before the next registration on that path.
//
// Registry is safe for concurrent use. Events are delivered in order on the
// channel returned by Events.
type Registry struct {
	Logger *logrus.Logger
	// DumpFrames logs every outbound frame at debug level.
	DumpFrames bool

	mu     sync.Mutex
	paths  map[string][]*Conn
	nextID uint64

	events   *mailbox
	eventsCh chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRegistry(logger *logrus.Logger) *Registry {
	r := &Registry{
		Logger:   logger,
		paths:    make(map[string][]*Conn),
		events:   newMailbox(),
		eventsCh: make(chan Event),
		stop:     make(chan struct{}),
	}
	go r.pumpEvents()
	return r
}

// Events returns the channel on which every connection event is delivered.
func (r *Registry) Events() <-chan Event {
	return r.eventsCh
}

func (r *Registry) pumpEvents() {
	for {
		v, ok, done := r.events.pop()
		if done {
			return
		}
		if !ok {
			select {
			case <-r.events.ready:
				continue
			case <-r.stop:
				return
			}
		}

		select {
		case r.eventsCh <- v.(Event):
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) emit(e Event) {
	r.events.push(e)
}

// register adds c to the slot list for path and starts its writer.
func (r *Registry) register(path string, c *Conn) Ref {
	r.mu.Lock()
	slots := r.paths[path]
	for len(slots) > 0 && slots[len(slots)-1] == nil {
		slots = slots[:len(slots)-1]
	}

	r.nextID++
	c.ref = Ref{Path: path, Index: len(slots), id: r.nextID}
	r.paths[path] = append(slots, c)
	r.mu.Unlock()

	go c.writeLoop(r.Logger, r.DumpFrames)
	return c.ref
}

// lookup returns the live connection for ref. Callers must hold r.mu.
func (r *Registry) lookup(ref Ref) *Conn {
	slots := r.paths[ref.Path]
	if ref.Index < 0 || ref.Index >= len(slots) {
		return nil
	}
	c := slots[ref.Index]
	if c == nil || c.ref.id != ref.id {
		return nil
	}
	return c
}

// release nulls the slot for ref and returns the connection that held it.
func (r *Registry) release(ref Ref) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookup(ref)
	if c == nil {
		return nil
	}
	r.paths[ref.Path][ref.Index] = nil
	return c
}

// Send writes payload to the connection as a BINARY frame.
func (r *Registry) Send(ref Ref, payload []byte) error {
	return r.SendFrame(ref, frame.Binary, payload)
}

// SendText writes text to the connection as a TEXT frame.
func (r *Registry) SendText(ref Ref, text string) error {
	return r.SendFrame(ref, frame.Text, []byte(text))
}

// SendFrame queues a frame for the connection. It never blocks on the socket.
func (r *Registry) SendFrame(ref Ref, opcode frame.Opcode, payload []byte) error {
	r.mu.Lock()
	c := r.lookup(ref)
	r.mu.Unlock()

	if c == nil || !c.outbound.push(frame.Encode(opcode, payload)) {
		return ErrConnectionGone
	}
	return nil
}

// Disconnect ends the connection, optionally after writing a CLOSE frame
// carrying reason, and emits a DisconnectEvent.
func (r *Registry) Disconnect(ref Ref, reason string, sendCloseFrame bool) error {
	c := r.release(ref)
	if c == nil {
		return ErrConnectionGone
	}

	if sendCloseFrame {
		c.outbound.push(frame.Encode(frame.Close, []byte(reason)))
	}
	c.outbound.close()

	r.Logger.WithFields(c.logFields()).Infof("disconnected: %s", reason)
	r.emit(Event{Type: DisconnectEvent, Ref: ref, Reason: reason})
	return nil
}

// SetExtraInfo replaces the metadata stored with a live connection. It does
// nothing if the connection is gone.
func (r *Registry) SetExtraInfo(ref Ref, info interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.lookup(ref); c != nil {
		c.extra = info
	}
}

// ExtraInfo returns the metadata stored with a live connection.
func (r *Registry) ExtraInfo(ref Ref) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookup(ref)
	if c == nil {
		return nil, false
	}
	return c.extra, true
}

// Len returns the number of live connections across all paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, slots := range r.paths {
		for _, c := range slots {
			if c != nil {
				n++
			}
		}
	}
	return n
}

// Refs returns the live connections registered on path.
func (r *Registry) Refs(path string) []Ref {
	r.mu.Lock()
	defer r.mu.Unlock()

	var refs []Ref
	for _, c := range r.paths[path] {
		if c != nil {
			refs = append(refs, c.ref)
		}
	}
	return refs
}

// Close disconnects every connection and stops event delivery.
func (r *Registry) Close() {
	r.mu.Lock()
	var refs []Ref
	for _, slots := range r.paths {
		for _, c := range slots {
			if c != nil {
				refs = append(refs, c.ref)
			}
		}
	}
	r.mu.Unlock()

	for _, ref := range refs {
		_ = r.Disconnect(ref, "server shutting down", true)
	}
	r.stopOnce.Do(func() { close(r.stop) })
}
