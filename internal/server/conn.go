package server

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core/debug"
	"github.com/dcrodman/pongserver/internal/frame"
)

// Frames queued for a peer that stops reading are dropped after this long.
const writeTimeout = 10 * time.Second

// Ref addresses a connection by registration path and slot index. A Ref
// outlives its connection; operations on a stale Ref fail with
// ErrConnectionGone even if the slot has since been reused.
type Ref struct {
	Path  string
	Index int

	id uint64
}

// IsZero returns whether r refers to no connection at all.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// Conn is one upgraded connection. All of its mutable state is guarded by
// the Registry that owns it.
type Conn struct {
	ref     Ref
	traceID uuid.UUID
	netConn net.Conn
	extra   interface{}

	outbound *mailbox
	// done is closed once the writer has closed the socket.
	done chan struct{}
}

func newConn(netConn net.Conn) *Conn {
	return &Conn{
		traceID:  uuid.New(),
		netConn:  netConn,
		outbound: newMailbox(),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Ref() Ref {
	return c.ref
}

func (c *Conn) RemoteAddr() string {
	return c.netConn.RemoteAddr().String()
}

func (c *Conn) logFields() logrus.Fields {
	return logrus.Fields{
		"path":   c.ref.Path,
		"index":  c.ref.Index,
		"conn":   c.traceID.String(),
		"remote": c.RemoteAddr(),
	}
}

// writeLoop drains the outbound queue onto the socket until the queue is
// closed, then closes the socket.
func (c *Conn) writeLoop(logger *logrus.Logger, dumpFrames bool) {
	defer close(c.done)
	defer c.netConn.Close()

	for {
		v, ok, done := c.outbound.pop()
		if done {
			return
		}
		if !ok {
			<-c.outbound.ready
			continue
		}

		b := v.([]byte)
		if dumpFrames {
			if f, err := frame.Decode(b); err == nil {
				debug.DumpFrame(logger, debug.Outbound, c.logFields(), f)
			}
		}

		_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.netConn.Write(b); err != nil {
			logger.WithFields(c.logFields()).Debugf("write failed: %v", err)
			// The reader sees the closed socket and releases the slot.
			c.outbound.close()
			return
		}
	}
}
