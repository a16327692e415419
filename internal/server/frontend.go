package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core"
	pongdebug "github.com/dcrodman/pongserver/internal/core/debug"
	"github.com/dcrodman/pongserver/internal/frame"
)

// Peers get this long to send their upgrade request.
const handshakeTimeout = 10 * time.Second

// Frontend implements the concurrent client connection logic.
//
// It accepts TCP connections, performs the upgrade handshake, registers each
// connection with the Registry and turns the frames it reads into Registry events.
type Frontend struct {
	Address    string
	Registry   *Registry
	Gatekeeper Gatekeeper
	Config     *core.Config
	Logger     *logrus.Logger

	listener *net.TCPListener
}

// Start opens a TCP socket on Address. A blocking loop for accepting client
// connections is spun off in its own goroutine and added to the WaitGroup.
// Context cancellations will stop the server and disconnect every client.
func (f *Frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %v", f.Address, err)
	}
	f.listener = socket

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

// Addr returns the address the frontend is listening on once started.
func (f *Frontend) Addr() net.Addr {
	return f.listener.Addr()
}

func (f *Frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %s", err.Error())
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely responsible for
// accepting new connections and spinning off goroutines to handle them.
func (f *Frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Printf("[socket] waiting for connections on %v", socket.Addr())

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			connection, err := socket.AcceptTCP()
			if errors.Is(err, net.ErrClosed) {
				return
			} else if err != nil {
				f.Logger.Warnf("failed to accept connection: %s", err.Error())
				continue
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection := <-connections:
			clientWg.Add(1)
			go f.acceptClient(ctx, connection, clientWg)
		}
	}

	f.Logger.Infof("[socket] shutting down (waiting for connections to close)")
	_ = socket.Close()
	f.Registry.Close()
	clientWg.Wait()
	f.Logger.Infof("[socket] exited")
}

// acceptClient performs the upgrade handshake and, if it succeeds, registers
// the connection and moves into the frame processing loop. Rejected peers are
// disconnected without a response.
func (f *Frontend) acceptClient(ctx context.Context, connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	remote := connection.RemoteAddr().String()
	logger := f.Logger.WithField("remote", remote)

	if f.Gatekeeper.IsBanned(remote) {
		logger.Info("[socket] rejected banned peer")
		_ = connection.Close()
		return
	}
	if limit := f.Config.MaxConnections; limit > 0 && f.Registry.Len() >= limit {
		logger.Warn("[socket] rejected connection: server full")
		_ = connection.Close()
		return
	}

	_ = connection.SetReadDeadline(time.Now().Add(handshakeTimeout))
	br := bufio.NewReader(connection)

	req, err := readUpgradeRequest(br, f.Config.Socket.Paths)
	if err != nil {
		logger.Infof("[socket] %v", err)
		_ = connection.Close()
		return
	}
	req.RemoteAddr = remote

	if !f.Gatekeeper.IsAuthorized(req) {
		logger.Info("[socket] rejected unauthorized upgrade")
		_ = connection.Close()
		return
	}
	if err := writeUpgradeResponse(connection, req); err != nil {
		logger.Warnf("[socket] failed to write upgrade response: %v", err)
		_ = connection.Close()
		return
	}
	_ = connection.SetReadDeadline(time.Time{})

	c := newConn(connection)
	f.Registry.register(req.URL.Path, c)
	f.Logger.WithFields(c.logFields()).Info("[socket] accepted connection")

	f.processFrames(ctx, c, frame.NewReader(br, f.Config.Socket.MaxFrameSize))
}

// processFrames starts a blocking loop dedicated to reading frames sent from
// a client and only returns once the connection has closed.
func (f *Frontend) processFrames(ctx context.Context, c *Conn, reader *frame.Reader) {
	defer f.closeConnectionAndRecover(c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := reader.Next()
		if errors.Is(err, frame.ErrInvalidFrame) {
			f.Registry.emit(Event{Type: ErrorEvent, Ref: c.ref, Err: err})
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			f.Logger.WithFields(c.logFields()).Debugf("read failed: %v", err)
			return
		}

		fr, err := frame.Decode(raw)
		if err != nil {
			f.Registry.emit(Event{Type: ErrorEvent, Ref: c.ref, Err: err})
			continue
		}
		if f.Config.Debugging.FrameLoggingEnabled {
			pongdebug.DumpFrame(f.Logger, pongdebug.Inbound, c.logFields(), fr)
		}

		if !f.handleFrame(c, fr) {
			return
		}
	}
}

// handleFrame applies the masking policy and dispatches fr by opcode. It
// returns false once the connection has been disconnected.
func (f *Frontend) handleFrame(c *Conn, fr *frame.Frame) bool {
	if !fr.Masked {
		f.Registry.emit(Event{Type: ErrorEvent, Ref: c.ref, Err: errUnmasked})
		_ = f.Registry.Disconnect(c.ref, "Frame missing mask", true)
		return false
	}

	switch fr.Opcode {
	case frame.Text, frame.Binary:
		f.Registry.emit(Event{Type: MessageEvent, Ref: c.ref, Frame: fr})
	case frame.Close:
		_ = f.Registry.Disconnect(c.ref, "closed by peer", false)
		return false
	case frame.Ping:
		f.Registry.emit(Event{Type: PingEvent, Ref: c.ref, Frame: fr})
		_ = f.Registry.SendFrame(c.ref, frame.Pong, fr.Payload)
	case frame.Pong:
		f.Registry.emit(Event{Type: PongEvent, Ref: c.ref, Frame: fr})
	}
	return true
}

var errUnmasked = fmt.Errorf("%w: client frame is not masked", frame.ErrInvalidFrame)

// closeConnectionAndRecover is the failsafe that catches any panics, disconnects the
// client, and releases its slot regardless of the state of the connection.
func (f *Frontend) closeConnectionAndRecover(c *Conn) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.RemoteAddr(), err, debug.Stack())
	}

	// Only succeeds if nobody else already disconnected the client.
	_ = f.Registry.Disconnect(c.ref, "connection closed", false)
	<-c.done
}
