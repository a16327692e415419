package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Appended to the client's key before hashing (RFC 6455 section 1.3).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var ErrHandshakeRejected = errors.New("handshake rejected")

// Gatekeeper decides whether a peer may connect at all.
type Gatekeeper interface {
	IsBanned(remoteAddr string) bool
	IsAuthorized(r *http.Request) bool
}

// computeAcceptKey returns the Sec-WebSocket-Accept value for a client key.
func computeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// readUpgradeRequest parses the HTTP request that opens a connection and
// checks that it asks for a protocol upgrade on one of the allowed paths.
func readUpgradeRequest(br *bufio.Reader, paths []string) (*http.Request, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
	}

	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return nil, fmt.Errorf("%w: not an upgrade request", ErrHandshakeRejected)
	}
	if req.Header.Get("Sec-WebSocket-Key") == "" {
		return nil, fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrHandshakeRejected)
	}

	for _, p := range paths {
		if p == req.URL.Path {
			return req, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown path %s", ErrHandshakeRejected, req.URL.Path)
}

func writeUpgradeResponse(w io.Writer, req *http.Request) error {
	_, err := fmt.Fprintf(w,
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: WebSocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		computeAcceptKey(req.Header.Get("Sec-WebSocket-Key")),
	)
	return err
}
