// Package packets defines the binary messages exchanged on the /lobby and /play
// paths. Every message starts with a little endian uint16 type tag. Text is
// UTF-16LE and floats are big endian.
package packets

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dcrodman/pongserver/internal/core/bytes"
)

// AuthType is shared by both paths.
const AuthType = 0x00

// Failure reasons sent with an unsuccessful AuthResult.
const (
	ReasonInvalidMatchKey  = "Invalid game key"
	ReasonInvalidPlayerKey = "Invalid player key"
	ReasonInvalidState     = "Invalid game state"
)

var ErrMalformed = errors.New("malformed message")

// Type returns the type tag of a message.
func Type(payload []byte) (uint16, error) {
	t, ok := bytes.Uint16LE(payload)
	if !ok {
		return 0, fmt.Errorf("%w: missing type tag", ErrMalformed)
	}
	return t, nil
}

func header(t uint16, size int) []byte {
	return bytes.PutUint16LE(make([]byte, 0, 2+size), t)
}

func body(payload []byte) []byte {
	if len(payload) < 2 {
		return nil
	}
	return payload[2:]
}

// AuthRequest binds a connection to a player slot.
type AuthRequest struct {
	MatchKey  string
	PlayerKey string
}

func (r *AuthRequest) Encode() []byte {
	text := bytes.ConvertToUtf16(r.MatchKey + " " + r.PlayerKey)
	return append(header(AuthType, len(text)), text...)
}

func ParseAuthRequest(payload []byte) (*AuthRequest, error) {
	fields := strings.Split(bytes.ConvertFromUtf16(body(payload)), " ")
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: expected match and player key", ErrMalformed)
	}
	return &AuthRequest{MatchKey: fields[0], PlayerKey: fields[1]}, nil
}

// AuthResult answers an AuthRequest. Reason is only sent on failure.
type AuthResult struct {
	OK     bool
	Reason string
}

func (r *AuthResult) Encode() []byte {
	if r.OK {
		return bytes.PutUint16LE(header(AuthType, 2), 1)
	}
	text := bytes.ConvertToUtf16(r.Reason)
	b := bytes.PutUint16LE(header(AuthType, 2+len(text)), 0)
	return append(b, text...)
}

func ParseAuthResult(payload []byte) (*AuthResult, error) {
	status, ok := bytes.Uint16LE(body(payload))
	if !ok {
		return nil, fmt.Errorf("%w: missing auth status", ErrMalformed)
	}
	if status == 1 {
		return &AuthResult{OK: true}, nil
	}
	return &AuthResult{Reason: bytes.ConvertFromUtf16(payload[4:])}, nil
}

// parseTimestamp reads a decimal millisecond timestamp. Fractional values are truncated.
func parseTimestamp(text string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, text)
	}
	return int64(v), nil
}
