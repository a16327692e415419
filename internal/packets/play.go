package packets

import (
	"fmt"

	"github.com/dcrodman/pongserver/internal/core/bytes"
)

// Play message types.
const (
	PlayAuthType     = AuthType
	StartType        = 0x01
	PlayerUpdateType = 0x02
	BallUpdateType   = 0x03
	GameUpdateType   = 0x04
	PlayPingType     = 0x05
)

// Start tells both players the ball is in play.
type Start struct{}

func (Start) Encode() []byte {
	return header(StartType, 0)
}

// PlayerUpdate is a paddle position. Clients send their own and the server
// relays the opponent's every tick.
type PlayerUpdate struct {
	Position float32
}

func (u *PlayerUpdate) Encode() []byte {
	return bytes.PutFloat32BE(header(PlayerUpdateType, 4), u.Position)
}

func ParsePlayerUpdate(payload []byte) (*PlayerUpdate, error) {
	pos, ok := bytes.Float32BE(body(payload))
	if !ok {
		return nil, fmt.Errorf("%w: missing paddle position", ErrMalformed)
	}
	return &PlayerUpdate{Position: pos}, nil
}

type BallUpdate struct {
	X, Y float32
}

func (u *BallUpdate) Encode() []byte {
	b := bytes.PutFloat32BE(header(BallUpdateType, 8), u.X)
	return bytes.PutFloat32BE(b, u.Y)
}

func ParseBallUpdate(payload []byte) (*BallUpdate, error) {
	b := body(payload)
	x, okX := bytes.Float32BE(b)
	if !okX || len(b) < 8 {
		return nil, fmt.Errorf("%w: missing ball position", ErrMalformed)
	}
	y, _ := bytes.Float32BE(b[4:])
	return &BallUpdate{X: x, Y: y}, nil
}

// GameUpdate announces the winning side.
type GameUpdate struct {
	Winner uint16
}

func (u *GameUpdate) Encode() []byte {
	return bytes.PutUint16LE(header(GameUpdateType, 2), u.Winner)
}

func ParseGameUpdate(payload []byte) (*GameUpdate, error) {
	winner, ok := bytes.Uint16LE(body(payload))
	if !ok {
		return nil, fmt.Errorf("%w: missing winner", ErrMalformed)
	}
	return &GameUpdate{Winner: winner}, nil
}
