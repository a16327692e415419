package game

import "errors"

var (
	ErrNoCapacity       = errors.New("no match capacity available")
	ErrMatchNotFound    = errors.New("match not found")
	ErrNotJoinable      = errors.New("match is not joinable")
	ErrDuplicateKey     = errors.New("duplicate player key")
	ErrMatchFull        = errors.New("match is full")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrAlreadyJoined    = errors.New("player already joined")
	ErrInvalidName      = errors.New("invalid name")
	ErrNotAdmin         = errors.New("player is not an admin")
	ErrInvalidState     = errors.New("invalid match state")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrLoopStopped      = errors.New("match loop stopped")
)
