package game

import (
	"math/rand"

	"github.com/dcrodman/pongserver/internal/core"
)

// Side identifies one end of the court. Left is x = 0, Right is x = 100.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

const (
	courtSize = 100.0
	// Distance from the edge of a paddle band at which a returned ball is placed.
	paddleClearance = 0.01
)

// Ball is the authoritative ball simulation. Positions are normalized to
// [0, 100] on both axes.
type Ball struct {
	X, Y   float64
	VX, VY float64

	physics core.PhysicsConfig
	rnd     *rand.Rand
}

func NewBall(physics core.PhysicsConfig, rnd *rand.Rand) *Ball {
	b := &Ball{physics: physics, rnd: rnd}
	b.Reset()
	return b
}

// Reset serves the ball from the center of the court toward a random side.
func (b *Ball) Reset() {
	b.X, b.Y = courtSize/2, courtSize/2

	b.VX = b.uniform(b.physics.ServeSpeedMin, b.physics.ServeSpeedMax)
	if b.rnd.Float64() > 0.5 {
		b.VX = -b.VX
	}
	b.VY = b.uniform(-b.physics.ServeSpread, b.physics.ServeSpread)
}

func (b *Ball) uniform(lo, hi float64) float64 {
	return b.rnd.Float64()*(hi-lo) + lo
}

// Update advances the ball by one step of its velocity and bounces it off
// the top and bottom walls. If the ball left the court, scored is true and
// goal is the side it crossed; the ball is left where it is.
func (b *Ball) Update() (goal Side, scored bool) {
	b.X += b.VX
	b.Y += b.VY

	if b.X < 0 {
		return Left, true
	} else if b.X > courtSize {
		return Right, true
	}

	margin := b.physics.BallSize / 2
	if b.Y < margin {
		b.Y = margin
		b.VY = -b.VY
	} else if b.Y > courtSize-margin {
		b.Y = courtSize - margin
		b.VY = -b.VY
	}
	return 0, false
}

// Collide returns the ball off a paddle if it is inside a paddle's band and
// within its extent. Paddle positions are on the vertical axis. The ball
// speeds up slightly with every return.
func (b *Ball) Collide(left, right float64) bool {
	p := b.physics

	switch {
	case b.X < p.PaddleBand && b.Y > left-p.PaddleHalfExtent && b.Y < left+p.PaddleHalfExtent:
		b.X = p.PaddleBand - paddleClearance
	case b.X > courtSize-p.PaddleBand && b.Y > right-p.PaddleHalfExtent && b.Y < right+p.PaddleHalfExtent:
		b.X = courtSize - p.PaddleBand + paddleClearance
	default:
		return false
	}

	b.VX = -b.VX * p.RallyMultiplier
	return true
}
