package game

import (
	"math"
	"math/rand"
	"testing"

	"github.com/dcrodman/pongserver/internal/core"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func newTestBall() *Ball {
	return NewBall(core.DefaultConfig().Match.Physics, rand.New(rand.NewSource(7)))
}

func TestBall_Reset(t *testing.T) {
	b := newTestBall()
	sawLeft, sawRight := false, false

	for i := 0; i < 200; i++ {
		b.X, b.Y, b.VX, b.VY = 3, 4, 5, 6
		b.Reset()

		if b.X != 50 || b.Y != 50 {
			t.Fatalf("expected the ball to be served from (50, 50), got (%v, %v)", b.X, b.Y)
		}
		if speed := math.Abs(b.VX); speed < 0.05 || speed >= 0.08 {
			t.Fatalf("serve speed %v outside [0.05, 0.08)", speed)
		}
		if math.Abs(b.VY) > 0.01 {
			t.Fatalf("vertical serve component %v outside [-0.01, 0.01]", b.VY)
		}
		sawLeft = sawLeft || b.VX < 0
		sawRight = sawRight || b.VX > 0
	}

	if !sawLeft || !sawRight {
		t.Errorf("expected serves toward both sides (left = %v, right = %v)", sawLeft, sawRight)
	}
}

func TestBall_Update(t *testing.T) {
	tests := []struct {
		name          string
		x, y, vx, vy  float64
		wantGoal      Side
		wantScored    bool
		wantY, wantVY float64
	}{
		{name: "moves", x: 50, y: 50, vx: 0.05, vy: 0.01, wantY: 50.01, wantVY: 0.01},
		{name: "left goal", x: 0.01, y: 50, vx: -0.05, wantGoal: Left, wantScored: true, wantY: 50},
		{name: "right goal", x: 99.99, y: 50, vx: 0.05, wantGoal: Right, wantScored: true, wantY: 50},
		{name: "bottom wall", x: 50, y: 0.6, vx: 0.05, vy: -0.2, wantY: 0.5, wantVY: 0.2},
		{name: "top wall", x: 50, y: 99.4, vx: 0.05, vy: 0.2, wantY: 99.5, wantVY: -0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBall()
			b.X, b.Y, b.VX, b.VY = tt.x, tt.y, tt.vx, tt.vy

			goal, scored := b.Update()
			if scored != tt.wantScored || (scored && goal != tt.wantGoal) {
				t.Errorf("Update() = (%v, %v), want (%v, %v)", goal, scored, tt.wantGoal, tt.wantScored)
			}
			if !approxEqual(b.Y, tt.wantY) || !approxEqual(b.VY, tt.wantVY) {
				t.Errorf("expected y = %v, vy = %v; got y = %v, vy = %v", tt.wantY, tt.wantVY, b.Y, b.VY)
			}
		})
	}
}

func TestBall_Collide(t *testing.T) {
	tests := []struct {
		name         string
		x, y, vx     float64
		left, right  float64
		wantHit      bool
		wantX, wantV float64
	}{
		{name: "left paddle", x: 0.03, y: 50.1, vx: -0.06, left: 50, right: 20, wantHit: true, wantX: 0.05, wantV: 0.06 * 1.005},
		{name: "right paddle", x: 99.97, y: 19.9, vx: 0.07, left: 50, right: 20, wantHit: true, wantX: 99.95, wantV: -0.07 * 1.005},
		{name: "left miss", x: 0.03, y: 51, vx: -0.06, left: 50, right: 20, wantX: 0.03, wantV: -0.06},
		{name: "right miss uses the right paddle", x: 99.97, y: 50, vx: 0.07, left: 50, right: 20, wantX: 99.97, wantV: 0.07},
		{name: "outside band", x: 1, y: 50, vx: -0.06, left: 50, right: 50, wantX: 1, wantV: -0.06},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBall()
			b.X, b.Y, b.VX = tt.x, tt.y, tt.vx

			if hit := b.Collide(tt.left, tt.right); hit != tt.wantHit {
				t.Errorf("Collide() = %v, want %v", hit, tt.wantHit)
			}
			if !approxEqual(b.X, tt.wantX) || !approxEqual(b.VX, tt.wantV) {
				t.Errorf("expected x = %v, vx = %v; got x = %v, vx = %v", tt.wantX, tt.wantV, b.X, b.VX)
			}
		})
	}
}
