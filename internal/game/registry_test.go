package game

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_CreateMatch(t *testing.T) {
	r := newTestRegistry(t)
	r.available = 2

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		key, err := r.CreateMatch()
		if err != nil {
			t.Fatalf("CreateMatch() returned an unexpected error: %v", err)
		}
		if len(key) != matchKeyLength || seen[key] {
			t.Errorf("expected a fresh %d character key, got %q", matchKeyLength, key)
		}
		seen[key] = true
	}

	if _, err := r.CreateMatch(); !errors.Is(err, ErrNoCapacity) {
		t.Errorf("expected ErrNoCapacity, got %v", err)
	}
	if r.Available() != 0 || len(r.matches) != 2 {
		t.Errorf("expected a failed create to change nothing, available = %d, matches = %d", r.Available(), len(r.matches))
	}
}

func TestRegistry_IssueKeys(t *testing.T) {
	r := newTestRegistry(t)
	key, _ := r.CreateMatch()

	adminKey, err := r.IssueAdminKey(key)
	if err != nil || len(adminKey) != adminKeyLength {
		t.Fatalf("IssueAdminKey() = %q, %v", adminKey, err)
	}
	if !r.IsJoinable(key) {
		t.Errorf("expected the match to be joinable with one player")
	}

	playerKey, err := r.IssuePlayerKey(key)
	if err != nil || len(playerKey) != playerKeyLength {
		t.Fatalf("IssuePlayerKey() = %q, %v", playerKey, err)
	}
	if r.IsJoinable(key) {
		t.Errorf("expected a full match not to be joinable")
	}

	if _, err := r.IssuePlayerKey(key); !errors.Is(err, ErrMatchFull) {
		t.Errorf("expected ErrMatchFull, got %v", err)
	}
	if _, err := r.IssueAdminKey("missing"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
	if r.IsJoinable("missing") {
		t.Errorf("expected an unknown match not to be joinable")
	}
}

func TestRegistry_Reap(t *testing.T) {
	r := newTestRegistry(t)
	cfg := r.Config.Match

	ended := startedMatch(t, r)
	ended.State = Ended
	ended.EndedAt = testEpoch

	idle, _, _ := r.newMatch(t)

	busy, adminKey, _ := r.newMatch(t)
	_ = busy.JoinPlayer(adminKey, lobbyRef(0))

	active := startedMatch(t, r)

	available := r.Available()

	// Nothing is old enough yet.
	r.Reap(testEpoch.Add(cfg.ReclaimAfter - time.Second))
	if len(r.matches) != 4 {
		t.Fatalf("expected no matches to be reaped yet, have %d", len(r.matches))
	}

	r.Reap(testEpoch.Add(cfg.ReclaimAfter))
	if _, ok := r.Match(ended.Key); ok {
		t.Errorf("expected the ended match to be reclaimed")
	}
	if r.Available() != available+1 {
		t.Errorf("expected capacity to be returned, available = %d", r.Available())
	}
	// Its players are disconnected.
	if len(r.conns.disconnected) != 2 {
		t.Errorf("expected both players of the ended match to be disconnected, got %v", r.conns.disconnected)
	}

	r.Reap(testEpoch.Add(cfg.IdleTimeout))
	if _, ok := r.Match(idle.Key); ok {
		t.Errorf("expected the idle lobby to be reclaimed")
	}
	if _, ok := r.Match(busy.Key); !ok {
		t.Errorf("expected a lobby with a connected player to survive")
	}
	if _, ok := r.Match(active.Key); !ok {
		t.Errorf("expected an active match to survive")
	}
}
