package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/frame"
	"github.com/dcrodman/pongserver/internal/server"
)

var testEpoch = time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeConns records everything the game asks of the connection registry.
type fakeConns struct {
	sent         map[server.Ref][][]byte
	disconnected []server.Ref
	extra        map[server.Ref]interface{}
	gone         map[server.Ref]bool
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		sent:  make(map[server.Ref][][]byte),
		extra: make(map[server.Ref]interface{}),
		gone:  make(map[server.Ref]bool),
	}
}

func (c *fakeConns) Send(ref server.Ref, payload []byte) error {
	if c.gone[ref] {
		return server.ErrConnectionGone
	}
	c.sent[ref] = append(c.sent[ref], payload)
	return nil
}

func (c *fakeConns) Disconnect(ref server.Ref, _ string, _ bool) error {
	if c.gone[ref] {
		return server.ErrConnectionGone
	}
	c.gone[ref] = true
	c.disconnected = append(c.disconnected, ref)
	delete(c.extra, ref)
	return nil
}

func (c *fakeConns) SetExtraInfo(ref server.Ref, info interface{}) {
	if !c.gone[ref] {
		c.extra[ref] = info
	}
}

func (c *fakeConns) ExtraInfo(ref server.Ref) (interface{}, bool) {
	if c.gone[ref] {
		return nil, false
	}
	return c.extra[ref], true
}

// take returns and forgets everything sent to ref so far.
func (c *fakeConns) take(ref server.Ref) [][]byte {
	sent := c.sent[ref]
	delete(c.sent, ref)
	return sent
}

func (c *fakeConns) reset() {
	c.sent = make(map[server.Ref][][]byte)
}

// fakeScheduler holds callbacks until the test runs them.
type fakeScheduler struct {
	delays  []time.Duration
	pending []func()
}

func (s *fakeScheduler) After(d time.Duration, fn func()) {
	s.delays = append(s.delays, d)
	s.pending = append(s.pending, fn)
}

func (s *fakeScheduler) runPending() {
	pending := s.pending
	s.pending = nil
	for _, fn := range pending {
		fn()
	}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type testRegistry struct {
	*Registry
	conns *fakeConns
	sched *fakeScheduler
	clock *testClock
}

func newTestRegistry(t *testing.T) *testRegistry {
	t.Helper()

	conns := newFakeConns()
	sched := &fakeScheduler{}
	clock := &testClock{now: testEpoch}

	r := NewRegistry(core.DefaultConfig(), core.NewTestLogger(), conns, sched)
	r.rnd = rand.New(rand.NewSource(1))
	r.now = clock.Now

	return &testRegistry{Registry: r, conns: conns, sched: sched, clock: clock}
}

// newMatch creates a match with an admin and a regular player slot.
func (r *testRegistry) newMatch(t *testing.T) (m *Match, adminKey, playerKey string) {
	t.Helper()

	key, err := r.CreateMatch()
	if err != nil {
		t.Fatalf("CreateMatch() returned an unexpected error: %v", err)
	}
	if adminKey, err = r.IssueAdminKey(key); err != nil {
		t.Fatalf("IssueAdminKey() returned an unexpected error: %v", err)
	}
	if playerKey, err = r.IssuePlayerKey(key); err != nil {
		t.Fatalf("IssuePlayerKey() returned an unexpected error: %v", err)
	}
	m, _ = r.Match(key)
	return m, adminKey, playerKey
}

func lobbyRef(i int) server.Ref {
	return server.Ref{Path: LobbyPath, Index: i}
}

func playRef(i int) server.Ref {
	return server.Ref{Path: PlayPath, Index: i}
}

func message(ref server.Ref, payload []byte) server.Event {
	return server.Event{
		Type:  server.MessageEvent,
		Ref:   ref,
		Frame: &frame.Frame{Final: true, Opcode: frame.Binary, Masked: true, Payload: payload},
	}
}
