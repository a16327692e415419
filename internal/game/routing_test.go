package game

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/pongserver/internal/core/bytes"
	"github.com/dcrodman/pongserver/internal/frame"
	"github.com/dcrodman/pongserver/internal/packets"
	"github.com/dcrodman/pongserver/internal/server"
)

func authMessage(ref server.Ref, matchKey, playerKey string) server.Event {
	return message(ref, (&packets.AuthRequest{MatchKey: matchKey, PlayerKey: playerKey}).Encode())
}

func TestRouting_LobbyAuth(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, playerKey := r.newMatch(t)

	tests := []struct {
		name      string
		matchKey  string
		playerKey string
		want      [][]byte
	}{
		{
			name:      "unknown match",
			matchKey:  "nope",
			playerKey: adminKey,
			want:      [][]byte{(&packets.AuthResult{Reason: packets.ReasonInvalidMatchKey}).Encode()},
		},
		{
			name:      "unknown player",
			matchKey:  m.Key,
			playerKey: "nope",
			want:      [][]byte{(&packets.AuthResult{Reason: packets.ReasonInvalidPlayerKey}).Encode()},
		},
		{
			name:      "success",
			matchKey:  m.Key,
			playerKey: adminKey,
			want: [][]byte{
				(&packets.AuthResult{OK: true}).Encode(),
				m.PlayerList(packets.PlayerListType),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.HandleEvent(authMessage(lobbyRef(0), tt.matchKey, tt.playerKey))
			if diff := cmp.Diff(tt.want, r.conns.take(lobbyRef(0))); diff != "" {
				t.Errorf("unexpected reply; diff:\n%s", diff)
			}
		})
	}

	if len(r.conns.disconnected) != 0 {
		t.Errorf("expected failed auth to leave the connection open, disconnected %v", r.conns.disconnected)
	}
	s := r.session(lobbyRef(0))
	if diff := cmp.Diff(session{MatchKey: m.Key, PlayerKey: adminKey, Authenticated: true}, s); diff != "" {
		t.Errorf("unexpected session; diff:\n%s", diff)
	}
	if p, _ := m.Player(adminKey); !p.Joined || p.Conn != lobbyRef(0) {
		t.Errorf("expected the admin to be joined on lobby 0, got %+v", p)
	}

	// The second player's join is announced to the admin.
	r.HandleEvent(authMessage(lobbyRef(1), m.Key, playerKey))
	join := (&packets.PlayerJoin{Player: packets.PlayerInfo{Index: 1, Name: "Player 2"}}).Encode()
	if diff := cmp.Diff([][]byte{join}, r.conns.take(lobbyRef(0))); diff != "" {
		t.Errorf("unexpected announcement; diff:\n%s", diff)
	}

	// Reconnecting to the lobby rebinds the slot.
	r.HandleEvent(authMessage(lobbyRef(2), m.Key, adminKey))
	if p, _ := m.Player(adminKey); p.Conn != lobbyRef(2) {
		t.Errorf("expected the admin to be rebound to lobby 2, got %+v", p.Conn)
	}
}

func TestRouting_Unauthenticated(t *testing.T) {
	tests := []struct {
		name    string
		event   server.Event
		wantOut bool
	}{
		{name: "set name", event: message(lobbyRef(0), (&packets.SetName{Name: "Ann"}).Encode()), wantOut: true},
		{name: "paddle", event: message(playRef(0), (&packets.PlayerUpdate{Position: 3}).Encode()), wantOut: true},
		{name: "no type", event: message(lobbyRef(0), []byte{1}), wantOut: true},
		{
			name: "text frame",
			event: server.Event{
				Type:  server.MessageEvent,
				Ref:   lobbyRef(0),
				Frame: &frame.Frame{Opcode: frame.Text, Masked: true, Payload: []byte("hi")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			r.HandleEvent(tt.event)

			if got := len(r.conns.disconnected) == 1; got != tt.wantOut {
				t.Errorf("expected disconnect = %v, disconnected %v", tt.wantOut, r.conns.disconnected)
			}
			if len(r.conns.sent) != 0 {
				t.Errorf("expected no replies, sent %v", r.conns.sent)
			}
		})
	}
}

func TestRouting_SetName(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, _ := r.newMatch(t)
	r.HandleEvent(authMessage(lobbyRef(0), m.Key, adminKey))
	r.conns.reset()

	r.HandleEvent(message(lobbyRef(0), (&packets.SetName{Name: "  Ann  "}).Encode()))
	if sent := r.conns.take(lobbyRef(0)); len(sent) != 0 {
		t.Errorf("expected no reply to a valid name, got %v", sent)
	}
	if p, _ := m.Player(adminKey); p.Name != "Ann" {
		t.Errorf("expected the trimmed name to be stored, got %q", p.Name)
	}

	for _, name := range []string{"   ", "Player 2", "this name is far too long to fit"} {
		r.HandleEvent(message(lobbyRef(0), (&packets.SetName{Name: name}).Encode()))
		if diff := cmp.Diff([][]byte{packets.NameError{}.Encode()}, r.conns.take(lobbyRef(0))); diff != "" {
			t.Errorf("expected NAME_ERROR for %q; diff:\n%s", name, diff)
		}
	}
}

func TestRouting_Ping(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, _ := r.newMatch(t)
	r.HandleEvent(authMessage(lobbyRef(0), m.Key, adminKey))
	p, _ := m.Player(adminKey)

	now := r.clock.now.UnixMilli()
	r.HandleEvent(message(lobbyRef(0), (&packets.LobbyPing{Timestamp: now - 35}).Encode()))
	if p.Ping != 35 {
		t.Errorf("expected ping 35, got %d", p.Ping)
	}

	// Timestamps from the future and garbage are ignored.
	r.HandleEvent(message(lobbyRef(0), (&packets.LobbyPing{Timestamp: now + 1000}).Encode()))
	garbage := append(bytes.PutUint16LE(nil, packets.LobbyPingType), bytes.ConvertToUtf16("later")...)
	r.HandleEvent(message(lobbyRef(0), garbage))
	if p.Ping != 35 {
		t.Errorf("expected ping to stay 35, got %d", p.Ping)
	}

	r.clock.now = r.clock.now.Add(time.Second)
	r.HandleEvent(message(lobbyRef(0), append(bytes.PutUint16LE(nil, packets.LobbyPingType),
		bytes.ConvertToUtf16(strconv.FormatInt(now, 10)+".5")...)))
	if p.Ping != 1000 {
		t.Errorf("expected ping 1000, got %d", p.Ping)
	}
}

func TestRouting_StartGame(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, playerKey := r.newMatch(t)
	r.HandleEvent(authMessage(lobbyRef(0), m.Key, adminKey))
	r.HandleEvent(authMessage(lobbyRef(1), m.Key, playerKey))
	r.conns.reset()

	// Only the admin may start.
	r.HandleEvent(message(lobbyRef(1), packets.StartGame{}.Encode()))
	nack := (&packets.StartGameAck{OK: false}).Encode()
	if diff := cmp.Diff([][]byte{nack}, r.conns.take(lobbyRef(1))); diff != "" {
		t.Errorf("expected a failure ack; diff:\n%s", diff)
	}
	if m.State != NotStarted {
		t.Fatalf("expected the match not to start, got %v", m.State)
	}

	r.HandleEvent(message(lobbyRef(0), packets.StartGame{}.Encode()))
	ack := (&packets.StartGameAck{OK: true}).Encode()
	for _, ref := range []server.Ref{lobbyRef(0), lobbyRef(1)} {
		if diff := cmp.Diff([][]byte{ack}, r.conns.take(ref)); diff != "" {
			t.Errorf("expected a success ack to %v; diff:\n%s", ref, diff)
		}
	}

	// The lobby is closed once the match is active.
	r.HandleEvent(message(lobbyRef(1), (&packets.SetName{Name: "Bob"}).Encode()))
	if diff := cmp.Diff([]server.Ref{lobbyRef(1)}, r.conns.disconnected, cmp.Comparer(func(a, b server.Ref) bool { return a == b })); diff != "" {
		t.Errorf("expected the lobby connection to be dropped; diff:\n%s", diff)
	}
}

func TestRouting_Play(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, playerKey := r.newMatch(t)

	// The play path only accepts players of an active match.
	r.HandleEvent(authMessage(playRef(0), m.Key, adminKey))
	wantState := (&packets.AuthResult{Reason: packets.ReasonInvalidState}).Encode()
	if diff := cmp.Diff([][]byte{wantState}, r.conns.take(playRef(0))); diff != "" {
		t.Errorf("unexpected reply; diff:\n%s", diff)
	}

	r.HandleEvent(authMessage(lobbyRef(0), m.Key, adminKey))
	r.HandleEvent(authMessage(lobbyRef(1), m.Key, playerKey))
	r.HandleEvent(message(lobbyRef(0), packets.StartGame{}.Encode()))
	r.conns.reset()

	r.HandleEvent(authMessage(playRef(0), m.Key, adminKey))
	r.HandleEvent(authMessage(playRef(1), m.Key, playerKey))
	ok := (&packets.AuthResult{OK: true}).Encode()
	for _, ref := range []server.Ref{playRef(0), playRef(1)} {
		if diff := cmp.Diff([][]byte{ok}, r.conns.take(ref)); diff != "" {
			t.Errorf("unexpected reply to %v; diff:\n%s", ref, diff)
		}
	}
	if p, _ := m.Player(playerKey); p.Conn != playRef(1) || !p.Joined {
		t.Errorf("expected the player to be rebound to play 1, got %+v", p)
	}

	r.HandleEvent(message(playRef(1), (&packets.PlayerUpdate{Position: 120}).Encode()))
	r.HandleEvent(message(playRef(0), (&packets.PlayerUpdate{Position: 33.5}).Encode()))
	if p, _ := m.Player(playerKey); p.Position != 100 {
		t.Errorf("expected the paddle to be clamped to 100, got %v", p.Position)
	}
	if p, _ := m.Player(adminKey); p.Position != 33.5 {
		t.Errorf("expected paddle at 33.5, got %v", p.Position)
	}

	// Play pings are accepted and ignored.
	r.HandleEvent(message(playRef(0), []byte{packets.PlayPingType, 0}))
	if len(r.conns.disconnected) != 0 || len(r.conns.sent) != 0 {
		t.Errorf("expected play pings to be ignored")
	}

	// Once the match is over, play traffic is dropped.
	m.State = Ended
	r.HandleEvent(message(playRef(0), (&packets.PlayerUpdate{Position: 1}).Encode()))
	if diff := cmp.Diff([]server.Ref{playRef(0)}, r.conns.disconnected, cmp.Comparer(func(a, b server.Ref) bool { return a == b })); diff != "" {
		t.Errorf("expected the play connection to be dropped; diff:\n%s", diff)
	}
}

func TestRouting_Disconnect(t *testing.T) {
	r := newTestRegistry(t)
	m, adminKey, _ := r.newMatch(t)
	r.HandleEvent(authMessage(lobbyRef(0), m.Key, adminKey))

	r.HandleEvent(server.Event{Type: server.DisconnectEvent, Ref: lobbyRef(0)})

	p, _ := m.Player(adminKey)
	if !p.Conn.IsZero() {
		t.Errorf("expected the slot to be unbound, got %+v", p.Conn)
	}
	if !p.Joined {
		t.Errorf("expected the player to stay joined")
	}
}
