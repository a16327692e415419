package game

import (
	"fmt"
	"math"
	"math/rand"
	"time"
	"unicode/utf16"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/packets"
	"github.com/dcrodman/pongserver/internal/server"
)

type State int

const (
	NotStarted State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Active:
		return "active"
	default:
		return "ended"
	}
}

type Role int

const (
	Admin Role = iota
	Regular
)

const maxNameLength = 24

// Scores needed to win, indexed by the Side whose goal was crossed.
var winningScore = [2]int{11, 10}

// Sender delivers a BINARY payload to a connection.
type Sender interface {
	Send(ref server.Ref, payload []byte) error
}

// Scheduler runs fn once after d has elapsed, on the goroutine that owns the match.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Player is a slot in a Match. It exists from the moment its key is issued,
// whether or not anyone has connected with it.
type Player struct {
	Key  string
	Role Role
	// Conn is the connection currently bound to the slot, if any.
	Conn   server.Ref
	Joined bool
	Name   string
	// Ping is the last measured round trip in milliseconds.
	Ping int64
	// Position of the player's paddle on the vertical axis, 0 to 100.
	Position float64
}

// Match is one two player contest. A Match is not safe for concurrent use;
// it belongs to the Loop that created it.
type Match struct {
	Key       string
	State     State
	Scores    [2]int
	Ball      *Ball
	CreatedAt time.Time
	EndedAt   time.Time

	// players preserves creation order, which determines roster indexes and
	// the order of per-tick sends.
	players    []*Player
	byKey      map[string]*Player
	maxPlayers int
	startDelay time.Duration
	// inPlay is set once the start delay has elapsed.
	inPlay bool

	sender    Sender
	scheduler Scheduler
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewMatch(key string, cfg *core.Config, sender Sender, scheduler Scheduler, logger logrus.FieldLogger, rnd *rand.Rand, now func() time.Time) *Match {
	return &Match{
		Key:        key,
		State:      NotStarted,
		Ball:       NewBall(cfg.Match.Physics, rnd),
		CreatedAt:  now(),
		byKey:      make(map[string]*Player),
		maxPlayers: cfg.Match.MaxPlayers,
		startDelay: cfg.Match.StartDelay,
		sender:     sender,
		scheduler:  scheduler,
		logger:     logger.WithField("match", key),
		now:        now,
	}
}

func (m *Match) CreateAdmin(key string) error {
	return m.createPlayer(key, Admin)
}

func (m *Match) CreatePlayer(key string) error {
	return m.createPlayer(key, Regular)
}

func (m *Match) createPlayer(key string, role Role) error {
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicateKey
	}
	if len(m.players) >= m.maxPlayers {
		return ErrMatchFull
	}

	p := &Player{
		Key:      key,
		Role:     role,
		Name:     fmt.Sprintf("Player %d", len(m.players)+1),
		Position: courtSize / 2,
	}
	m.players = append(m.players, p)
	m.byKey[key] = p
	return nil
}

// JoinPlayer binds ref to a slot that hasn't joined yet and announces the
// player to everyone else already in the lobby.
func (m *Match) JoinPlayer(key string, ref server.Ref) error {
	p, ok := m.byKey[key]
	if !ok {
		return ErrPlayerNotFound
	}
	if p.Joined {
		return ErrAlreadyJoined
	}

	p.Joined = true
	p.Conn = ref

	join := (&packets.PlayerJoin{Player: m.info(p)}).Encode()
	for _, other := range m.players {
		if other != p && other.Joined {
			m.send(other, join)
		}
	}

	m.logger.WithField("player", p.Name).Info("player joined")
	return nil
}

// UpdateSocket rebinds a slot to a new connection.
func (m *Match) UpdateSocket(key string, ref server.Ref) error {
	p, ok := m.byKey[key]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Conn = ref
	return nil
}

// DropSocket unbinds ref from whichever slot holds it.
func (m *Match) DropSocket(ref server.Ref) bool {
	for _, p := range m.players {
		if p.Conn == ref {
			p.Conn = server.Ref{}
			return true
		}
	}
	return false
}

func (m *Match) HasPlayer(key string) bool {
	_, ok := m.byKey[key]
	return ok
}

func (m *Match) HasPlayerName(name string) bool {
	for _, p := range m.players {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (m *Match) Player(key string) (*Player, bool) {
	p, ok := m.byKey[key]
	return p, ok
}

func (m *Match) PlayerCount() int {
	return len(m.players)
}

// Joinable returns whether another player slot can be issued.
func (m *Match) Joinable() bool {
	return m.State == NotStarted && len(m.players) < m.maxPlayers
}

// connected returns whether any slot has a live connection.
func (m *Match) connected() bool {
	for _, p := range m.players {
		if !p.Conn.IsZero() {
			return true
		}
	}
	return false
}

// SetName renames a player. name must already be trimmed.
func (m *Match) SetName(key, name string) error {
	p, ok := m.byKey[key]
	if !ok {
		return ErrPlayerNotFound
	}
	// Clients measure names in UTF-16 code units, the unit of the wire text.
	if n := len(utf16.Encode([]rune(name))); n == 0 || n > maxNameLength || m.HasPlayerName(name) {
		return ErrInvalidName
	}
	p.Name = name
	return nil
}

func (m *Match) SetPing(key string, ms int64) {
	if p, ok := m.byKey[key]; ok {
		p.Ping = ms
	}
}

// SetPosition stores a paddle position, clamped to the court. NaN is ignored.
func (m *Match) SetPosition(key string, pos float64) {
	p, ok := m.byKey[key]
	if !ok || math.IsNaN(pos) {
		return
	}
	if pos < 0 {
		pos = 0
	} else if pos > courtSize {
		pos = courtSize
	}
	p.Position = pos
}

func (m *Match) info(p *Player) packets.PlayerInfo {
	index := 0
	for i, other := range m.players {
		if other == p {
			index = i
		}
	}
	return packets.PlayerInfo{Index: index, Name: p.Name, Ping: p.Ping}
}

// Roster returns every player slot, joined or not, in creation order.
func (m *Match) Roster() []packets.PlayerInfo {
	roster := make([]packets.PlayerInfo, len(m.players))
	for i, p := range m.players {
		roster[i] = packets.PlayerInfo{Index: i, Name: p.Name, Ping: p.Ping}
	}
	return roster
}

// PlayerList returns the encoded roster with the given message type.
func (m *Match) PlayerList(msgType uint16) []byte {
	return (&packets.PlayerList{Type: msgType, Players: m.Roster()}).Encode()
}

// BroadcastRoster pushes the roster to every joined player while the match
// is still in the lobby.
func (m *Match) BroadcastRoster() {
	if m.State != NotStarted {
		return
	}
	list := m.PlayerList(packets.UpdateType)
	for _, p := range m.players {
		if p.Joined {
			m.send(p, list)
		}
	}
}

// Start moves the match to Active on behalf of the admin, acknowledges it to
// everyone and schedules the serve after the start delay. It changes nothing
// if any precondition fails.
func (m *Match) Start(key string) error {
	if m.State != NotStarted {
		return ErrInvalidState
	}
	if len(m.players) != 2 {
		return ErrNotEnoughPlayers
	}
	if p, ok := m.byKey[key]; !ok || p.Role != Admin {
		return ErrNotAdmin
	}

	m.State = Active
	m.broadcast((&packets.StartGameAck{OK: true}).Encode())
	m.scheduler.After(m.startDelay, m.begin)

	m.logger.Info("match starting")
	return nil
}

// begin puts the ball in play.
func (m *Match) begin() {
	if m.State != Active {
		return
	}
	m.broadcast(packets.Start{}.Encode())
	m.Ball.Reset()
	m.inPlay = true
}

// Tick runs one step of the simulation: each player is sent their opponent's
// paddle, the ball moves and bounces, and both players are sent its new position.
func (m *Match) Tick() {
	if m.State != Active || !m.inPlay {
		return
	}
	first, second := m.players[0], m.players[1]

	m.send(first, (&packets.PlayerUpdate{Position: float32(second.Position)}).Encode())
	m.send(second, (&packets.PlayerUpdate{Position: float32(first.Position)}).Encode())

	if goal, scored := m.Ball.Update(); scored {
		m.score(goal)
		if m.State != Active {
			return
		}
	}
	m.Ball.Collide(first.Position, second.Position)

	ball := (&packets.BallUpdate{X: float32(m.Ball.X), Y: float32(m.Ball.Y)}).Encode()
	m.send(first, ball)
	m.send(second, ball)
}

// score credits the side whose goal the ball crossed, serves again and ends
// the match once that side reaches its winning score.
func (m *Match) score(goal Side) {
	m.Ball.Reset()
	m.Scores[goal]++

	m.logger.WithFields(logrus.Fields{"left": m.Scores[Left], "right": m.Scores[Right]}).Debug("score")

	if m.Scores[goal] < winningScore[goal] {
		return
	}

	m.broadcast((&packets.GameUpdate{Winner: uint16(goal)}).Encode())
	m.State = Ended
	m.EndedAt = m.now()
	m.inPlay = false

	m.logger.Infof("match won by %s side", goal)
}

func (m *Match) broadcast(payload []byte) {
	for _, p := range m.players {
		m.send(p, payload)
	}
}

func (m *Match) send(p *Player, payload []byte) {
	if p.Conn.IsZero() {
		return
	}
	if err := m.sender.Send(p.Conn, payload); err != nil {
		m.logger.WithField("player", p.Name).Debugf("send failed: %v", err)
	}
}
