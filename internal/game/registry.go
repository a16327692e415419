// Package game implements matches, the registry that owns them and the loop
// that drives both from socket events and timers.
package game

import (
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/core/keygen"
	"github.com/dcrodman/pongserver/internal/server"
)

// Registration paths of the two sub-protocols.
const (
	LobbyPath = "/lobby"
	PlayPath  = "/play"
)

const (
	matchKeyLength  = 16
	adminKeyLength  = 16
	playerKeyLength = 12
	// Attempts at generating a key that isn't already in use.
	keyAttempts = 8
)

// Connections is the part of the connection registry the game depends on.
type Connections interface {
	Sender
	Disconnect(ref server.Ref, reason string, sendCloseFrame bool) error
	SetExtraInfo(ref server.Ref, info interface{})
	ExtraInfo(ref server.Ref) (interface{}, bool)
}

// Registry creates and destroys matches, issues their credentials and routes
// socket events to them. It is not safe for concurrent use; the Loop owns it.
type Registry struct {
	Config *core.Config
	Logger *logrus.Logger

	conns     Connections
	scheduler Scheduler
	available int
	matches   map[string]*Match

	rnd *rand.Rand
	now func() time.Time
}

func NewRegistry(cfg *core.Config, logger *logrus.Logger, conns Connections, scheduler Scheduler) *Registry {
	return &Registry{
		Config:    cfg,
		Logger:    logger,
		conns:     conns,
		scheduler: scheduler,
		available: cfg.Match.MaxMatches,
		matches:   make(map[string]*Match),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// Available returns how many more matches can be created.
func (r *Registry) Available() int {
	return r.available
}

func (r *Registry) Match(key string) (*Match, bool) {
	m, ok := r.matches[key]
	return m, ok
}

// CreateMatch creates an empty match and returns its key.
func (r *Registry) CreateMatch() (string, error) {
	if r.available <= 0 {
		return "", ErrNoCapacity
	}

	key := keygen.String(matchKeyLength, true)
	for i := 1; i < keyAttempts && r.matches[key] != nil; i++ {
		key = keygen.String(matchKeyLength, true)
	}
	if r.matches[key] != nil {
		return "", ErrDuplicateKey
	}

	r.matches[key] = NewMatch(key, r.Config, r.conns, r.scheduler, r.Logger, r.rnd, r.now)
	r.available--

	r.Logger.WithField("match", key).Info("match created")
	return key, nil
}

// IssueAdminKey creates an admin slot in the match and returns its key.
func (r *Registry) IssueAdminKey(matchKey string) (string, error) {
	return r.issueKey(matchKey, adminKeyLength, (*Match).CreateAdmin)
}

// IssuePlayerKey creates a regular player slot in the match and returns its key.
func (r *Registry) IssuePlayerKey(matchKey string) (string, error) {
	return r.issueKey(matchKey, playerKeyLength, (*Match).CreatePlayer)
}

func (r *Registry) issueKey(matchKey string, length int, create func(*Match, string) error) (string, error) {
	m, ok := r.matches[matchKey]
	if !ok {
		return "", ErrMatchNotFound
	}

	for i := 0; i < keyAttempts; i++ {
		key := keygen.String(length, true)
		err := create(m, key)
		if err == nil {
			return key, nil
		} else if !errors.Is(err, ErrDuplicateKey) {
			return "", err
		}
	}
	return "", ErrDuplicateKey
}

// IsJoinable returns whether the match exists, hasn't started and has a free slot.
func (r *Registry) IsJoinable(matchKey string) bool {
	m, ok := r.matches[matchKey]
	return ok && m.Joinable()
}

// Tick advances every match in play.
func (r *Registry) Tick() {
	for _, m := range r.matches {
		m.Tick()
	}
}

// BroadcastRosters pushes the roster of every match still in its lobby.
func (r *Registry) BroadcastRosters() {
	for _, m := range r.matches {
		m.BroadcastRoster()
	}
}

// Reap destroys matches that ended at least ReclaimAfter ago, and lobbies
// older than IdleTimeout with nobody connected, returning their capacity.
func (r *Registry) Reap(now time.Time) {
	idle := r.Config.Match.IdleTimeout

	for key, m := range r.matches {
		switch {
		case m.State == Ended && now.Sub(m.EndedAt) >= r.Config.Match.ReclaimAfter:
		case m.State == NotStarted && idle > 0 && now.Sub(m.CreatedAt) >= idle && !m.connected():
		default:
			continue
		}
		r.destroy(key, m)
	}
}

func (r *Registry) destroy(key string, m *Match) {
	for _, p := range m.players {
		if !p.Conn.IsZero() {
			_ = r.conns.Disconnect(p.Conn, "Game over", true)
		}
	}
	delete(r.matches, key)
	r.available++

	r.Logger.WithFields(logrus.Fields{"match": key, "state": m.State}).Info("match reclaimed")
}
