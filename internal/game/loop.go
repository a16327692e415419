package game

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/server"
)

// How often finished and idle matches are looked for.
const reapInterval = time.Second

// Loop is the single goroutine that owns the match Registry. Socket events,
// simulation ticks, roster broadcasts, delayed callbacks and calls from other
// goroutines are all run on it one at a time.
type Loop struct {
	Config   *core.Config
	Logger   *logrus.Logger
	Registry *Registry

	events <-chan server.Event
	calls  chan func()
	done   chan struct{}
	once   sync.Once
}

func NewLoop(cfg *core.Config, logger *logrus.Logger, conns Connections, events <-chan server.Event) *Loop {
	l := &Loop{
		Config: cfg,
		Logger: logger,
		events: events,
		calls:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	l.Registry = NewRegistry(cfg, logger, conns, l)
	return l
}

// Run processes work until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	tick := time.NewTicker(l.Config.Match.TickInterval)
	defer tick.Stop()
	roster := time.NewTicker(l.Config.Match.RosterInterval)
	defer roster.Stop()
	reaper := time.NewTicker(reapInterval)
	defer reaper.Stop()

	l.Logger.Info("[game] match loop started")
	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("[game] match loop exited")
			return
		case e, ok := <-l.events:
			if !ok {
				l.events = nil
				continue
			}
			l.dispatch(func() { l.Registry.HandleEvent(e) })
		case <-tick.C:
			l.dispatch(l.Registry.Tick)
		case <-roster.C:
			l.dispatch(l.Registry.BroadcastRosters)
		case now := <-reaper.C:
			l.dispatch(func() { l.Registry.Reap(now) })
		case fn := <-l.calls:
			l.dispatch(fn)
		}
	}
}

// dispatch runs fn and keeps the loop alive if it panics.
func (l *Loop) dispatch(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			l.Logger.Errorf("[game] recovered from panic: error=%s, trace: %s", err, debug.Stack())
		}
	}()
	fn()
}

// After implements Scheduler by running fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.post(fn) })
}

func (l *Loop) post(fn func()) bool {
	select {
	case l.calls <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. If Do returns an error,
// fn did not run and never will.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	c := &call{finished: make(chan struct{})}
	if !l.post(c.run(fn)) {
		return ErrLoopStopped
	}

	select {
	case <-c.finished:
		return nil
	case <-ctx.Done():
		return c.abandon(ctx.Err())
	case <-l.done:
		return c.abandon(ErrLoopStopped)
	}
}

// call tracks a function handed to the loop by Do.
type call struct {
	mu        sync.Mutex
	started   bool
	abandoned bool
	finished  chan struct{}
}

func (c *call) run(fn func()) func() {
	return func() {
		defer close(c.finished)

		c.mu.Lock()
		if c.abandoned {
			c.mu.Unlock()
			return
		}
		c.started = true
		c.mu.Unlock()

		fn()
	}
}

// abandon cancels the call if the loop hasn't picked it up yet and returns
// err. A call that already started is waited for and reported as done.
func (c *call) abandon(err error) error {
	c.mu.Lock()
	if !c.started {
		c.abandoned = true
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	<-c.finished
	return nil
}

// CreateMatch creates a match along with its admin key.
func (l *Loop) CreateMatch(ctx context.Context) (string, string, error) {
	var matchKey, adminKey string
	var err error

	doErr := l.Do(ctx, func() {
		if matchKey, err = l.Registry.CreateMatch(); err != nil {
			return
		}
		adminKey, err = l.Registry.IssueAdminKey(matchKey)
	})
	if doErr != nil {
		return "", "", doErr
	}
	return matchKey, adminKey, err
}

// JoinMatch issues a player key for a joinable match.
func (l *Loop) JoinMatch(ctx context.Context, matchKey string) (string, error) {
	var playerKey string
	var err error

	doErr := l.Do(ctx, func() {
		if !l.Registry.IsJoinable(matchKey) {
			err = ErrNotJoinable
			return
		}
		playerKey, err = l.Registry.IssuePlayerKey(matchKey)
	})
	if doErr != nil {
		return "", doErr
	}
	return playerKey, err
}
