package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/core/auth"
	"github.com/dcrodman/pongserver/internal/core/data"
	"github.com/dcrodman/pongserver/internal/core/debug"
	"github.com/dcrodman/pongserver/internal/game"
	"github.com/dcrodman/pongserver/internal/server"
	"github.com/dcrodman/pongserver/internal/web"
)

// How often access keys are checked for expiration.
const keyRotationInterval = time.Minute

// Controller is the main entrypoint for the pong server. It's responsible for
// initializing any shared resources (such as database and logging), wiring the
// socket, game and HTTP servers together, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	db     *gorm.DB
	wg     sync.WaitGroup
}

// Start runs every server until ctx is cancelled. Failure to initialize any
// of them is considered terminal.
func (c *Controller) Start(ctx context.Context) error {
	defer c.Shutdown()
	// Anything already started is stopped if a later server fails to start.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var err error
	// Set up the logger, which will be used by all sub-servers.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	if c.Config.Debugging.PprofEnabled {
		debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	c.db, err = data.Initialize(c.Config.Database.Engine, c.dataSource(), c.Config.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		return err
	}

	authority := auth.NewAuthority(c.Config, c.logger, c.db)
	if err := authority.Init(); err != nil {
		return fmt.Errorf("error initializing access keys: %w", err)
	}
	c.wg.Add(1)
	go c.rotateKeys(ctx, authority)

	conns := server.NewRegistry(c.logger)
	conns.DumpFrames = c.Config.Debugging.FrameLoggingEnabled

	loop := game.NewLoop(c.Config, c.logger, conns, conns.Events())
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		loop.Run(ctx)
	}()

	frontend := &server.Frontend{
		Address:    c.Config.SocketAddress(),
		Registry:   conns,
		Gatekeeper: authority,
		Config:     c.Config,
		Logger:     c.logger,
	}
	if err := frontend.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting socket server: %w", err)
	}

	webServer := &web.Server{
		Address:    c.Config.HTTPAddress(),
		Authorizer: authority,
		Matchmaker: loop,
		Config:     c.Config,
		Logger:     c.logger,
	}
	if err := webServer.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting web server: %w", err)
	}

	c.wg.Wait()
	return ctx.Err()
}

func (c *Controller) rotateKeys(ctx context.Context, authority *auth.Authority) {
	defer c.wg.Done()

	ticker := time.NewTicker(keyRotationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := authority.RotateExpired(now); err != nil {
				c.logger.Errorf("error rotating access keys: %v", err)
			}
		}
	}
}

func (c *Controller) dataSource() string {
	if c.Config.Database.Engine == "postgres" {
		return c.Config.DatabaseURL()
	}
	return c.Config.Database.Filename
}

// Shutdown waits for every server to stop and releases shared resources.
func (c *Controller) Shutdown() {
	c.wg.Wait()
	if c.db != nil {
		if err := data.Shutdown(c.db); err != nil && c.logger != nil {
			c.logger.Errorf("error closing database: %v", err)
		}
	}
}
