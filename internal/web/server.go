// Package web serves the browser client, session authorization and the
// /query endpoints the client uses to create and join matches.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/core/auth"
)

const shutdownTimeout = 5 * time.Second

// Authorizer decides which peers may use the server.
type Authorizer interface {
	IsBanned(remoteAddr string) bool
	IsAuthorized(r *http.Request) bool
	TryAuth(remoteAddr string, body io.Reader) (string, error)
}

// Matchmaker creates matches and hands out player keys.
type Matchmaker interface {
	CreateMatch(ctx context.Context) (matchKey, adminKey string, err error)
	JoinMatch(ctx context.Context, matchKey string) (string, error)
}

// Server is the HTTP side of the game: static content, POST /auth and /query.
type Server struct {
	Address    string
	Authorizer Authorizer
	Matchmaker Matchmaker
	Config     *core.Config
	Logger     *logrus.Logger

	listener net.Listener
	static   http.Handler
}

// Start listens on Address and serves requests in a goroutine that is added
// to the WaitGroup. The server shuts down once ctx is cancelled.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.Address, err)
	}
	s.listener = listener

	httpServer := &http.Server{Handler: s.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Logger.Printf("[web] waiting for requests on %v", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("[web] server exited: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Warnf("[web] error shutting down: %v", err)
		}
		s.Logger.Info("[web] server exited")
	}()

	return nil
}

// Addr returns the address the server is listening on once started.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Handler returns the request handler without starting a listener.
func (s *Server) Handler() http.Handler {
	s.static = http.FileServer(http.Dir(s.Config.Web.StaticDir))
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.Logger.WithFields(logrus.Fields{"remote": r.RemoteAddr, "method": r.Method, "path": r.URL.Path})

	if s.Authorizer.IsBanned(r.RemoteAddr) {
		logger.Info("[web] refused banned peer")
		hardClose(w)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/auth" {
		s.handleAuth(w, r, logger)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/auth") && !s.Authorizer.IsAuthorized(r) {
		http.Redirect(w, r, "/auth", http.StatusFound)
		return
	}

	if r.URL.Path == "/query" && s.handleQuery(w, r, logger) {
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if target, ok := s.Config.Web.Redirects[r.URL.Path]; ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	s.static.ServeHTTP(w, r)
}

// hardClose drops the underlying connection without writing a response.
func hardClose(w http.ResponseWriter) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	_ = conn.Close()
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Connection", "close")

	cookie, err := s.Authorizer.TryAuth(r.RemoteAddr, r.Body)
	if err != nil {
		logger.Infof("[web] auth failed: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    cookie,
		Path:     "/",
		MaxAge:   int(s.Config.Auth.SessionTTL.Seconds()),
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, cookie)
	logger.Info("[web] session started")
}

// handleQuery answers the /query endpoints. It returns false if the request
// named none of them and should fall through to static content.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger) bool {
	query := r.URL.Query()

	switch query.Get("get") {
	case "ws-port":
		writeText(w, strconv.Itoa(s.Config.Socket.Port))
		return true
	}

	switch query.Get("auth") {
	case "game-create":
		matchKey, adminKey, err := s.Matchmaker.CreateMatch(r.Context())
		if err != nil {
			logger.Infof("[web] match not created: %v", err)
			writeText(w, "")
			return true
		}
		logger.WithField("match", matchKey).Info("[web] match created")
		writeText(w, matchKey+"\n"+adminKey)
		return true

	case "game-join":
		playerKey, err := s.Matchmaker.JoinMatch(r.Context(), strings.TrimSpace(query.Get("key")))
		if err != nil {
			logger.Infof("[web] player key not issued: %v", err)
			writeText(w, "")
			return true
		}
		writeText(w, playerKey)
		return true
	}

	return false
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
