// Package auth implements server access control: operator-issued access
// keys, the browser sessions they unlock, and address bans.
package auth

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/dcrodman/pongserver/internal/core"
	"github.com/dcrodman/pongserver/internal/core/data"
	"github.com/dcrodman/pongserver/internal/core/keygen"
)

const (
	// SessionCookie is the name of the cookie carrying the session id.
	SessionCookie = "auth"

	sessionCookieLength = 32
	// Bodies of /auth requests must be shorter than this.
	maxAuthBodyLength = 128
)

var (
	ErrMalformedRequest = errors.New("malformed auth request")
	ErrInvalidKey       = errors.New("invalid access key")
	ErrTooManySessions  = errors.New("too many sessions")
)

// Session is the state behind a session cookie.
type Session struct {
	Key     string
	Kind    data.KeyKind
	Address string
}

// Authority issues access keys and sessions and answers the authorization
// and ban checks made before a request is served. It is safe for concurrent use.
type Authority struct {
	Config *core.Config
	Logger *logrus.Logger
	DB     *gorm.DB

	mu       sync.Mutex
	sessions *sessionCache
}

func NewAuthority(cfg *core.Config, logger *logrus.Logger, db *gorm.DB) *Authority {
	return &Authority{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		sessions: newSessionCache(cfg.Auth.SessionTTL),
	}
}

// Init makes sure the configured number of keys of each kind exist, generating
// any that are missing, and logs the active keys.
func (a *Authority) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, kind := range []data.KeyKind{data.AdminKey, data.GuestKey} {
		keys, err := data.FindAccessKeys(a.DB, kind)
		if err != nil {
			return fmt.Errorf("error loading %s keys: %w", kind, err)
		}

		for i := len(keys); i < a.keyConfig(kind).Amount; i++ {
			key, err := a.createKey(kind)
			if err != nil {
				return err
			}
			keys = append(keys, *key)
		}

		label := cases.Title(language.English).String(kind.String())
		for _, k := range keys {
			a.Logger.Infof("%s key: %s", label, k.Key)
		}
	}
	return nil
}

// TryAuth starts a session for the key contained in body and returns the session
// cookie. The body is a 4 byte mask followed by the key XOR'd with the mask.
func (a *Authority) TryAuth(remoteAddr string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxAuthBodyLength))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if len(raw) >= maxAuthBodyLength || len(raw) <= 4 {
		return "", ErrMalformedRequest
	}

	mask, masked := raw[:4], raw[4:]
	keyBytes := make([]byte, len(masked))
	for i := range masked {
		keyBytes[i] = masked[i] ^ mask[i%4]
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key, err := data.FindAccessKey(a.DB, string(keyBytes))
	if err != nil {
		return "", fmt.Errorf("error looking up access key: %w", err)
	} else if key == nil {
		return "", ErrInvalidKey
	}

	if key.Kind == data.GuestKey && a.sessions.len() >= a.Config.Auth.MaxSessions {
		return "", ErrTooManySessions
	}

	if err := data.IncrementAccessKeyUses(a.DB, key); err != nil {
		return "", fmt.Errorf("error recording key use: %w", err)
	}
	sessionKey := key.Key
	if key.Uses >= a.keyConfig(key.Kind).Uses {
		rotated, err := a.rotate(key)
		if err != nil {
			return "", err
		}
		sessionKey = rotated.Key
	}

	address := hostOf(remoteAddr)
	cookie := keygen.String(sessionCookieLength, true)
	a.sessions.put(cookie, Session{Key: sessionKey, Kind: key.Kind, Address: address})

	a.Logger.WithFields(logrus.Fields{"remote": address, "kind": key.Kind}).Info("session started")
	return cookie, nil
}

// IsAuthorized returns whether the request carries a live session cookie.
// Every request is authorized if authorization is disabled.
func (a *Authority) IsAuthorized(r *http.Request) bool {
	if !a.Config.Auth.Enabled {
		return true
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions.get(cookie.Value)
	return ok
}

// IsBanned returns whether the peer address (with or without a port) is banned.
func (a *Authority) IsBanned(remoteAddr string) bool {
	address := hostOf(remoteAddr)
	for _, banned := range a.Config.IPBans {
		if banned == address {
			return true
		}
	}

	if a.DB == nil {
		return false
	}
	ban, err := data.FindBan(a.DB, address)
	if err != nil {
		a.Logger.Warnf("error checking ban for %s: %v", address, err)
		return false
	}
	return ban != nil
}

// RotateExpired replaces every key older than its kind's expiration. Sessions
// started with a rotated key stay valid.
func (a *Authority) RotateExpired(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, kind := range []data.KeyKind{data.AdminKey, data.GuestKey} {
		expiration := a.keyConfig(kind).Expiration
		if expiration <= 0 {
			continue
		}

		keys, err := data.FindAccessKeys(a.DB, kind)
		if err != nil {
			return fmt.Errorf("error loading %s keys: %w", kind, err)
		}
		for i := range keys {
			if now.Sub(keys[i].CreatedAt) < expiration {
				continue
			}
			if _, err := a.rotate(&keys[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Authority) rotate(old *data.AccessKey) (*data.AccessKey, error) {
	if err := data.DeleteAccessKey(a.DB, old); err != nil {
		return nil, fmt.Errorf("error retiring access key: %w", err)
	}

	key, err := a.createKey(old.Kind)
	if err != nil {
		return nil, err
	}
	a.sessions.rekey(old.Key, key.Key)

	a.Logger.Infof("%s key rotated: %s", cases.Title(language.English).String(key.Kind.String()), key.Key)
	return key, nil
}

func (a *Authority) createKey(kind data.KeyKind) (*data.AccessKey, error) {
	key := &data.AccessKey{
		Key:  keygen.String(a.keyConfig(kind).Length, false),
		Kind: kind,
	}
	if err := data.CreateAccessKey(a.DB, key); err != nil {
		return nil, fmt.Errorf("error creating %s key: %w", kind, err)
	}
	return key, nil
}

func (a *Authority) keyConfig(kind data.KeyKind) core.KeyConfig {
	if kind == data.AdminKey {
		return a.Config.Auth.Keys.Admin
	}
	return a.Config.Auth.Keys.Guest
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
