// Package session owns the signed-in user's credential. The feed core only
// sees it through feed.CredentialProvider.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/storage"
)

var (
	ErrEmptyToken   = errors.New("token must not be empty")
	ErrTokenExpired = errors.New("token has already expired")
)

// Claims is the subset of the API's access token the client reads. The
// signature is never verified here; the server does that on every request.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Guard supplies the stored credential and handles its rejection.
type Guard struct {
	store *storage.Store
	now   func() time.Time
	log   *debuglog.FieldLogger

	mu        sync.RWMutex
	session   *storage.Session
	loaded    bool
	onExpired []func()
}

func NewGuard(store *storage.Store) *Guard {
	return &Guard{
		store: store,
		now:   time.Now,
		log:   debuglog.WithFields(map[string]interface{}{"component": "session"}),
	}
}

// Login stores token as the current credential. A "Bearer " prefix is
// accepted and stripped.
func (g *Guard) Login(token string) (*storage.Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrEmptyToken
	}

	s := &storage.Session{Token: token, CreatedAt: g.now()}
	if claims, ok := inspect(token); ok {
		s.UserID = claims.UserID
		if s.UserID == "" {
			s.UserID = claims.Subject
		}
		if claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if s.Expired(g.now()) {
		return nil, ErrTokenExpired
	}

	if err := g.store.SaveSession(s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	g.mu.Lock()
	g.session, g.loaded = s, true
	g.mu.Unlock()

	g.log.Infof("signed in as %q", s.UserID)
	return s, nil
}

func (g *Guard) Logout() error {
	g.mu.Lock()
	g.session, g.loaded = nil, true
	g.mu.Unlock()

	if err := g.store.ClearSession(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Session returns the stored session, expired or not.
func (g *Guard) Session() (*storage.Session, error) {
	g.mu.RLock()
	s, loaded := g.session, g.loaded
	g.mu.RUnlock()
	if loaded {
		if s == nil {
			return nil, storage.ErrNoSession
		}
		return s, nil
	}

	s, err := g.store.GetSession()
	if err != nil && !errors.Is(err, storage.ErrNoSession) {
		return nil, err
	}

	g.mu.Lock()
	g.session, g.loaded = s, true
	g.mu.Unlock()

	if s == nil {
		return nil, storage.ErrNoSession
	}
	return s, nil
}

// Credential implements feed.CredentialProvider. A token whose expiry has
// passed is reported as missing so no request is sent with it.
func (g *Guard) Credential() (string, bool) {
	s, err := g.Session()
	if err != nil {
		if !errors.Is(err, storage.ErrNoSession) {
			g.log.Errorf("reading session: %v", err)
		}
		return "", false
	}
	if s.Expired(g.now()) {
		g.log.Debugf("stored token expired at %s", s.ExpiresAt.Format(time.RFC3339))
		return "", false
	}
	return s.Token, true
}

// OnExpired registers fn to run when the server rejects the credential.
func (g *Guard) OnExpired(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpired = append(g.onExpired, fn)
}

// Expire drops the credential after the server rejected it and runs the
// OnExpired callbacks.
func (g *Guard) Expire() {
	if err := g.Logout(); err != nil {
		g.log.Errorf("expire: %v", err)
	}

	g.mu.RLock()
	callbacks := append([]func(){}, g.onExpired...)
	g.mu.RUnlock()

	g.log.Warnf("session expired, %d listeners", len(callbacks))
	for _, fn := range callbacks {
		fn()
	}
}

// inspect reads the claims of a JWT without verifying it. ok is false for
// opaque tokens.
func inspect(token string) (*Claims, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
