// Package session tracks whether the app currently holds a usable credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Claims when no access token is stored
var ErrNoToken = errors.New("no access token")

// TokenReader is the part of the credential vault the manager needs
type TokenReader interface {
	AccessToken(ctx context.Context) (string, error)
}

// State is a snapshot of the session.
// Checked is false until the first Check completes.
type State struct {
	Checked       bool
	Authenticated bool
	Reason        string // why the last forced logout happened
}

// Option configures a Manager
type Option func(*Manager)

// WithIdentity makes Check consult an external identity session instead of
// the stored access token.
func WithIdentity(src oauth2.TokenSource) Option {
	return func(m *Manager) {
		m.identity = src
	}
}

// Manager owns the authentication state for one app instance
type Manager struct {
	tokens   TokenReader
	identity oauth2.TokenSource

	mu    sync.RWMutex
	state State
	subs  []chan State
}

// New creates a manager in the Unchecked state
func New(tokens TokenReader, opts ...Option) *Manager {
	m := &Manager{tokens: tokens}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check probes for a usable credential and overwrites the current state.
// A store error leaves the session Checked/Unauthenticated.
func (m *Manager) Check(ctx context.Context) (State, error) {
	authenticated, err := m.probe(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	next := State{Checked: true, Authenticated: authenticated}
	if !authenticated {
		next.Reason = m.state.Reason
	}
	m.setLocked(next)

	log.Debug().
		Bool("authenticated", authenticated).
		Bool("identityMode", m.identity != nil).
		Msg("session checked")

	if err != nil {
		return next, fmt.Errorf("session check failed: %w", err)
	}
	return next, nil
}

func (m *Manager) probe(ctx context.Context) (bool, error) {
	if m.identity != nil {
		tok, err := m.identity.Token()
		if err != nil {
			return false, err
		}
		return tok.Valid(), nil
	}

	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// ForceLogout moves the session to Checked/Unauthenticated immediately.
// Calling it while already unauthenticated is a no-op.
func (m *Manager) ForceLogout(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Checked && !m.state.Authenticated {
		return
	}

	m.setLocked(State{Checked: true, Authenticated: false, Reason: reason})
	log.Info().Str("reason", reason).Msg("session ended")
}

// OnUnauthorized is the forced-logout hook for the request pipeline
func (m *Manager) OnUnauthorized(reason string) {
	m.ForceLogout(reason)
}

// State returns the current snapshot
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authenticated reports the Checked/Authenticated state
func (m *Manager) Authenticated() bool {
	s := m.State()
	return s.Checked && s.Authenticated
}

// ConsumeReason returns the last logout reason and forgets it, so a notice is
// shown once.
func (m *Manager) ConsumeReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason := m.state.Reason
	m.state.Reason = ""
	return reason
}

// Subscribe returns a channel receiving state changes. Only the latest
// undelivered state is kept.
func (m *Manager) Subscribe() <-chan State {
	ch := make(chan State, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// setLocked replaces the state and notifies subscribers (caller must hold write lock)
func (m *Manager) setLocked(s State) {
	changed := s != m.state
	m.state = s
	if !changed {
		return
	}
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Claims describes the current access token. Signatures are not verified:
// the backend is the authority; this is for display only.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp is in the past
func (c Claims) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Claims decodes the stored access token without verifying it
func (m *Manager) Claims(ctx context.Context) (Claims, error) {
	var raw string
	if m.identity != nil {
		tok, err := m.identity.Token()
		if err != nil {
			return Claims{}, err
		}
		raw = tok.AccessToken
	} else {
		var err error
		if raw, err = m.tokens.AccessToken(ctx); err != nil {
			return Claims{}, err
		}
	}
	if raw == "" {
		return Claims{}, ErrNoToken
	}

	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &rc); err != nil {
		return Claims{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	out := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}
