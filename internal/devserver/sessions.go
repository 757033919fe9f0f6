package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RefreshSession is an issued refresh token
type RefreshSession struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RefreshStore manages issued refresh tokens
type RefreshStore struct {
	mu       sync.RWMutex
	sessions map[string]RefreshSession // key: token
	ttl      time.Duration
}

// NewRefreshStore creates a store whose tokens live for ttl
func NewRefreshStore(ttl time.Duration) *RefreshStore {
	return &RefreshStore{
		sessions: make(map[string]RefreshSession),
		ttl:      ttl,
	}
}

// Issue generates a new refresh token for the user
func (s *RefreshStore) Issue(userID string) RefreshSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := RefreshSession{
		Token:     uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.sessions[session.Token] = session

	// Clean up expired sessions opportunistically
	s.cleanupExpiredLocked()

	return session
}

// Lookup retrieves a live refresh session by token
func (s *RefreshStore) Lookup(token string) (RefreshSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[token]
	if !exists {
		return RefreshSession{}, false
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		return RefreshSession{}, false
	}

	return session, true
}

// RevokeUser removes all refresh tokens for a user.
// Returns the number of tokens revoked.
func (s *RefreshStore) RevokeUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
			count++
		}
	}
	return count
}

// cleanupExpiredLocked removes expired sessions (caller must hold write lock)
func (s *RefreshStore) cleanupExpiredLocked() {
	now := time.Now().UTC()
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
}
