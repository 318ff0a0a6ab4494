package dashboard

import (
	"errors"
	"sync"

	"teamboard/internal/models"
)

// ErrSessionClosed is returned by calls made with a session after Close.
var ErrSessionClosed = errors.New("session closed")

// Session is the authenticated identity of one board client. It is created
// by Login, read by the API client and the engine, and discarded by Close.
type Session struct {
	mu     sync.RWMutex
	token  string
	user   models.User
	closed bool
}

func NewSession(token string, user models.User) *Session {
	return &Session{token: token, user: user}
}

// Token returns the bearer token, or ErrSessionClosed.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.token, nil
}

func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.token = ""
}
