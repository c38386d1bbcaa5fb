package api

import (
	"errors"
	"sync"

	"github.com/Abhay-404/Eternal-Memory/internal/router"
)

const defaultMaxSessions = 64

// ErrUnknownSession is returned for a session ID that was never issued or
// has been evicted.
var ErrUnknownSession = errors.New("unknown session")

// Sessions keeps the conversations served over HTTP and MCP. The oldest
// session is evicted once the limit is reached.
type Sessions struct {
	router *router.Router
	limit  int

	mu    sync.Mutex
	byID  map[string]*router.Session
	order []string
}

// NewSessions creates a registry holding at most limit sessions (64 if
// limit <= 0).
func NewSessions(r *router.Router, limit int) *Sessions {
	if limit <= 0 {
		limit = defaultMaxSessions
	}
	return &Sessions{router: r, limit: limit, byID: make(map[string]*router.Session)}
}

// Get returns the session with id, or a new one when id is empty.
func (s *Sessions) Get(id string) (*router.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		sess, ok := s.byID[id]
		if !ok {
			return nil, ErrUnknownSession
		}
		return sess, nil
	}

	sess := s.router.NewSession()
	if len(s.order) >= s.limit {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	s.byID[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	return sess, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
