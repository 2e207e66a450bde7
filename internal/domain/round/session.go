package round

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
)

// Session is one voter's state across categories.
type Session struct {
	id       string
	mu       sync.Mutex
	rounds   map[model.Category]*Round
	lastSeen atomic.Int64
	now      func() time.Time
}

func newSession(id string, now func() time.Time) *Session {
	s := &Session{id: id, rounds: make(map[model.Category]*Round), now: now}
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) touch() { s.lastSeen.Store(s.now().UnixNano()) }

func (s *Session) round(category model.Category) *Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[category]
	if !ok {
		r = &Round{category: category}
		s.rounds[category] = r
	}
	return r
}

// Do runs fn with the category round locked. Rounds of other categories
// stay available while fn runs.
func (s *Session) Do(category model.Category, fn func(r *Round) error) error {
	s.touch()
	r := s.round(category)
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}
