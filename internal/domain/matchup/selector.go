// Package matchup draws pairs of distinct candidates from a category pool.
package matchup

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitchelo/internal/domain/model"
)

// DefaultAttempts bounds the draws made by a single Select call.
const DefaultAttempts = 10

// Source yields uniform integers in [0, n). Implementations must be safe for
// concurrent use when the Selector is shared.
type Source interface {
	IntN(n int) int
}

// globalSource uses the runtime-seeded, goroutine-safe math/rand/v2 generator.
type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithAttempts sets how many draws Select makes before giving up.
func WithAttempts(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithSource injects the random source.
func WithSource(src Source) Option {
	return func(s *Selector) {
		if src != nil {
			s.source = src
		}
	}
}

// WithIDGenerator overrides how matchup ids are minted.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Selector) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithClock overrides the time source stamped on matchups.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// Selector builds matchups. It holds no state between calls.
type Selector struct {
	attempts int
	source   Source
	newID    func() (string, error)
	now      func() time.Time
}

// NewSelector creates a Selector with 10 attempts and the global random source.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		attempts: DefaultAttempts,
		source:   globalSource{},
		newID:    newV7,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Select draws two candidates independently and uniformly from pool and
// retries while they collide. It never returns a self-paired matchup.
// Entries without an id count as collisions.
func (s *Selector) Select(category model.Category, pool []model.Candidate) (model.Matchup, error) {
	if distinct(pool) < 2 {
		return model.Matchup{}, fmt.Errorf("%w: %s has %d eligible candidates", ErrPoolTooSmall, category, distinct(pool))
	}

	n := len(pool)
	for attempt := 0; attempt < s.attempts; attempt++ {
		a := pool[s.source.IntN(n)]
		b := pool[s.source.IntN(n)]
		if a.ID == b.ID || a.ID == "" || b.ID == "" {
			continue
		}

		id, err := s.newID()
		if err != nil {
			return model.Matchup{}, fmt.Errorf("mint matchup id: %w", err)
		}
		return model.Matchup{
			ID:       id,
			Category: category,
			A:        a,
			B:        b,
			IssuedAt: s.now(),
		}, nil
	}

	return model.Matchup{}, fmt.Errorf("%w: %s after %d attempts", ErrSelectionFailed, category, s.attempts)
}

// distinct counts unique non-empty ids.
func distinct(pool []model.Candidate) int {
	seen := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		if c.ID == "" {
			continue
		}
		seen[c.ID] = struct{}{}
	}
	return len(seen)
}
