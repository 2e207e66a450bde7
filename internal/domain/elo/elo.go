// Package elo implements the pairwise rating update.
//
// The engine is pure: it never touches storage and never rounds. Callers
// materialize unseen candidates with model.DefaultRating before calling it.
package elo

import (
	"fmt"
	"math"

	"github.com/okian/pitchelo/internal/domain/model"
)

// Default engine configuration constants.
const (
	DefaultKFactor = 32.0
	scale          = 400.0
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithKFactor sets the maximum rating transfer per match.
func WithKFactor(k float64) Option {
	return func(e *Engine) {
		if k > 0 && !math.IsInf(k, 0) {
			e.k = k
		}
	}
}

// Engine computes rating updates for decided matchups.
type Engine struct {
	k float64
}

// New creates an Engine with K=32 unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{k: DefaultKFactor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// K returns the configured K-factor.
func (e *Engine) K() float64 { return e.k }

// Expected returns the winner's expected score against the loser.
func Expected(ratingWinner, ratingLoser float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingLoser-ratingWinner)/scale))
}

// Update applies one decided match. The same transfer is added to the winner
// and subtracted from the loser, and both match counts grow by one.
func (e *Engine) Update(winner, loser model.CandidateRating) (model.Outcome, error) {
	if winner.CandidateID == loser.CandidateID {
		return model.Outcome{}, fmt.Errorf("%w: %s", ErrSameCandidate, winner.CandidateID)
	}
	if winner.Category != loser.Category {
		return model.Outcome{}, fmt.Errorf("%w: %s vs %s", ErrCategoryMismatch, winner.Category, loser.Category)
	}

	expected := Expected(winner.Rating, loser.Rating)
	transfer := e.k * (1 - expected)

	w, l := winner, loser
	w.Rating = winner.Rating + transfer
	l.Rating = loser.Rating - transfer
	w.MatchCount++
	l.MatchCount++

	return model.Outcome{
		Category:     winner.Category,
		WinnerBefore: winner,
		LoserBefore:  loser,
		Winner:       w,
		Loser:        l,
		Transfer:     transfer,
		Expected:     expected,
	}, nil
}
