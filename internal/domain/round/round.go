// Package round tracks the matchup each voter is currently looking at.
//
// A Session owns one Round per category and the rounds never share state,
// so a vote in one category cannot block or invalidate another.
package round

import (
	"fmt"
	"sync"

	"github.com/okian/pitchelo/internal/domain/model"
)

// Round holds the current matchup of one category for one session.
// Callers hold the round through Session.Do.
type Round struct {
	mu       sync.Mutex
	category model.Category
	current  model.Matchup
	awaiting bool
}

// Category returns the round's category.
func (r *Round) Category() model.Category { return r.category }

// Current returns the matchup awaiting a vote, if any.
func (r *Round) Current() (model.Matchup, bool) {
	return r.current, r.awaiting
}

// Validate checks v against the current matchup without changing anything.
// It returns the winner and loser on success.
func (r *Round) Validate(v model.Vote) (winner, loser model.Candidate, err error) {
	if !r.awaiting {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: no matchup awaiting a vote", ErrInvalidVote)
	}
	if v.MatchupID != r.current.ID {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: matchup %q is not current", ErrInvalidVote, v.MatchupID)
	}
	winner, loser, ok := r.current.Resolve(v.WinnerID)
	if !ok {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: %q is not in matchup %s", ErrInvalidVote, v.WinnerID, r.current.ID)
	}
	return winner, loser, nil
}

// Advance replaces the current matchup.
func (r *Round) Advance(m model.Matchup) {
	r.current = m
	r.awaiting = true
}

// Clear leaves the round with nothing to vote on.
func (r *Round) Clear() {
	r.current = model.Matchup{}
	r.awaiting = false
}
