package votesim

import (
	"fmt"
	"math"
)

// ratingTolerance absorbs float rounding in the rating sum.
const ratingTolerance = 1e-6

// Verify checks a category leaderboard after a run against its state
// before. The match counts must grow by exactly two per recorded vote,
// the rating total must not move, and the board must be ordered by rating
// descending with ties broken by candidate id.
func Verify(before, after []Entry, votes int64) error {
	var countBefore, countAfter int64
	var sumBefore, sumAfter float64
	for _, e := range before {
		countBefore += e.MatchCount
		sumBefore += e.Rating - 1500
	}
	for _, e := range after {
		countAfter += e.MatchCount
		sumAfter += e.Rating - 1500
	}

	if got := countAfter - countBefore; got != 2*votes {
		return fmt.Errorf("%w: match counts grew by %d, want %d for %d votes", ErrVerification, got, 2*votes, votes)
	}
	if math.Abs(sumAfter-sumBefore) > ratingTolerance*float64(len(after)+1) {
		return fmt.Errorf("%w: rating total drifted by %g", ErrVerification, sumAfter-sumBefore)
	}
	for i := range after {
		if after[i].Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrVerification, i, after[i].Rank)
		}
		if i == 0 {
			continue
		}
		prev, cur := after[i-1], after[i]
		if prev.Rating < cur.Rating || (prev.Rating == cur.Rating && prev.CandidateID >= cur.CandidateID) {
			return fmt.Errorf("%w: %s (%g) ranked above %s (%g)", ErrVerification,
				prev.CandidateID, prev.Rating, cur.CandidateID, cur.Rating)
		}
	}
	return nil
}
