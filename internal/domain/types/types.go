// Package types contains common types used across the application
package types

import (
	"math"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
)

// Entry represents a leaderboard entry
type Entry struct {
	Rank          int       `json:"rank"`
	CandidateID   string    `json:"candidate_id"`
	DisplayName   string    `json:"display_name"`
	Rating        float64   `json:"rating"`
	DisplayRating int64     `json:"display_rating"`
	MatchCount    int64     `json:"match_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayRating rounds a rating half away from zero for presentation.
// Stored ratings keep full precision.
func DisplayRating(r float64) int64 {
	return int64(math.Round(r))
}

// Ranked numbers rows already in leaderboard order starting at 1.
// Rows with equal ratings still get distinct ranks.
func Ranked(rows []model.CandidateRating) []Entry {
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			Rank:          i + 1,
			CandidateID:   r.CandidateID,
			DisplayName:   r.DisplayName,
			Rating:        r.Rating,
			DisplayRating: DisplayRating(r.Rating),
			MatchCount:    r.MatchCount,
			UpdatedAt:     r.UpdatedAt,
		}
	}
	return out
}

// MatchupResult is the matchup a session should vote on.
type MatchupResult struct {
	SessionID string
	Matchup   model.Matchup
}

// VoteResult reports a recorded vote. Next is the replacement matchup; when
// it could not be selected NextErr says why and the vote still stands.
type VoteResult struct {
	SessionID string
	Outcome   model.Outcome
	Next      *model.Matchup
	NextErr   error
}
