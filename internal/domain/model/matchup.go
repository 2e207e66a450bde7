package model

import "time"

// Matchup pairs two distinct candidates of one category for a single comparison.
type Matchup struct {
	ID       string
	Category Category
	A        Candidate
	B        Candidate
	IssuedAt time.Time
}

// Contains reports whether candidateID is one of the two members.
func (m Matchup) Contains(candidateID string) bool {
	return candidateID != "" && (m.A.ID == candidateID || m.B.ID == candidateID)
}

// Resolve splits the matchup into winner and loser for winnerID.
// ok is false when winnerID is not a member.
func (m Matchup) Resolve(winnerID string) (winner, loser Candidate, ok bool) {
	switch winnerID {
	case "":
		return Candidate{}, Candidate{}, false
	case m.A.ID:
		return m.A, m.B, true
	case m.B.ID:
		return m.B, m.A, true
	default:
		return Candidate{}, Candidate{}, false
	}
}

// Vote designates the winner of an issued matchup.
type Vote struct {
	MatchupID string
	WinnerID  string
}

// Outcome is the result of one applied vote.
type Outcome struct {
	Category     Category
	MatchupID    string
	WinnerBefore CandidateRating
	LoserBefore  CandidateRating
	Winner       CandidateRating
	Loser        CandidateRating
	Transfer     float64 // rating points moved from loser to winner
	Expected     float64 // winner's expected score before the vote
}
