package model

import "time"

// DefaultRating is the rating of a candidate that has never been part of a vote.
const DefaultRating = 1500.0

// Candidate is an eligible pool member of a category.
type Candidate struct {
	ID     string  // stable external identifier, unique within a category
	Name   string  // display name, not used for identity
	Metric float64 // pool-ranking metric supplied by the pool provider
}

// CandidateRating is the stored rating state of one candidate in one category.
type CandidateRating struct {
	Category    Category
	CandidateID string
	DisplayName string
	Rating      float64
	MatchCount  int64
	UpdatedAt   time.Time // zero for a materialized default
}

// DefaultCandidateRating materializes the rating of an unseen candidate.
func DefaultCandidateRating(category Category, candidateID, displayName string) CandidateRating {
	return CandidateRating{
		Category:    category,
		CandidateID: candidateID,
		DisplayName: displayName,
		Rating:      DefaultRating,
	}
}

// Stored reports whether the rating came from the store rather than the default.
func (r CandidateRating) Stored() bool {
	return !r.UpdatedAt.IsZero()
}
