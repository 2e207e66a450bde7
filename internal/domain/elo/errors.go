package elo

import "errors"

// Sentinel errors for rating updates.
var (
	ErrSameCandidate    = errors.New("winner and loser are the same candidate")
	ErrCategoryMismatch = errors.New("winner and loser belong to different categories")
)
