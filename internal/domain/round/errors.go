package round

import "errors"

// Sentinel kinds for round errors.
var (
	// ErrInvalidVote rejects a vote that does not match the current matchup.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrInvalidSession rejects a malformed session id.
	ErrInvalidSession = errors.New("invalid session id")
)
