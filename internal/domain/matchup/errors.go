package matchup

import "errors"

// Sentinel errors for matchup selection.
var (
	// ErrPoolTooSmall means the pool has fewer than two distinct candidates.
	ErrPoolTooSmall = errors.New("candidate pool too small")
	// ErrSelectionFailed means every draw collided. Retry the whole selection.
	ErrSelectionFailed = errors.New("matchup selection failed")
)
