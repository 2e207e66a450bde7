package repository

import (
	"context"
	"errors"
)

// Sentinel kinds for rating store errors.
var (
	// ErrSerialization means a value could not be normalized to the store's types.
	ErrSerialization = errors.New("rating serialization failed")
	// ErrConflict means a concurrent write changed a row since it was read.
	ErrConflict = errors.New("rating store conflict")
	// ErrUnavailable means the backend could not be reached or timed out.
	ErrUnavailable = errors.New("rating store unavailable")
	// ErrInvalidLimit rejects negative leaderboard limits.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rating store closed")
)

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

// Retryable reports whether the whole vote pipeline may be rerun.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
