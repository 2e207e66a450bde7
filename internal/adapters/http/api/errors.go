package api

import (
	"context"
	"errors"
	"net/http"

	workerpool "github.com/okian/pitchelo/internal/adapters/mq/worker"
	repository "github.com/okian/pitchelo/internal/adapters/repository"
	"github.com/okian/pitchelo/internal/domain/elo"
	"github.com/okian/pitchelo/internal/domain/matchup"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/round"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// retryAfterSeconds is advertised on responses the client may simply repeat.
const retryAfterSeconds = "1"

// classify maps a service error to a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrUnknownCategory):
		return http.StatusNotFound, "unknown_category"
	case errors.Is(err, round.ErrInvalidSession):
		return http.StatusBadRequest, "invalid_session"
	case errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "invalid_limit"
	case errors.Is(err, matchup.ErrPoolTooSmall):
		return http.StatusConflict, "pool_too_small"
	case errors.Is(err, matchup.ErrSelectionFailed):
		return http.StatusServiceUnavailable, "selection_failed"
	case errors.Is(err, round.ErrInvalidVote):
		return http.StatusConflict, "invalid_vote"
	case errors.Is(err, repository.ErrSerialization):
		return http.StatusUnprocessableEntity, "serialization_error"
	case errors.Is(err, elo.ErrSameCandidate), errors.Is(err, elo.ErrCategoryMismatch):
		return http.StatusUnprocessableEntity, "invalid_pairing"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusServiceUnavailable, "conflict"
	case errors.Is(err, workerpool.ErrBackpressure), errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, repository.ErrClosed),
		errors.Is(err, workerpool.ErrStopped):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeServiceError writes the classified error. Retryable failures carry
// a Retry-After header.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

func errorBody(err error) *errorResponse {
	if err == nil {
		return nil
	}
	_, code := classify(err)
	return &errorResponse{Code: code, Message: err.Error()}
}
