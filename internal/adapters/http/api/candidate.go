package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
)

const maxCandidateID = 64

// CandidateDependencies reads single ratings.
type CandidateDependencies interface {
	Candidate(ctx context.Context, category model.Category, candidateID string) (model.CandidateRating, error)
}

// CandidateHandler serves one candidate's rating.
type CandidateHandler struct {
	deps   CandidateDependencies
	logger logger.Logger
}

// NewCandidateHandler creates a new candidate handler.
func NewCandidateHandler(deps CandidateDependencies, log logger.Logger) *CandidateHandler {
	return &CandidateHandler{deps: deps, logger: log}
}

// HandleGet handles GET /categories/{category}/candidates/{id}. An unseen
// candidate is reported at the default rating.
func (h *CandidateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := category(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" || len(id) > maxCandidateID {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid candidate id", ErrBadRequest))
		return
	}

	rating, err := h.deps.Candidate(r.Context(), c, id)
	if err != nil {
		h.logger.Warn(r.Context(), "candidate lookup failed",
			logger.String("category", string(c)),
			logger.String("candidate_id", id),
			logger.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingView(rating))
}
