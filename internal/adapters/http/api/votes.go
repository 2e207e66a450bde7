package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/types"
	"github.com/okian/pitchelo/pkg/logger"
)

const maxVoteBody = 4 << 10

// VoteDependencies records votes.
type VoteDependencies interface {
	Vote(ctx context.Context, sessionID string, category model.Category, vote model.Vote) (types.VoteResult, error)
}

// VoteHandler handles vote submission.
type VoteHandler struct {
	deps     VoteDependencies
	validate *validator.Validate
	logger   logger.Logger
}

// NewVoteHandler creates a new vote handler.
func NewVoteHandler(deps VoteDependencies, validate *validator.Validate, log logger.Logger) *VoteHandler {
	return &VoteHandler{deps: deps, validate: validate, logger: log}
}

// voteRequest is the body of POST /categories/{category}/votes.
type voteRequest struct {
	MatchupID string `json:"matchup_id" validate:"required,max=128"`
	WinnerID  string `json:"winner_id" validate:"required,max=64"`
}

// HandlePost handles POST /categories/{category}/votes.
func (h *VoteHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	c, ok := category(w, r)
	if !ok {
		return
	}

	var req voteRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxVoteBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	res, err := h.deps.Vote(r.Context(), r.Header.Get(SessionHeader), c, model.Vote{
		MatchupID: req.MatchupID,
		WinnerID:  req.WinnerID,
	})
	echoSession(w, res.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := voteResponse{
		SessionID: res.SessionID,
		Outcome: outcomeView{
			MatchupID: res.Outcome.MatchupID,
			Winner:    changeView{Before: toRatingView(res.Outcome.WinnerBefore), After: toRatingView(res.Outcome.Winner)},
			Loser:     changeView{Before: toRatingView(res.Outcome.LoserBefore), After: toRatingView(res.Outcome.Loser)},
			Transfer:  res.Outcome.Transfer,
			Expected:  res.Outcome.Expected,
		},
		NextError: errorBody(res.NextErr),
	}
	if res.Next != nil {
		v := toMatchupView(*res.Next)
		out.Next = &v
	}
	if res.NextErr != nil {
		h.logger.Warn(r.Context(), "vote recorded without a next matchup",
			logger.String("category", string(c)),
			logger.Error(res.NextErr))
	}
	writeJSON(w, http.StatusOK, out)
}
