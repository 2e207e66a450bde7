package api

import (
	"context"
	"net/http"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/types"
	"github.com/okian/pitchelo/pkg/logger"
)

// MatchupDependencies hands out matchups for a session.
type MatchupDependencies interface {
	Matchup(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error)
	Skip(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error)
}

// MatchupHandler serves the current matchup and skips.
type MatchupHandler struct {
	deps   MatchupDependencies
	logger logger.Logger
}

// NewMatchupHandler creates a new matchup handler.
func NewMatchupHandler(deps MatchupDependencies, log logger.Logger) *MatchupHandler {
	return &MatchupHandler{deps: deps, logger: log}
}

// HandleGet handles GET /categories/{category}/matchup. Repeated calls
// return the same matchup until it is voted on or skipped.
func (h *MatchupHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.deps.Matchup)
}

// HandleSkip handles POST /categories/{category}/matchup/skip.
func (h *MatchupHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.deps.Skip)
}

type matchupFunc func(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error)

func (h *MatchupHandler) serve(w http.ResponseWriter, r *http.Request, fn matchupFunc) {
	c, ok := category(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), r.Header.Get(SessionHeader), c)
	echoSession(w, res.SessionID)
	if err != nil {
		h.logger.Debug(r.Context(), "matchup not issued",
			logger.String("category", string(c)),
			logger.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchupResponse{SessionID: res.SessionID, Matchup: toMatchupView(res.Matchup)})
}
