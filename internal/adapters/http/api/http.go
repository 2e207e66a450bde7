// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/types"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionHeader carries the session id in both directions.
const SessionHeader = "X-Session-ID"

// Default server configuration constants.
const (
	defaultMaxLeaderboardLimit = 100
	defaultRateLimitRPS        = 20
	defaultRateLimitBurst      = 40
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	Categories() []model.Category
	Matchup(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error)
	Skip(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error)
	Vote(ctx context.Context, sessionID string, category model.Category, vote model.Vote) (types.VoteResult, error)
	Leaderboard(ctx context.Context, category model.Category, limit int) ([]types.Entry, error)
	Candidate(ctx context.Context, category model.Category, candidateID string) (model.CandidateRating, error)
	Health(ctx context.Context) error
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Option configures a Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps the limit a client may request.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRateLimit sets the per-client request rate. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rps = rps
		if burst > 0 {
			s.burst = burst
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxLimit int
	rps      float64
	burst    int
	logger   logger.Logger
	limiter  *RateLimiter

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	categoryHandler    *CategoryHandler
	matchupHandler     *MatchupHandler
	voteHandler        *VoteHandler
	leaderboardHandler *LeaderboardHandler
	candidateHandler   *CandidateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit: defaultMaxLeaderboardLimit,
		rps:      defaultRateLimitRPS,
		burst:    defaultRateLimitBurst,
		logger:   logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rps > 0 {
		s.limiter = NewRateLimiter(s.rps, s.burst)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.categoryHandler = NewCategoryHandler(deps)
	s.matchupHandler = NewMatchupHandler(deps, s.logger)
	s.voteHandler = NewVoteHandler(deps, validate, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit, s.logger)
	s.candidateHandler = NewCandidateHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux. The rate limiter's cleanup
// runs until ctx is done.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	if s.limiter != nil {
		go s.limiter.Run(ctx, limiterSweepInterval)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	s.handle(mux, "GET /categories", "categories", s.categoryHandler.HandleList)
	s.handle(mux, "GET /categories/{category}/matchup", "matchup", s.matchupHandler.HandleGet)
	s.handle(mux, "POST /categories/{category}/matchup/skip", "skip", s.matchupHandler.HandleSkip)
	s.handle(mux, "POST /categories/{category}/votes", "votes", s.voteHandler.HandlePost)
	s.handle(mux, "GET /categories/{category}/leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	s.handle(mux, "GET /categories/{category}/candidates/{id}", "candidate", s.candidateHandler.HandleGet)
}

func (s *Server) handle(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	if s.limiter != nil {
		h = s.limiter.Middleware(h, endpoint)
	}
	mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
}

type categoryView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type candidateView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type matchupView struct {
	ID       string        `json:"id"`
	Category string        `json:"category"`
	A        candidateView `json:"a"`
	B        candidateView `json:"b"`
	IssuedAt time.Time     `json:"issued_at"`
}

type matchupResponse struct {
	SessionID string      `json:"session_id"`
	Matchup   matchupView `json:"matchup"`
}

type ratingView struct {
	CandidateID   string    `json:"candidate_id"`
	DisplayName   string    `json:"display_name"`
	Rating        float64   `json:"rating"`
	DisplayRating int64     `json:"display_rating"`
	MatchCount    int64     `json:"match_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type changeView struct {
	Before ratingView `json:"before"`
	After  ratingView `json:"after"`
}

type outcomeView struct {
	MatchupID string     `json:"matchup_id"`
	Winner    changeView `json:"winner"`
	Loser     changeView `json:"loser"`
	Transfer  float64    `json:"transfer"`
	Expected  float64    `json:"expected"`
}

type voteResponse struct {
	SessionID string         `json:"session_id"`
	Outcome   outcomeView    `json:"outcome"`
	Next      *matchupView   `json:"next,omitempty"`
	NextError *errorResponse `json:"next_error,omitempty"`
}

type leaderboardResponse struct {
	Category string  `json:"category"`
	Entries  []Entry `json:"entries"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toMatchupView(m model.Matchup) matchupView {
	return matchupView{
		ID:       m.ID,
		Category: string(m.Category),
		A:        candidateView{ID: m.A.ID, Name: m.A.Name},
		B:        candidateView{ID: m.B.ID, Name: m.B.Name},
		IssuedAt: m.IssuedAt,
	}
}

func toRatingView(r model.CandidateRating) ratingView {
	return ratingView{
		CandidateID:   r.CandidateID,
		DisplayName:   r.DisplayName,
		Rating:        r.Rating,
		DisplayRating: types.DisplayRating(r.Rating),
		MatchCount:    r.MatchCount,
		UpdatedAt:     r.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// category parses the {category} path value, writing a 404 when unknown.
func category(w http.ResponseWriter, r *http.Request) (model.Category, bool) {
	c, err := model.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_category", err)
		return "", false
	}
	return c, true
}

func echoSession(w http.ResponseWriter, id string) {
	if id != "" {
		w.Header().Set(SessionHeader, id)
	}
}
