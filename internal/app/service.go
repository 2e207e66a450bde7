// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	workerpool "github.com/okian/pitchelo/internal/adapters/mq/worker"
	"github.com/okian/pitchelo/internal/adapters/pool"
	repository "github.com/okian/pitchelo/internal/adapters/repository"
	"github.com/okian/pitchelo/internal/domain/dedupe"
	"github.com/okian/pitchelo/internal/domain/elo"
	"github.com/okian/pitchelo/internal/domain/matchup"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/round"
	"github.com/okian/pitchelo/internal/domain/types"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultRetryAttempts    = 5
	defaultRetryBase        = 8 * time.Millisecond
	defaultSelectionRetries = 3
	defaultStoreTimeout     = 2 * time.Second
	defaultWriterQueueSize  = 256
	defaultDedupeSize       = 500_000
)

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	pool     pool.Provider
	selector *matchup.Selector
	engine   *elo.Engine
	sessions *round.Registry
	deduper  dedupe.Deduper
	writers  *workerpool.Pool

	// Configuration
	serializeWrites  bool
	writerQueueSize  int
	dedupeSize       int
	retryAttempts    int
	retryBase        time.Duration
	selectionRetries int
	storeTimeout     time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the rating store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPool sets the candidate pool provider.
func WithPool(p pool.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.pool = p
		}
	}
}

// WithSelector sets the matchup selector.
func WithSelector(sel *matchup.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithEngine sets the rating engine.
func WithEngine(e *elo.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithSessions sets the session registry.
func WithSessions(r *round.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.sessions = r
		}
	}
}

// WithSerializedWrites routes rating writes through one writer per category.
func WithSerializedWrites(enabled bool, queueSize int) Option {
	return func(s *Service) {
		s.serializeWrites = enabled
		if queueSize > 0 {
			s.writerQueueSize = queueSize
		}
	}
}

// WithDedupeSize sets how many consumed matchup ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithVoteRetry sets how often a conflicting write is retried and the
// first backoff, which doubles per attempt.
func WithVoteRetry(attempts int, base time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithSelectionRetries sets how many extra whole selections are tried
// after the selector gives up.
func WithSelectionRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.selectionRetries = n
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		serializeWrites:  true,
		writerQueueSize:  defaultWriterQueueSize,
		dedupeSize:       defaultDedupeSize,
		retryAttempts:    defaultRetryAttempts,
		retryBase:        defaultRetryBase,
		selectionRetries: defaultSelectionRetries,
		storeTimeout:     defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.pool == nil {
		s.pool = pool.Static{}
	}
	if s.selector == nil {
		s.selector = matchup.NewSelector()
	}
	if s.engine == nil {
		s.engine = elo.New()
	}
	if s.sessions == nil {
		s.sessions = round.NewRegistry()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start starts the background components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rating service...")

	if s.serializeWrites {
		s.writers = workerpool.NewPool(model.Categories(), s.writerQueueSize)
		s.writers.Start(ctx)
	}
	s.sessions.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Bool("serializeWrites", s.serializeWrites),
		logger.Int("retryAttempts", s.retryAttempts),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending writes, stops the janitor and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	if s.writers != nil {
		if err := s.writers.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "writer shutdown incomplete", logger.Error(err))
		}
		s.writers = nil
	}
	s.sessions.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// Categories lists the award categories in display order.
func (s *Service) Categories() []model.Category {
	return model.Categories()
}

// Matchup returns the session's current matchup, selecting one if none is
// awaiting a vote.
func (s *Service) Matchup(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error) {
	sess, err := s.session(sessionID, category)
	if err != nil {
		return types.MatchupResult{}, err
	}

	res := types.MatchupResult{SessionID: sess.ID()}
	err = sess.Do(category, func(r *round.Round) error {
		if m, ok := r.Current(); ok {
			res.Matchup = m
			return nil
		}
		m, err := s.selectMatchup(ctx, category)
		if err != nil {
			return err
		}
		r.Advance(m)
		res.Matchup = m
		return nil
	})
	return res, err
}

// Skip replaces the current matchup without a vote. If no replacement can
// be selected the current one is kept.
func (s *Service) Skip(ctx context.Context, sessionID string, category model.Category) (types.MatchupResult, error) {
	sess, err := s.session(sessionID, category)
	if err != nil {
		return types.MatchupResult{}, err
	}

	res := types.MatchupResult{SessionID: sess.ID()}
	err = sess.Do(category, func(r *round.Round) error {
		m, err := s.selectMatchup(ctx, category)
		if err != nil {
			return err
		}
		r.Advance(m)
		res.Matchup = m
		return nil
	})
	return res, err
}

// Vote records a vote on the session's current matchup and moves the
// session on to a new one. A vote that is not for the current matchup, or
// whose matchup was already voted on, fails with round.ErrInvalidVote. The
// latter also drops the matchup so the next Matchup call issues a fresh one.
// If the write fails the matchup stays current so the vote can be resent.
func (s *Service) Vote(ctx context.Context, sessionID string, category model.Category, vote model.Vote) (types.VoteResult, error) {
	start := time.Now()
	sess, err := s.session(sessionID, category)
	if err != nil {
		return types.VoteResult{}, err
	}

	res := types.VoteResult{SessionID: sess.ID()}
	err = sess.Do(category, func(r *round.Round) error {
		winner, loser, err := r.Validate(vote)
		if err != nil {
			return err
		}
		if s.deduper.SeenAndRecord(ctx, vote.MatchupID) {
			// A consumed id can never be voted on again.
			r.Clear()
			return fmt.Errorf("%w: matchup %s already voted on", round.ErrInvalidVote, vote.MatchupID)
		}

		out, err := s.record(ctx, category, winner, loser)
		if err != nil {
			s.deduper.Unrecord(ctx, vote.MatchupID)
			return err
		}
		out.MatchupID = vote.MatchupID
		res.Outcome = out

		next, err := s.selectMatchup(ctx, category)
		if err != nil {
			r.Clear()
			res.NextErr = err
			return nil
		}
		r.Advance(next)
		res.Next = &next
		return nil
	})
	if err != nil {
		metrics.RecordVoteFailed(string(category), failureReason(err))
		s.logger.Debug(ctx, "vote not recorded",
			logger.String("category", string(category)),
			logger.String("matchup_id", vote.MatchupID),
			logger.Error(err))
		return types.VoteResult{SessionID: sess.ID()}, err
	}

	metrics.RecordVoteRecorded(string(category))
	metrics.RecordVoteLatency(string(category), float64(time.Since(start).Microseconds())/1000)
	metrics.RecordRatingTransfer(res.Outcome.Transfer)
	s.logger.Debug(ctx, "vote recorded",
		logger.String("category", string(category)),
		logger.String("winner", res.Outcome.Winner.CandidateID),
		logger.String("loser", res.Outcome.Loser.CandidateID),
		logger.Float64("transfer", res.Outcome.Transfer))
	return res, nil
}

// record runs the read-compute-write pipeline, retrying it from the read
// when the store reports a conflict.
func (s *Service) record(ctx context.Context, category model.Category, winner, loser model.Candidate) (model.Outcome, error) {
	var out model.Outcome
	apply := func(w, l model.CandidateRating) (repository.Record, repository.Record, error) {
		o, err := s.engine.Update(w, l)
		if err != nil {
			return repository.Record{}, repository.Record{}, err
		}
		if winner.Name != "" {
			o.Winner.DisplayName = winner.Name
		}
		if loser.Name != "" {
			o.Loser.DisplayName = loser.Name
		}
		wRec, err := repository.RecordOf(o.Winner)
		if err != nil {
			return repository.Record{}, repository.Record{}, err
		}
		lRec, err := repository.RecordOf(o.Loser)
		if err != nil {
			return repository.Record{}, repository.Record{}, err
		}
		out = o
		return wRec, lRec, nil
	}

	write := func(ctx context.Context) error {
		sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		w, l, err := s.store.Apply(sctx, category, winner, loser, apply)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
			}
			return err
		}
		out.Winner, out.Loser = w, l
		return nil
	}

	backoff := s.retryBase
	for attempt := 1; ; attempt++ {
		err := s.submit(ctx, category, write)
		if err == nil {
			return out, nil
		}
		if !repository.Retryable(err) || attempt >= s.retryAttempts {
			return model.Outcome{}, err
		}

		metrics.RecordVoteRetry(string(category))
		wait := backoff + rand.N(backoff/2+1)
		select {
		case <-ctx.Done():
			return model.Outcome{}, ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
}

func (s *Service) submit(ctx context.Context, category model.Category, fn func(context.Context) error) error {
	s.mu.RLock()
	writers := s.writers
	s.mu.RUnlock()
	if writers == nil {
		return fn(ctx)
	}
	return writers.Submit(ctx, category, fn)
}

// selectMatchup draws a matchup from the category pool. The selector's own
// attempt budget is retried as a whole a few times before giving up.
func (s *Service) selectMatchup(ctx context.Context, category model.Category) (model.Matchup, error) {
	cands, err := s.pool.ListCandidates(ctx, category)
	if err != nil {
		metrics.RecordSelectionFailure(string(category), "pool")
		return model.Matchup{}, fmt.Errorf("list candidates for %s: %w", category, err)
	}

	for attempt := 0; ; attempt++ {
		m, err := s.selector.Select(category, cands)
		switch {
		case err == nil:
			metrics.RecordMatchupIssued(string(category))
			return m, nil
		case errors.Is(err, matchup.ErrPoolTooSmall):
			metrics.RecordSelectionFailure(string(category), "pool_too_small")
			return model.Matchup{}, err
		case errors.Is(err, matchup.ErrSelectionFailed) && attempt < s.selectionRetries:
			metrics.RecordSelectionFailure(string(category), "retry")
			continue
		default:
			metrics.RecordSelectionFailure(string(category), "selection_failed")
			return model.Matchup{}, err
		}
	}
}

func (s *Service) session(id string, category model.Category) (*round.Session, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	return s.sessions.Session(id)
}

// Leaderboard returns a category's ranked ratings. A limit of zero
// returns every rated candidate.
func (s *Service) Leaderboard(ctx context.Context, category model.Category, limit int) ([]types.Entry, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	rows, err := s.store.Leaderboard(sctx, category, limit)
	if err != nil {
		return nil, err
	}
	return types.Ranked(rows), nil
}

// Candidate returns a candidate's current rating, or the default for one
// never voted on. Nothing is written.
func (s *Service) Candidate(ctx context.Context, category model.Category, candidateID string) (model.CandidateRating, error) {
	if !category.Valid() {
		return model.CandidateRating{}, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	r, err := s.store.GetOrDefault(sctx, category, candidateID)
	if err != nil {
		return model.CandidateRating{}, err
	}
	if r.DisplayName == "" {
		if cands, err := s.pool.ListCandidates(ctx, category); err == nil {
			for _, c := range cands {
				if c.ID == candidateID {
					r.DisplayName = c.Name
					break
				}
			}
		}
	}
	return r, nil
}

// Health reports whether the store answers.
func (s *Service) Health(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	_, err := s.store.Count(sctx, model.ALCyYoung)
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"serializeWrites":  s.serializeWrites,
		"retryAttempts":    s.retryAttempts,
		"dedupeSize":       s.dedupeSize,
		"sessions":         s.sessions.Len(),
		"consumedMatchups": s.deduper.Size(),
	}

	if s.started {
		ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
		defer cancel()
		rated := make(map[string]int, len(model.Categories()))
		queued := make(map[string]int, len(model.Categories()))
		for _, c := range model.Categories() {
			if n, err := s.store.Count(ctx, c); err == nil {
				rated[string(c)] = n
			}
			if s.writers != nil {
				queued[string(c)] = s.writers.QueueDepth(ctx, c)
			}
		}
		stats["ratedCandidates"] = rated
		stats["writerQueue"] = queued
	}
	return stats
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, round.ErrInvalidVote):
		return "invalid_vote"
	case errors.Is(err, round.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, workerpool.ErrBackpressure):
		return "backpressure"
	case errors.Is(err, workerpool.ErrStopped):
		return "stopped"
	case errors.Is(err, model.ErrUnknownCategory):
		return "unknown_category"
	default:
		return repository.Kind(err)
	}
}
