package votesim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchelo/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Runner configuration constants.
const (
	retryBackoff     = 20 * time.Millisecond
	leaderboardLimit = 1000
)

// ErrVerification reports a run whose final state breaks an invariant.
var ErrVerification = errors.New("verification failed")

type runner struct {
	cfg    *Config
	client *client
	log    logger.Logger

	submitted atomic.Int64
	recorded  atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64

	mu          sync.Mutex
	perCategory map[string]int64
}

// Run executes a simulation: it snapshots each category's leaderboard,
// drives the sessions, then checks the leaderboards against the recorded
// votes.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Sessions < 1 || cfg.Rounds < 0 {
		return nil, fmt.Errorf("sessions must be positive and rounds non-negative, got %d and %d", cfg.Sessions, cfg.Rounds)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	r := &runner{
		cfg:         cfg,
		client:      newClient(cfg.BaseURL, cfg.Timeout),
		log:         logger.Get().Named("votesim"),
		perCategory: map[string]int64{},
	}
	stats := &Stats{StartTime: time.Now()}

	r.log.Info(ctx, "starting vote simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("rounds", cfg.Rounds))

	if err := r.checkHealth(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	cats, err := r.categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	before := make(map[string][]Entry, len(cats))
	for _, c := range cats {
		if before[c], err = r.leaderboard(ctx, c); err != nil {
			return nil, fmt.Errorf("leaderboard %s: %w", c, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Sessions; i++ {
		c := cats[i%len(cats)]
		g.Go(func() error { return r.session(gctx, c) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.VotesSubmitted = r.submitted.Load()
	stats.VotesRecorded = r.recorded.Load()
	stats.VotesRejected = r.rejected.Load()
	stats.VotesFailed = r.failed.Load()
	stats.Retries = r.retries.Load()
	stats.PerCategory = r.perCategory

	var verr []error
	for _, c := range cats {
		after, err := r.leaderboard(ctx, c)
		if err != nil {
			return stats, fmt.Errorf("leaderboard %s: %w", c, err)
		}
		if err := Verify(before[c], after, r.perCategory[c]); err != nil {
			verr = append(verr, fmt.Errorf("%s: %w", c, err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	r.report(ctx, stats)

	if len(verr) > 0 {
		return stats, errors.Join(verr...)
	}
	r.log.Info(ctx, "simulation verified")
	return stats, nil
}

// session fetches a matchup and votes for a random member, Rounds times.
// Failed votes are counted, not fatal.
func (r *runner) session(ctx context.Context, category string) error {
	var (
		sid  string
		next *matchup
	)
	path := "/categories/" + url.PathEscape(category)

	for i := 0; i < r.cfg.Rounds; i++ {
		if next == nil {
			var res matchupResponse
			echoed, err := r.retry(ctx, func() (string, error) {
				return r.client.do(ctx, http.MethodGet, path+"/matchup", sid, nil, &res)
			})
			if echoed != "" {
				sid = echoed
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Warn(ctx, "no matchup", logger.String("category", category), logger.Error(err))
				r.failed.Add(1)
				continue
			}
			next = &res.Matchup
		}

		m := *next
		winner := m.A.ID
		if rand.N(2) == 1 {
			winner = m.B.ID
		}

		var res voteResponse
		r.submitted.Add(1)
		_, err := r.retry(ctx, func() (string, error) {
			return r.client.do(ctx, http.MethodPost, path+"/votes", sid, voteRequest{MatchupID: m.ID, WinnerID: winner}, &res)
		})
		var se *errStatus
		switch {
		case err == nil:
			r.recorded.Add(1)
			r.mu.Lock()
			r.perCategory[category]++
			r.mu.Unlock()
			next = res.Next
			if r.cfg.Verbose {
				r.log.Debug(ctx, "vote recorded",
					logger.String("category", category),
					logger.String("matchup_id", m.ID),
					logger.String("winner", winner))
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &se) && se.Code == http.StatusConflict:
			r.rejected.Add(1)
			next = nil
		default:
			r.failed.Add(1)
			r.log.Warn(ctx, "vote failed", logger.String("category", category), logger.Error(err))
		}
	}
	return nil
}

// retry repeats fn while the service answers 429 or 503.
func (r *runner) retry(ctx context.Context, fn func() (string, error)) (string, error) {
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		sid, err := fn()
		if err == nil || !retryable(err) || attempt >= r.cfg.Retries {
			return sid, err
		}
		r.retries.Add(1)
		select {
		case <-ctx.Done():
			return sid, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (r *runner) checkHealth(ctx context.Context) error {
	_, err := r.client.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
	return err
}

func (r *runner) categories(ctx context.Context) ([]string, error) {
	if len(r.cfg.Categories) > 0 {
		return r.cfg.Categories, nil
	}
	var cats []category
	if _, err := r.client.do(ctx, http.MethodGet, "/categories", "", nil, &cats); err != nil {
		return nil, err
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.ID
	}
	if len(out) == 0 {
		return nil, errors.New("service lists no categories")
	}
	return out, nil
}

func (r *runner) leaderboard(ctx context.Context, category string) ([]Entry, error) {
	var lb leaderboardResponse
	path := fmt.Sprintf("/categories/%s/leaderboard?limit=%d", url.PathEscape(category), leaderboardLimit)
	if _, err := r.client.do(ctx, http.MethodGet, path, "", nil, &lb); err != nil {
		return nil, err
	}
	return lb.Entries, nil
}

func (r *runner) report(ctx context.Context, stats *Stats) {
	var votesPerSecond float64
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.VotesRecorded) / stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int64("votesSubmitted", stats.VotesSubmitted),
		logger.Int64("votesRecorded", stats.VotesRecorded),
		logger.Int64("votesRejected", stats.VotesRejected),
		logger.Int64("votesFailed", stats.VotesFailed),
		logger.Int64("retries", stats.Retries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("votesPerSecond", votesPerSecond))
}
