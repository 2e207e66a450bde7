package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

// BreakerStore wraps a Store with a circuit breaker. Conflicts, bad values
// and caller mistakes count as successes; only backend failures trip it.
// While open every call fails fast with ErrUnavailable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, opts ...Option) *BreakerStore {
	o := newOptions(opts)
	log := o.logger
	metrics.UpdateBreakerState(o.breakerName, stateValue(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:        o.breakerName,
		MaxRequests: 1,
		Interval:    o.breakerInterval,
		Timeout:     o.breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < o.breakerMinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= o.breakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, stateValue(to))
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			log.Warn(context.Background(), "rating store breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) run(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}

// GetOrDefault implements Store.
func (b *BreakerStore) GetOrDefault(ctx context.Context, category model.Category, candidateID string) (model.CandidateRating, error) {
	v, err := b.run(func() (any, error) { return b.next.GetOrDefault(ctx, category, candidateID) })
	if err != nil {
		return model.CandidateRating{}, err
	}
	return v.(model.CandidateRating), nil
}

// Merge implements Store.
func (b *BreakerStore) Merge(ctx context.Context, records ...Record) error {
	_, err := b.run(func() (any, error) { return nil, b.next.Merge(ctx, records...) })
	return err
}

type pair struct{ w, l model.CandidateRating }

// Apply implements Store.
func (b *BreakerStore) Apply(ctx context.Context, category model.Category, winner, loser model.Candidate, fn ApplyFunc) (model.CandidateRating, model.CandidateRating, error) {
	v, err := b.run(func() (any, error) {
		w, l, err := b.next.Apply(ctx, category, winner, loser, fn)
		return pair{w, l}, err
	})
	if err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	p := v.(pair)
	return p.w, p.l, nil
}

// Leaderboard implements Store.
func (b *BreakerStore) Leaderboard(ctx context.Context, category model.Category, limit int) ([]model.CandidateRating, error) {
	v, err := b.run(func() (any, error) { return b.next.Leaderboard(ctx, category, limit) })
	if err != nil {
		return nil, err
	}
	return v.([]model.CandidateRating), nil
}

// Count implements Store.
func (b *BreakerStore) Count(ctx context.Context, category model.Category) (int, error) {
	v, err := b.run(func() (any, error) { return b.next.Count(ctx, category) })
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Close implements Store.
func (b *BreakerStore) Close() error { return b.next.Close() }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
