// Package pool supplies the candidates eligible for matchups in each
// category.
package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/okian/pitchelo/internal/domain/model"
)

// ErrInvalidPool reports a pool source that cannot be used.
var ErrInvalidPool = errors.New("invalid candidate pool")

// DefaultSize is how many top candidates of a category enter the pool.
const DefaultSize = 50

// Provider lists the candidates of a category, best first.
type Provider interface {
	ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error)
}

// Static serves a fixed pool.
type Static map[model.Category][]model.Candidate

// ListCandidates implements Provider. Unknown categories have an empty pool.
func (s Static) ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	return slices.Clone(s[category]), nil
}

// rank drops repeated ids keeping the first, orders by metric descending
// and keeps at most size entries.
func rank(in []model.Candidate, size int) []model.Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Candidate, 0, len(in))
	for _, c := range in {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b model.Candidate) int {
		switch {
		case a.Metric > b.Metric:
			return -1
		case a.Metric < b.Metric:
			return 1
		default:
			return 0
		}
	})
	if size > 0 && len(out) > size {
		out = out[:size]
	}
	return out
}
