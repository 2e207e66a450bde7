// Package repository holds the rating store contract and its backends.
//
// Every backend closes the read-modify-write race of a vote inside Apply:
// the in-memory store serializes writers per category, while the SQL and
// Redis stores use optimistic checks and report ErrConflict so the caller
// can rerun the whole pipeline from the read.
package repository

import (
	"context"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/metrics"
)

// ApplyFunc computes the rows to write from the current winner and loser
// rows. Unseen candidates arrive as materialized defaults. It may run more
// than once per vote and must not have side effects beyond its return values.
type ApplyFunc func(winner, loser model.CandidateRating) (Record, Record, error)

// Store provides read/write access to candidate ratings.
type Store interface {
	// GetOrDefault returns the stored row or a default one. It never writes.
	GetOrDefault(ctx context.Context, category model.Category, candidateID string) (model.CandidateRating, error)

	// Merge upserts records keyed by (category, candidate_id) as one unit.
	Merge(ctx context.Context, records ...Record) error

	// Apply reads both rows, calls fn and writes its result atomically.
	// It returns the rows as written.
	Apply(ctx context.Context, category model.Category, winner, loser model.Candidate, fn ApplyFunc) (model.CandidateRating, model.CandidateRating, error)

	// Leaderboard returns rows by rating desc then candidate id asc.
	// A limit of zero returns every row.
	Leaderboard(ctx context.Context, category model.Category, limit int) ([]model.CandidateRating, error)

	// Count returns the number of stored rows in a category.
	Count(ctx context.Context, category model.Category) (int, error)

	Close() error
}

// observe records latency and error kind for one store operation.
func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(backend, op, Kind(err))
	}
}
