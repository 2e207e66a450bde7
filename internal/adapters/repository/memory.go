package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/metrics"
)

const backendMemory = "memory"

// board holds one category. Its mutex is the single writer for the category.
type board struct {
	mu   sync.RWMutex
	root *node
	rows map[string]model.CandidateRating
}

func (b *board) put(r model.CandidateRating) {
	if old, ok := b.rows[r.CandidateID]; ok {
		b.root = remove(b.root, old.CandidateID, old.Rating)
	}
	b.rows[r.CandidateID] = r
	b.root = insert(b.root, r.CandidateID, r.Rating)
}

// MemoryStore is a single-process Store with one treap per category.
type MemoryStore struct {
	boards map[model.Category]*board
	now    func() time.Time
	closed atomic.Bool
}

// NewMemoryStore creates an empty in-memory store for every known category.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	s := &MemoryStore{
		boards: make(map[model.Category]*board),
		now:    o.now,
	}
	for _, c := range model.Categories() {
		s.boards[c] = &board{rows: make(map[string]model.CandidateRating)}
	}
	return s
}

func (s *MemoryStore) board(category model.Category) (*board, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	b, ok := s.boards[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	return b, nil
}

// GetOrDefault implements Store.
func (s *MemoryStore) GetOrDefault(ctx context.Context, category model.Category, candidateID string) (r model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendMemory, "get", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return model.CandidateRating{}, err
	}
	b, err := s.board(category)
	if err != nil {
		return model.CandidateRating{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if row, ok := b.rows[candidateID]; ok {
		return row, nil
	}
	return model.DefaultCandidateRating(category, candidateID, ""), nil
}

// Merge implements Store. Boards are locked in category order so
// multi-category merges cannot deadlock.
func (s *MemoryStore) Merge(ctx context.Context, records ...Record) (err error) {
	defer func(start time.Time) { observe(backendMemory, "merge", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}

	byCategory := make(map[model.Category][]Record)
	for _, rec := range records {
		if _, err := s.board(rec.Category); err != nil {
			return err
		}
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}
	cats := make([]model.Category, 0, len(byCategory))
	for c := range byCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	for _, c := range cats {
		s.boards[c].mu.Lock()
	}
	defer func() {
		for _, c := range cats {
			s.boards[c].mu.Unlock()
		}
	}()

	now := s.now()
	for _, c := range cats {
		for _, rec := range byCategory[c] {
			s.boards[c].put(rec.Row(now))
		}
	}
	for _, c := range cats {
		metrics.UpdateRatedCandidates(string(c), len(s.boards[c].rows))
	}
	return nil
}

// Apply implements Store. The category lock is held from read to write.
func (s *MemoryStore) Apply(ctx context.Context, category model.Category, winner, loser model.Candidate, fn ApplyFunc) (w, l model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendMemory, "apply", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	b, err := s.board(category)
	if err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := func(c model.Candidate) model.CandidateRating {
		if row, ok := b.rows[c.ID]; ok {
			return row
		}
		return model.DefaultCandidateRating(category, c.ID, c.Name)
	}

	wRec, lRec, err := fn(current(winner), current(loser))
	if err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	if err := checkPair(category, winner, loser, wRec, lRec); err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.CandidateRating{}, model.CandidateRating{}, err
	}

	now := s.now()
	w, l = wRec.Row(now), lRec.Row(now)
	b.put(w)
	b.put(l)
	metrics.UpdateRatedCandidates(string(category), len(b.rows))
	return w, l, nil
}

// Leaderboard implements Store.
func (s *MemoryStore) Leaderboard(ctx context.Context, category model.Category, limit int) (out []model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendMemory, "leaderboard", start, err) }(time.Now())

	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.board(category)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	size := len(b.rows)
	if limit > 0 && limit < size {
		size = limit
	}
	out = make([]model.CandidateRating, 0, size)
	walk(b.root, limit, func(id string) {
		out = append(out, b.rows[id])
	})
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, category model.Category) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b, err := s.board(category)
	if err != nil {
		return 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// checkPair guards against an ApplyFunc writing rows other than the pair it was given.
func checkPair(category model.Category, winner, loser model.Candidate, w, l Record) error {
	if w.Category != category || l.Category != category ||
		w.CandidateID != winner.ID || l.CandidateID != loser.ID {
		return fmt.Errorf("%w: apply result does not match %s/%s vs %s", ErrSerialization, category, winner.ID, loser.ID)
	}
	return nil
}
