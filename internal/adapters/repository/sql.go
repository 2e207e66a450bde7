package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

const backendSQL = "sql"

// ratingRow is the persisted candidate rating. The composite primary key is
// the (category, candidate_id) uniqueness constraint.
type ratingRow struct {
	Category    string    `gorm:"primaryKey;size:32;index:idx_candidate_ratings_board,priority:1"`
	CandidateID string    `gorm:"primaryKey;size:64"`
	DisplayName string    `gorm:"size:128;not null;default:''"`
	Rating      float64   `gorm:"not null;index:idx_candidate_ratings_board,priority:2"`
	MatchCount  int64     `gorm:"not null;default:0"`
	Version     int64     `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ratingRow) TableName() string { return "candidate_ratings" }

func (r ratingRow) domain() model.CandidateRating {
	return model.CandidateRating{
		Category:    model.Category(r.Category),
		CandidateID: r.CandidateID,
		DisplayName: r.DisplayName,
		Rating:      r.Rating,
		MatchCount:  r.MatchCount,
		UpdatedAt:   r.UpdatedAt,
	}
}

var conflictTarget = []clause.Column{{Name: "category"}, {Name: "candidate_id"}} //nolint:gochecknoglobals // fixed upsert target

// OpenSQLite opens a SQLite database for the SQL store. A single connection
// keeps writers from tripping over SQLITE_BUSY.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrUnavailable, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite pool: %w", ErrUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a PostgreSQL database for the SQL store.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", ErrUnavailable, err)
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// SQLStore persists ratings through gorm. Apply is optimistic: rows carry a
// version and a write that finds a different version reports ErrConflict.
type SQLStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger logger.Logger
}

// NewSQLStore migrates the schema and returns a store over db.
func NewSQLStore(ctx context.Context, db *gorm.DB, opts ...Option) (*SQLStore, error) {
	o := newOptions(opts)
	if err := db.WithContext(ctx).AutoMigrate(&ratingRow{}); err != nil {
		return nil, fmt.Errorf("migrate candidate_ratings: %w", classifySQL(err))
	}
	return &SQLStore{db: db, now: o.now, logger: o.logger}, nil
}

// GetOrDefault implements Store.
func (s *SQLStore) GetOrDefault(ctx context.Context, category model.Category, candidateID string) (r model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendSQL, "get", start, err) }(time.Now())

	var row ratingRow
	err = s.db.WithContext(ctx).
		Where("category = ? AND candidate_id = ?", string(category), candidateID).
		Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.DefaultCandidateRating(category, candidateID, ""), nil
	case err != nil:
		return model.CandidateRating{}, classifySQL(err)
	}
	return row.domain(), nil
}

// Merge implements Store with INSERT ... ON CONFLICT (category, candidate_id) DO UPDATE.
func (s *SQLStore) Merge(ctx context.Context, records ...Record) (err error) {
	defer func(start time.Time) { observe(backendSQL, "merge", start, err) }(time.Now())

	if len(records) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]ratingRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ratingRow{
			Category:    string(rec.Category),
			CandidateID: rec.CandidateID,
			DisplayName: rec.DisplayName,
			Rating:      rec.Rating,
			MatchCount:  rec.MatchCount,
			Version:     1,
			UpdatedAt:   now,
		})
	}

	set := clause.AssignmentColumns([]string{"display_name", "rating", "match_count", "updated_at"})
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("candidate_ratings.version + 1"),
	})

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: conflictTarget, DoUpdates: set}).
		Create(&rows).Error
	return classifySQL(err)
}

// Apply implements Store. Both rows are read, fn computes, and both writes
// are version-checked inside one transaction.
func (s *SQLStore) Apply(ctx context.Context, category model.Category, winner, loser model.Candidate, fn ApplyFunc) (w, l model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendSQL, "apply", start, err) }(time.Now())

	var fnErr error
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found []ratingRow
		if err := tx.Where("category = ? AND candidate_id IN ?", string(category), []string{winner.ID, loser.ID}).
			Find(&found).Error; err != nil {
			return err
		}
		existing := make(map[string]ratingRow, len(found))
		for _, row := range found {
			existing[row.CandidateID] = row
		}
		current := func(c model.Candidate) model.CandidateRating {
			if row, ok := existing[c.ID]; ok {
				return row.domain()
			}
			return model.DefaultCandidateRating(category, c.ID, c.Name)
		}

		wRec, lRec, err := fn(current(winner), current(loser))
		if err != nil {
			fnErr = err
			return err
		}
		if err := checkPair(category, winner, loser, wRec, lRec); err != nil {
			return err
		}

		now := s.now().UTC()
		for _, rec := range []Record{wRec, lRec} {
			row, ok := existing[rec.CandidateID]
			if err := s.write(tx, rec, row, ok, now); err != nil {
				return err
			}
		}
		w, l = wRec.Row(now), lRec.Row(now)
		return nil
	})
	if fnErr != nil {
		return model.CandidateRating{}, model.CandidateRating{}, fnErr
	}
	if err != nil {
		err = classifySQL(err)
		if errors.Is(err, ErrConflict) {
			metrics.RecordStoreConflict(backendSQL)
			s.logger.Debug(ctx, "rating write conflict",
				logger.String("category", string(category)),
				logger.String("winner", winner.ID),
				logger.String("loser", loser.ID),
				logger.Error(err))
		}
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	return w, l, nil
}

// write updates an existing row only at the version that was read, or
// inserts a missing row only if nobody else inserted it first.
func (s *SQLStore) write(tx *gorm.DB, rec Record, read ratingRow, exists bool, now time.Time) error {
	if exists {
		res := tx.Model(&ratingRow{}).
			Where("category = ? AND candidate_id = ? AND version = ?", read.Category, read.CandidateID, read.Version).
			Updates(map[string]any{
				"display_name": rec.DisplayName,
				"rating":       rec.Rating,
				"match_count":  rec.MatchCount,
				"version":      gorm.Expr("version + 1"),
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s/%s changed since version %d", ErrConflict, rec.Category, rec.CandidateID, read.Version)
		}
		return nil
	}

	res := tx.Clauses(clause.OnConflict{Columns: conflictTarget, DoNothing: true}).Create(&ratingRow{
		Category:    string(rec.Category),
		CandidateID: rec.CandidateID,
		DisplayName: rec.DisplayName,
		Rating:      rec.Rating,
		MatchCount:  rec.MatchCount,
		Version:     1,
		UpdatedAt:   now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s inserted concurrently", ErrConflict, rec.Category, rec.CandidateID)
	}
	return nil
}

// Leaderboard implements Store.
func (s *SQLStore) Leaderboard(ctx context.Context, category model.Category, limit int) (out []model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendSQL, "leaderboard", start, err) }(time.Now())

	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	q := s.db.WithContext(ctx).
		Where("category = ?", string(category)).
		Order("rating DESC").
		Order("candidate_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ratingRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, classifySQL(err)
	}
	out = make([]model.CandidateRating, len(rows))
	for i, row := range rows {
		out[i] = row.domain()
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, category model.Category) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ratingRow{}).Where("category = ?", string(category)).Count(&n).Error
	if err != nil {
		return 0, classifySQL(err)
	}
	metrics.UpdateRatedCandidates(string(category), int(n))
	return int(n), nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classifySQL maps driver errors onto the store sentinels. Lock contention
// and serialization failures are conflicts; anything else from the database
// is treated as the backend being unavailable.
func classifySQL(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrSerialization) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidLimit) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
