package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

const backendRedis = "redis"

// Hash fields of a rating row.
const (
	fieldName       = "name"
	fieldRating     = "rating"
	fieldMatchCount = "matches"
	fieldUpdatedAt  = "updated_at"
)

// RedisStore keeps one hash per rating row and one sorted set per category
// scored by rating. Apply uses WATCH on both row keys so a concurrent write
// aborts the transaction with ErrConflict.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
	logger logger.Logger
}

// NewRedisStore returns a store over client. The caller owns the client
// until Close is called.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{client: client, prefix: o.keyPrefix, now: o.now, logger: o.logger}
}

func (s *RedisStore) rowKey(category model.Category, id string) string {
	return s.prefix + ":rating:" + string(category) + ":" + id
}

func (s *RedisStore) boardKey(category model.Category) string {
	return s.prefix + ":board:" + string(category)
}

// GetOrDefault implements Store.
func (s *RedisStore) GetOrDefault(ctx context.Context, category model.Category, candidateID string) (r model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendRedis, "get", start, err) }(time.Now())

	fields, err := s.client.HGetAll(ctx, s.rowKey(category, candidateID)).Result()
	if err != nil {
		return model.CandidateRating{}, classifyRedis(err)
	}
	if len(fields) == 0 {
		return model.DefaultCandidateRating(category, candidateID, ""), nil
	}
	return decodeRow(category, candidateID, fields)
}

// Merge implements Store. All rows are written in one MULTI/EXEC.
func (s *RedisStore) Merge(ctx context.Context, records ...Record) (err error) {
	defer func(start time.Time) { observe(backendRedis, "merge", start, err) }(time.Now())

	if len(records) == 0 {
		return nil
	}
	now := s.now()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			s.queueWrite(ctx, pipe, rec, now)
		}
		return nil
	})
	return classifyRedis(err)
}

func (s *RedisStore) queueWrite(ctx context.Context, pipe redis.Pipeliner, rec Record, now time.Time) {
	pipe.HSet(ctx, s.rowKey(rec.Category, rec.CandidateID),
		fieldName, rec.DisplayName,
		fieldRating, strconv.FormatFloat(rec.Rating, 'g', -1, 64),
		fieldMatchCount, strconv.FormatInt(rec.MatchCount, 10),
		fieldUpdatedAt, now.UTC().Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, s.boardKey(rec.Category), redis.Z{Score: rec.Rating, Member: rec.CandidateID})
}

// Apply implements Store.
func (s *RedisStore) Apply(ctx context.Context, category model.Category, winner, loser model.Candidate, fn ApplyFunc) (w, l model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendRedis, "apply", start, err) }(time.Now())

	var fnErr error
	wKey, lKey := s.rowKey(category, winner.ID), s.rowKey(category, loser.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current := func(key string, c model.Candidate) (model.CandidateRating, error) {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return model.CandidateRating{}, err
			}
			if len(fields) == 0 {
				return model.DefaultCandidateRating(category, c.ID, c.Name), nil
			}
			return decodeRow(category, c.ID, fields)
		}
		wCur, err := current(wKey, winner)
		if err != nil {
			return err
		}
		lCur, err := current(lKey, loser)
		if err != nil {
			return err
		}

		wRec, lRec, err := fn(wCur, lCur)
		if err == nil {
			err = checkPair(category, winner, loser, wRec, lRec)
		}
		if err != nil {
			fnErr = err
			return err
		}

		now := s.now()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueWrite(ctx, pipe, wRec, now)
			s.queueWrite(ctx, pipe, lRec, now)
			return nil
		})
		if err != nil {
			return err
		}
		w, l = wRec.Row(now), lRec.Row(now)
		return nil
	}, wKey, lKey)

	switch {
	case fnErr != nil:
		return model.CandidateRating{}, model.CandidateRating{}, fnErr
	case err != nil:
		err = classifyRedis(err)
		if errors.Is(err, ErrConflict) {
			metrics.RecordStoreConflict(backendRedis)
		}
		return model.CandidateRating{}, model.CandidateRating{}, err
	}
	return w, l, nil
}

// Leaderboard implements Store. The sorted set orders equal scores by
// member descending under ZREVRANGE, so each run of equal ratings is
// re-sorted by id ascending. The run straddling the limit is completed
// with ZRANGEBYSCORE before cutting.
func (s *RedisStore) Leaderboard(ctx context.Context, category model.Category, limit int) (out []model.CandidateRating, err error) {
	defer func(start time.Time) { observe(backendRedis, "leaderboard", start, err) }(time.Now())

	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	key := s.boardKey(category)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, classifyRedis(err)
	}
	if len(zs) == 0 {
		return []model.CandidateRating{}, nil
	}

	if limit > 0 && len(zs) == limit {
		edge := zs[len(zs)-1].Score
		bound := strconv.FormatFloat(edge, 'g', -1, 64)
		tied, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: bound, Max: bound}).Result()
		if err != nil {
			return nil, classifyRedis(err)
		}
		head := zs[:0:0]
		for _, z := range zs {
			if z.Score != edge {
				head = append(head, z)
			}
		}
		zs = append(head, tied...)
	}

	sort.SliceStable(zs, func(i, j int) bool {
		return before(zs[i].Score, zs[i].Member.(string), zs[j].Score, zs[j].Member.(string))
	})
	if limit > 0 && len(zs) > limit {
		zs = zs[:limit]
	}

	cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, z := range zs {
			pipe.HGetAll(ctx, s.rowKey(category, z.Member.(string)))
		}
		return nil
	})
	if err != nil {
		return nil, classifyRedis(err)
	}

	out = make([]model.CandidateRating, 0, len(zs))
	for i, cmd := range cmds {
		id := zs[i].Member.(string)
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, classifyRedis(err)
		}
		if len(fields) == 0 {
			s.logger.Warn(ctx, "board member without row", logger.String("category", string(category)), logger.String("candidate_id", id))
			continue
		}
		row, err := decodeRow(category, id, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	// A commit between the range and the hash reads leaves scores stale.
	sort.SliceStable(out, func(i, j int) bool {
		return before(out[i].Rating, out[i].CandidateID, out[j].Rating, out[j].CandidateID)
	})
	return out, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, category model.Category) (int, error) {
	n, err := s.client.ZCard(ctx, s.boardKey(category)).Result()
	if err != nil {
		return 0, classifyRedis(err)
	}
	metrics.UpdateRatedCandidates(string(category), int(n))
	return int(n), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decodeRow normalizes a hash read back from Redis.
func decodeRow(category model.Category, id string, fields map[string]string) (model.CandidateRating, error) {
	rec, err := NewRecord(category, id, fields[fieldName], fields[fieldRating], fields[fieldMatchCount])
	if err != nil {
		return model.CandidateRating{}, err
	}
	var at time.Time
	if raw := fields[fieldUpdatedAt]; raw != "" {
		at, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.CandidateRating{}, fmt.Errorf("%w: updated_at %q: %w", ErrSerialization, raw, err)
		}
	}
	return rec.Row(at), nil
}

func classifyRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSerialization), errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
