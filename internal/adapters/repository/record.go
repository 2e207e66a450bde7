package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
)

// Record is the normalized form of a row crossing the store boundary.
// Build it with NewRecord or RecordOf so every backend sees native types.
type Record struct {
	Category    model.Category
	CandidateID string
	DisplayName string
	Rating      float64
	MatchCount  int64
}

// NewRecord normalizes rating and matchCount from any numeric representation.
// Failures wrap ErrSerialization and nothing is written.
func NewRecord(category model.Category, candidateID, displayName string, rating, matchCount any) (Record, error) {
	if !category.Valid() {
		return Record{}, fmt.Errorf("%w: category %q", ErrSerialization, category)
	}
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Record{}, fmt.Errorf("%w: empty candidate id", ErrSerialization)
	}

	r, err := Float64(rating)
	if err != nil {
		return Record{}, fmt.Errorf("rating of %s/%s: %w", category, candidateID, err)
	}
	n, err := Int64(matchCount)
	if err != nil {
		return Record{}, fmt.Errorf("match count of %s/%s: %w", category, candidateID, err)
	}
	if n < 0 {
		return Record{}, fmt.Errorf("%w: negative match count %d for %s/%s", ErrSerialization, n, category, candidateID)
	}

	return Record{
		Category:    category,
		CandidateID: candidateID,
		DisplayName: displayName,
		Rating:      r,
		MatchCount:  n,
	}, nil
}

// RecordOf normalizes an engine result.
func RecordOf(r model.CandidateRating) (Record, error) {
	return NewRecord(r.Category, r.CandidateID, r.DisplayName, r.Rating, r.MatchCount)
}

// Row converts the record back to the domain row stamped at.
func (r Record) Row(at time.Time) model.CandidateRating {
	return model.CandidateRating{
		Category:    r.Category,
		CandidateID: r.CandidateID,
		DisplayName: r.DisplayName,
		Rating:      r.Rating,
		MatchCount:  r.MatchCount,
		UpdatedAt:   at,
	}
}

// Float64 coerces v to a finite float64.
func Float64(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		f = parsed
	case *big.Float:
		if x == nil {
			return 0, fmt.Errorf("%w: nil big.Float", ErrSerialization)
		}
		f, _ = x.Float64()
	case *big.Int:
		if x == nil {
			return 0, fmt.Errorf("%w: nil big.Int", ErrSerialization)
		}
		f, _ = new(big.Float).SetInt(x).Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", ErrSerialization, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite value %v", ErrSerialization, f)
	}
	return f, nil
}

// Int64 coerces v to an int64. Floats must be integral.
func Int64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return floatToInt64(f)
	case *big.Int:
		if x == nil || !x.IsInt64() {
			return 0, fmt.Errorf("%w: big.Int out of int64 range", ErrSerialization)
		}
		return x.Int64(), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported integer type %T", ErrSerialization, v)
	}
}

func uintToInt64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d overflows int64", ErrSerialization, u)
	}
	return int64(u), nil
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrSerialization, f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v overflows int64", ErrSerialization, f)
	}
	return int64(f), nil
}
