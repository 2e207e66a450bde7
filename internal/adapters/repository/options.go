package repository

import (
	"time"

	"github.com/okian/pitchelo/pkg/logger"
)

// Default store configuration constants.
const (
	defaultKeyPrefix          = "pitchelo"
	defaultBreakerName        = "rating-store"
	defaultBreakerRatio       = 0.6
	defaultBreakerMinRequests = 10
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerInterval    = time.Minute
)

type options struct {
	now       func() time.Time
	keyPrefix string
	logger    logger.Logger

	breakerName        string
	breakerRatio       float64
	breakerMinRequests uint32
	breakerTimeout     time.Duration
	breakerInterval    time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		now:                time.Now,
		keyPrefix:          defaultKeyPrefix,
		breakerName:        defaultBreakerName,
		breakerRatio:       defaultBreakerRatio,
		breakerMinRequests: defaultBreakerMinRequests,
		breakerTimeout:     defaultBreakerTimeout,
		breakerInterval:    defaultBreakerInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("repository")
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock overrides the time stamped on written rows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeyPrefix namespaces Redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBreakerName names the circuit breaker in logs and metrics.
func WithBreakerName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.breakerName = name
		}
	}
}

// WithBreakerTrip opens the breaker once ratio of at least minRequests
// calls in the current interval failed.
func WithBreakerTrip(ratio float64, minRequests uint32) Option {
	return func(o *options) {
		if ratio > 0 && ratio <= 1 {
			o.breakerRatio = ratio
		}
		if minRequests > 0 {
			o.breakerMinRequests = minRequests
		}
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing.
func WithBreakerTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.breakerTimeout = d
		}
	}
}

// WithBreakerInterval sets the closed-state window after which counts reset.
func WithBreakerInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.breakerInterval = d
		}
	}
}
