package round

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

// Default registry configuration constants.
const (
	defaultSessionTTL  = 24 * time.Hour
	minJanitorInterval = time.Second
	maxSessionIDLength = 128
)

// Registry holds in-memory sessions and evicts idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	newID    func() (string, error)
	logger   logger.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithTTL sets how long an idle session is kept.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithJanitorInterval sets how often idle sessions are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      defaultSessionTTL,
		now:      time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.interval == 0 {
		r.interval = max(r.ttl/2, minJanitorInterval)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("sessions")
	}
	return r
}

// Session returns the session for id. An empty id creates a session with
// a fresh id; an unknown id creates a session under that id.
func (r *Registry) Session(id string) (*Session, error) {
	if id == "" {
		generated, err := r.newID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		id = generated
	} else if err := validID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id, r.now)
		r.sessions[id] = s
		metrics.UpdateSessionsActive(len(r.sessions))
	}
	s.touch()
	return s, nil
}

func validID(id string) error {
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidSession, maxSessionIDLength)
	}
	for _, c := range id {
		if unicode.IsControl(c) || unicode.IsSpace(c) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidSession)
		}
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted int
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	metrics.UpdateSessionsActive(len(r.sessions))
	return evicted
}

// Start runs the janitor until ctx ends or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Debug(ctx, "evicted idle sessions", logger.Int("count", n))
				}
			}
		}
	}()
}

// Stop ends the janitor and waits for it. It is safe to call without Start.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	if r.started.Load() {
		<-r.done
	}
}
