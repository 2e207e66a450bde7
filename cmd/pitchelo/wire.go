package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/pitchelo/internal/adapters/http/api"
	"github.com/okian/pitchelo/internal/adapters/http/swagger"
	"github.com/okian/pitchelo/internal/adapters/pool"
	repository "github.com/okian/pitchelo/internal/adapters/repository"
	app "github.com/okian/pitchelo/internal/app"
	"github.com/okian/pitchelo/internal/config"
	"github.com/okian/pitchelo/internal/domain/matchup"
	"github.com/okian/pitchelo/internal/domain/round"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// newStore opens the configured rating store, wrapped in a breaker when enabled.
func newStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithLogger(log.Named("repository")),
		repository.WithKeyPrefix(cfg.RedisKeyPrefix),
		repository.WithBreakerTrip(cfg.BreakerFailureRatio, cfg.BreakerMinRequests),
		repository.WithBreakerTimeout(cfg.BreakerOpenTimeout()),
	}

	var store repository.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store = repository.NewMemoryStore(opts...)
	case config.BackendSQLite, config.BackendPostgres:
		open := repository.OpenSQLite
		if cfg.StoreBackend == config.BackendPostgres {
			open = repository.OpenPostgres
		}
		db, err := open(cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
		}
		s, err := repository.NewSQLStore(ctx, db, opts...)
		if err != nil {
			return nil, fmt.Errorf("migrate %s store: %w", cfg.StoreBackend, err)
		}
		store = s
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		store = repository.NewRedisStore(client, opts...)
	default:
		return nil, fmt.Errorf("%w: store_backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}

	if cfg.BreakerEnabled {
		store = repository.NewBreakerStore(store, opts...)
	}
	return store, nil
}

// newPool builds the candidate pool provider. Without a pool file every
// category serves an empty pool.
func newPool(cfg *config.Config) (pool.Provider, error) {
	if cfg.PoolFile == "" {
		return pool.Static{}, nil
	}
	file, err := pool.NewFileProvider(cfg.PoolFile, pool.WithPoolSize(cfg.PoolSize))
	if err != nil {
		return nil, err
	}
	return pool.NewCached(file, pool.WithTTL(cfg.PoolTTL())), nil
}

func newService(cfg *config.Config, store repository.Store, provider pool.Provider, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithPool(provider),
		app.WithSelector(matchup.NewSelector(matchup.WithAttempts(cfg.SelectionAttempts))),
		app.WithSessions(round.NewRegistry(
			round.WithTTL(cfg.SessionTTL()),
			round.WithLogger(log.Named("sessions")),
		)),
		app.WithSerializedWrites(cfg.SerializeWrites, cfg.WriterQueueSize),
		app.WithDedupeSize(cfg.ConsumedMatchupCacheSize),
		app.WithVoteRetry(cfg.VoteRetryAttempts, cfg.VoteRetryBase()),
		app.WithSelectionRetries(cfg.SelectionRetries),
		app.WithStoreTimeout(cfg.StoreTimeout()),
	)
}

func newAPIServer(cfg *config.Config, svc api.Dependencies, log logger.Logger) *api.Server {
	return api.NewServer(svc,
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithLogger(log.Named("api")),
	)
}

// newMux registers the business API and its reference docs.
func newMux(ctx context.Context, cfg *config.Config, svc api.Dependencies, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	newAPIServer(cfg, svc, log).Register(ctx, mux)
	swagger.Register(ctx, mux)
	return mux
}
