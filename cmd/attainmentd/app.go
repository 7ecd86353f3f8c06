package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alem-hub/attainment-engine/config"
	"github.com/alem-hub/attainment-engine/internal/application/query"
	"github.com/alem-hub/attainment-engine/internal/domain/attainment"
	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
	"github.com/alem-hub/attainment-engine/internal/infrastructure/external/clusterapi"
	"github.com/alem-hub/attainment-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/attainment-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/attainment-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/attainment-engine/internal/interface/http/handlers"
	"github.com/alem-hub/attainment-engine/pkg/logger"
)

// app holds the wired components shared by every command.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *postgres.Connection
	cache *redis.Cache

	thresholds attainment.Thresholds
	gateway    *cluster.Gateway

	summary  *query.GetOutcomeSummaryHandler
	roster   *query.GetOutcomeRosterHandler
	clusters *query.GetStudentClustersHandler

	health *handlers.CompositeHealthChecker
}

// bootstrap loads configuration and connects every dependency.
// The caller must call close.
func bootstrap(ctx context.Context) (*app, error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	a := &app{cfg: cfg, log: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Debug("connecting to database")
	a.db, err = postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ATTAINMENT POLICY
	// ─────────────────────────────────────────────────────────────────────────
	a.thresholds = attainment.Thresholds{
		Pass: cfg.Attainment.PassThreshold,
		High: cfg.Attainment.HighThreshold,
		Low:  cfg.Attainment.LowThreshold,
	}
	if err := a.thresholds.Validate(); err != nil {
		a.close()
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	resolver, err := newResolver(cfg.Attainment)
	if err != nil {
		a.close()
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. CLUSTERING
	// ─────────────────────────────────────────────────────────────────────────
	store, err := a.clusterStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var fetcher cluster.Fetcher
	if cfg.Clustering.Enabled() {
		fetcher = clusterapi.NewClient(clusterapi.ClientConfig{
			BaseURL:         cfg.Clustering.URL,
			Timeout:         cfg.Clustering.Timeout,
			MaxAttempts:     cfg.Clustering.MaxAttempts,
			RetryDelay:      cfg.Clustering.RetryDelay,
			BreakerFailures: cfg.Clustering.BreakerFailures,
			BreakerTimeout:  cfg.Clustering.BreakerTimeout,
			Logger:          log,
		})
	} else {
		log.Info("clustering disabled", logger.Bool("url_set", cfg.Clustering.URL != ""))
	}

	a.gateway = cluster.NewGateway(fetcher, store, cluster.Config{
		Enabled:           cfg.Clustering.Enabled(),
		TTL:               cfg.Clustering.CacheMaxAge,
		Timeout:           cfg.Clustering.Timeout,
		CoalesceRefreshes: cfg.Clustering.CoalesceRefreshes,
	}, cluster.WithLogger(log))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. QUERY HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	loader := query.NewSnapshotLoader(postgres.NewOutcomeRepository(a.db), log)
	a.summary = query.NewGetOutcomeSummaryHandler(loader, resolver, a.thresholds, log)
	a.roster = query.NewGetOutcomeRosterHandler(loader, resolver, a.gateway, a.thresholds, log)
	a.clusters = query.NewGetStudentClustersHandler(a.gateway, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	a.health = handlers.NewCompositeHealthChecker(cfg.App.Version)
	a.health.AddCheck("database", handlers.NewPingCheck(a.db))
	if a.cache != nil {
		a.health.AddCheck("redis", handlers.NewPingCheck(a.cache))
	}

	log.Info("attainment engine initialized",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("cluster_cache", cfg.Clustering.CacheBackend),
		logger.Bool("clustering", a.gateway.Enabled()),
		logger.Any("strategies", resolver.Strategies()),
	)
	return a, nil
}

// close releases connections. Safe on a partially built app.
func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Err(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.log.Sync()
}

// clusterStore builds the cluster cache selected by CLUSTER_CACHE_BACKEND.
// The tiered backend keeps a process-local copy in front of Redis when Redis
// is configured and of Postgres otherwise.
func (a *app) clusterStore(ctx context.Context) (cluster.Store, error) {
	cfg := a.cfg
	switch cfg.Clustering.CacheBackend {
	case config.CacheBackendRedis:
		if err := a.connectRedis(ctx); err != nil {
			return nil, err
		}
		return redis.NewClusterStore(a.cache, cfg.Clustering.CacheMaxAge), nil

	case config.CacheBackendPostgres:
		return a.postgresClusterStore(ctx)

	case config.CacheBackendTiered:
		var l2 cluster.Store
		if cfg.Redis.URL != "" {
			if err := a.connectRedis(ctx); err != nil {
				return nil, err
			}
			l2 = redis.NewClusterStore(a.cache, cfg.Clustering.CacheMaxAge)
		} else {
			pg, err := a.postgresClusterStore(ctx)
			if err != nil {
				return nil, err
			}
			l2 = pg
		}
		return cluster.NewTieredStore(memory.NewClusterStore(cfg.Clustering.CacheMaxAge), l2, cfg.Clustering.CacheMaxAge), nil

	default:
		return memory.NewClusterStore(cfg.Clustering.CacheMaxAge), nil
	}
}

func (a *app) postgresClusterStore(ctx context.Context) (*postgres.ClusterStore, error) {
	store := postgres.NewClusterStore(a.db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("cluster cache: %w", err)
	}
	return store, nil
}

func (a *app) connectRedis(ctx context.Context) error {
	r := a.cfg.Redis
	cache, err := redis.NewCache(ctx, redis.Config{
		URL:          r.URL,
		Host:         r.Host,
		Port:         r.Port,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		MinIdleConns: r.MinIdleConns,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.cache = cache
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	level := cfg.Observability.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if cfg.App.Debug && logLevel == "" {
		level = "debug"
	}
	format := cfg.Observability.LogFormat
	if logFormat != "" {
		format = logFormat
	}

	return logger.New(logger.Options{
		Output:    os.Stderr,
		Level:     logger.ParseLevel(level),
		AddCaller: true,
		Format:    format,
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

func postgresConfig(db config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = db.URL
	pc.MaxConns = int32(db.MaxConns)
	pc.MinConns = int32(db.MinConns)
	pc.MaxConnLifetime = db.ConnMaxLifetime
	pc.MaxConnIdleTime = db.ConnMaxIdleTime
	pc.StatementTimeout = db.QueryTimeout
	return pc
}

func newResolver(cfg config.AttainmentConfig) (*outcome.Resolver, error) {
	policy, err := outcome.ParseFallbackPolicy(cfg.SyllabusFallback)
	if err != nil {
		return nil, err
	}
	order := make([]outcome.StrategyName, 0, len(cfg.StrategyOrder))
	for _, name := range cfg.StrategyOrder {
		order = append(order, outcome.StrategyName(strings.ToLower(strings.TrimSpace(name))))
	}
	strategies, err := outcome.StrategiesFor(order, policy)
	if err != nil {
		return nil, fmt.Errorf("attainment strategies: %w", err)
	}
	return outcome.NewResolver(strategies...), nil
}
