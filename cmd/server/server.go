package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/embedder"
	"codeberg.org/modelrelay/relay/internal/events"
	"codeberg.org/modelrelay/relay/internal/guard"
	"codeberg.org/modelrelay/relay/internal/logger"
	"codeberg.org/modelrelay/relay/internal/orchestrator"
	"codeberg.org/modelrelay/relay/internal/secrets"
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	registry, err := core.NewRegistry(cfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend registry: %w", err)
	}

	provider := config.NewProvider(registry, cfg.Limits)

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = newDatabasePool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}

	tiered, err := buildCache(ctx, cfg, db)
	if err != nil {
		if db != nil {
			db.Close()
		}

		return nil, err
	}

	hub := events.NewHub()
	sink := events.MultiSink{events.LogSink{}, hub}

	// the guard reads limits through the provider so swapped values apply
	// without restart
	g := guard.New(func() config.Limits { return provider.Snapshot().Limits }, sink)

	clients := InitializeClients(cfg, registry, secrets.EnvProvider{})
	if len(clients) == 0 {
		logger.Warn("no backend clients wired; every dispatch will fail until credentials are provided")
	}

	orch := orchestrator.New(provider, tiered, g, clients, sink)

	router := gin.Default()

	server := &Server{
		db:       db,
		config:   cfg,
		provider: provider,
		cache:    tiered,
		guard:    g,
		hub:      hub,
		orch:     orch,
		router:   router,
	}

	RegisterRoutes(router, server)

	return server, nil
}

// builds the connection pool the postgres cache tier and semantic index
// share
func newDatabasePool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// cache reads are short and bursty, keep the pool small
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	// use simple protocol for pooler (PgBouncer) compatibility; transaction
	// mode poolers don't support prepared statements
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// assembles the cache tiers configuration enables: memory always, redis and
// postgres behind their URLs, the semantic index when both an embedding key
// and a database are present
func buildCache(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*cache.Tiered, error) {
	tiers := []cache.Store{cache.NewMemoryStore()}

	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache tier: %w", err)
		}

		tiers = append(tiers, redisStore)
	}

	var semantic *cache.SemanticIndex

	if db != nil {
		pgStore := cache.NewPostgresStore(db)
		if err := pgStore.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize postgres cache tier: %w", err)
		}

		tiers = append(tiers, pgStore)

		if cfg.OpenAIKey != "" {
			emb := embedder.NewOpenAI(embedder.Config{APIKey: cfg.OpenAIKey})

			semantic = cache.NewSemanticIndex(db, emb, 0)
			if err := semantic.Initialize(ctx); err != nil {
				return nil, fmt.Errorf("failed to initialize semantic index: %w", err)
			}

			logger.Info("semantic cache tier enabled")
		}
	}

	return cache.NewTiered(tiers, cache.Options{
		GetTimeout: cfg.Limits.CacheGetTimeout,
		SetTimeout: cfg.Limits.CacheSetTimeout,
		Semantic:   semantic,
	}), nil
}
