// Command funnelengine wires the funnel analytics engine's components
// together, generalized from cmd/server/main.go's connect-migrate-wire
// shape: viper config instead of inline getEnv, golang-migrate instead of
// inline CREATE TABLE, and the domain components this binary hosts in
// place of the user-management services it originally wired.
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victoralfred/funnelengine/internal/analytics"
	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/config"
	"github.com/victoralfred/funnelengine/internal/export"
	"github.com/victoralfred/funnelengine/internal/orchestrator"
	"github.com/victoralfred/funnelengine/internal/realtime"
	"github.com/victoralfred/funnelengine/internal/storage/migrations"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(".", "./config")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("starting funnel engine", zap.String("environment", cfg.Environment))

	ctx := context.Background()

	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	logger.Info("running migrations")
	if err := migrations.Run(cfg.Database.URL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	logger.Info("connected to redis")

	cacheLyr := cache.New(rdb, logger)

	funnelStore := postgres.NewFunnelStore(dbPool)
	stateStore := postgres.NewStateStore(dbPool)
	exportStore := postgres.NewExportStore(dbPool)
	repo := postgres.NewRepository(dbPool)

	engine := analytics.NewEngine(repo, funnelStore, cacheLyr, logger)
	tracker := realtime.New(funnelStore, stateStore, cacheLyr, logger, cfg.Realtime.ActiveFunnelsCacheTTL)
	exportMgr := export.NewManager(exportStore, engine, repo, logger, cfg.Export.Directory)

	orch := orchestrator.New(funnelStore, engine, tracker, exportMgr, stateStore, logger)

	logger.Info("funnel engine ready",
		zap.Bool("orchestrator_wired", orch != nil),
		zap.String("export_dir", cfg.Export.Directory),
		zap.Duration("active_funnels_cache_ttl", cfg.Realtime.ActiveFunnelsCacheTTL),
	)

	<-blockForever()
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// blockForever keeps the process alive once components are wired; a real
// deployment would instead run an HTTP/gRPC/stream-consumer loop here.
func blockForever() <-chan time.Time {
	return time.After(1<<63 - 1)
}
