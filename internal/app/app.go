package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/archive"
	"github.com/playroomlabs/partyhost/internal/checkpoint"
	"github.com/playroomlabs/partyhost/internal/config"
	"github.com/playroomlabs/partyhost/internal/logging"
	"github.com/playroomlabs/partyhost/internal/metrics"
	"github.com/playroomlabs/partyhost/internal/server"
	"github.com/playroomlabs/partyhost/internal/session"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

// Application aggregates the engine, its stores and the HTTP server.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	http     *http.Server
	sessions *session.Manager
	hub      *ws.Hub
	recorder *archive.Recorder
	unbridge func()
}

// New bootstraps config, logger, optional Postgres and Redis, the engine
// and the HTTP server. Both databases are optional: without Redis,
// checkpoints live in memory; without Postgres, matches are not archived.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	var pool *pgxpool.Pool
	if cfg.Postgres.Enabled() {
		var err error
		pool, err = pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info().Str("host", cfg.Postgres.Host).Msg("match archive enabled")
	} else {
		logger.Warn().Msg("no PG_HOST configured; finished matches will not be archived")
	}

	var redisClient *redis.Client
	var checkpoints checkpoint.Store = checkpoint.NewMemoryStore()
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		checkpoints = checkpoint.NewRedisStore(redisClient, cfg.Redis.CheckpointTTL)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis checkpoint store enabled")
	} else {
		logger.Warn().Msg("no REDIS_ADDR configured; checkpoints will not survive restarts")
	}

	hub := ws.NewHub(logger)
	speaker := ws.NewNarratorSpeaker(hub, logger)

	sessions := session.NewManager(session.Options{
		Speaker:     speaker,
		Checkpoints: checkpoints,
		Seed:        cfg.Engine.RandomSeed,
		Logger:      logger,
	})

	unbridge := session.BridgeEvents(sessions.Bus(), hub, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)
	m.Observe(sessions.Bus())

	var recorder *archive.Recorder
	var reader server.ArchiveReader
	if pool != nil {
		repo := archive.NewRepository(pool, logger)
		recorder = archive.NewRecorder(sessions.Bus(), repo, logger)
		reader = repo
	}

	apiServer := server.NewHTTPServer(cfg, logger, server.Deps{
		Sessions: sessions,
		Hub:      hub,
		Speaker:  speaker,
		Gatherer: registry,
		Archive:  reader,
	})

	return &Application{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		redis:    redisClient,
		http:     apiServer,
		sessions: sessions,
		hub:      hub,
		recorder: recorder,
		unbridge: unbridge,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.sessions.Close()
	a.unbridge()
	a.hub.CloseAll()

	if a.recorder != nil {
		a.recorder.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
