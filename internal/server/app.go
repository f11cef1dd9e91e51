package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/cache"
	"github.com/TNEM22/synera-app-backend/internal/config"
	"github.com/TNEM22/synera-app-backend/internal/database"
	"github.com/TNEM22/synera-app-backend/internal/lock"
	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/monitoring"
	"github.com/TNEM22/synera-app-backend/internal/repositories"
	"github.com/TNEM22/synera-app-backend/internal/services"
	"github.com/TNEM22/synera-app-backend/internal/worker"

	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// App is the fully wired backend: storage, cache, locks, background
// worker and HTTP server.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *database.DatabasePool
	Redis    *redis.Client
	Cache    cache.Cache
	Locker   lock.ProjectLocker
	Registry *worker.Registry
	Worker   *worker.Worker
	Users    services.UserService
	Projects services.ProjectService
	Tasks    services.TaskService
	Server   *Server

	rateLimiter *middleware.IPRateLimiter
}

// NewApp opens the database and, when enabled, Redis, then assembles the
// application around them.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	var client *redis.Client
	if cfg.Redis.Enabled {
		client = cache.NewRedisClient(cache.CacheConfigFrom(cfg))
	}

	app, err := Assemble(cfg, logger, pool, client)
	if err != nil {
		pool.Close()
		if client != nil {
			client.Close()
		}
		return nil, err
	}
	return app, nil
}

// Assemble wires services over an open pool. client may be nil, in which
// case the cache is process-local, locks are in-memory and background jobs
// run inline.
func Assemble(cfg *config.Config, logger *slog.Logger, pool *database.DatabasePool, client *redis.Client) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    client,
		Registry: worker.NewRegistry(),
	}

	var l2 *cache.RedisCache
	if client != nil {
		l2 = cache.NewRedisCacheFromClient(client)
	}
	app.Cache = cache.NewMultiLevelCache(cache.NewMemoryCache(0), l2, logger).
		BypassL1(services.ProjectCachePrefix)

	switch cfg.Board.LockBackend {
	case config.LockBackendRedis:
		if client == nil {
			return nil, errors.New("redis lock backend requires a redis client")
		}
		app.Locker = lock.NewRedisLocker(client, cfg.Board.LockTTL, logger)
	default:
		app.Locker = lock.NewMemoryLocker()
	}

	var jobs worker.Enqueuer
	switch {
	case !cfg.Board.OrphanSweeps:
	case client != nil && cfg.Worker.Enabled:
		jobs = worker.NewJobQueue(client, worker.DefaultQueue)
		app.Worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  client,
			Registry:     app.Registry,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Logger:       logger,
		})
	default:
		jobs = worker.NewInlineQueue(app.Registry, logger)
	}

	store := repositories.NewStore(pool.DB)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	revoker := auth.NewRevoker(app.Cache)
	authenticator := auth.NewAuthenticator(tokens, revoker, store.Users)

	tasks := services.NewTaskService(store, app.Locker, logger)
	services.RegisterJobs(app.Registry, tasks)
	projects := services.NewCachedProjectService(
		services.NewProjectService(store, app.Locker, jobs, logger),
		app.Cache, cfg.Board.ProjectTTL, logger,
	)
	app.Users = services.NewUserService(store, cfg.Auth.BCryptCost, logger)
	app.Projects = projects
	app.Tasks = tasks

	health := monitoring.NewHealthChecker(0)
	health.Register("database", func(ctx context.Context) error { return pool.Health() })
	if client != nil {
		health.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	if cfg.RateLimit.Enabled {
		app.rateLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
	}

	app.Server = New(Dependencies{
		Config:        cfg,
		Logger:        logger,
		Users:         app.Users,
		Projects:      projects,
		Tasks:         tasks,
		Authenticator: authenticator,
		Revoker:       revoker,
		Metrics:       monitoring.NewMetrics(),
		Health:        health,
		Stats: map[string]monitoring.StatsFunc{
			"database": pool.Stats,
			"cache":    app.Cache.Stats,
			"locks":    lockStats(app.Locker),
		},
		RateLimiter: app.rateLimiter,
	})
	return app, nil
}

func lockStats(locker lock.ProjectLocker) monitoring.StatsFunc {
	return func() map[string]interface{} {
		stats := map[string]interface{}{"backend": fmt.Sprintf("%T", locker)}
		if m, ok := locker.(*lock.MemoryLocker); ok {
			stats["held"] = m.Held()
		}
		return stats
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         a.Config.GetServerAddr(),
		Handler:      a.Server.Engine(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	if a.Worker != nil {
		a.Worker.Start(ctx, a.Config.Worker.Concurrency)
		defer a.Worker.Stop()
	}

	if a.rateLimiter != nil && a.Config.RateLimit.CleanupInterval > 0 {
		go a.cleanupRateLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("starting server", "addr", httpServer.Addr, "environment", a.Config.Server.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	a.Logger.Info("server stopped")
	return nil
}

func (a *App) cleanupRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(a.Config.RateLimit.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.rateLimiter.Cleanup(a.Config.RateLimit.CleanupInterval)
		}
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.Pool != nil {
		errs = append(errs, a.Pool.Close())
	}
	return errors.Join(errs...)
}
