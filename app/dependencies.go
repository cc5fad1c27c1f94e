package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tutoring-platform/backend/config"
	"github.com/upb/tutoring-platform/backend/middleware"
	"github.com/upb/tutoring-platform/backend/repositories"
	"github.com/upb/tutoring-platform/backend/repositories/postgres"
	"github.com/upb/tutoring-platform/backend/services/securitylog"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger
	Redis  *redis.Client

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	SecurityLogs repositories.SecurityLogRepository

	// Services
	SecurityLogService *securitylog.Service
	Recorder           *securitylog.Recorder

	// Nil when rate limiting is disabled
	RateLimitStore middleware.RateLimitStore
}

// NewDependencies connects to the database and wires up every component
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.wire(ctx, deps.RepoFactory.NewRepositories()); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithRepositories wires services on top of the given repositories
// without opening a database connection.
func NewDependenciesWithRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger, repos *repositories.Repositories) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if err := deps.wire(ctx, repos); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) wire(ctx context.Context, repos *repositories.Repositories) error {
	d.SecurityLogs = repos.SecurityLogs

	if err := d.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	d.initRateLimit(ctx)
	return nil
}

// initDatabase opens the PostgreSQL pool and applies migrations when enabled
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	d.Logger.Info("repository factory ready", zap.Bool("auto_migrate", cfg.Database.AutoMigrate))

	return nil
}

// initServices builds the ingestion service and starts the background recorder
func (d *Dependencies) initServices() error {
	d.SecurityLogService = securitylog.NewService(d.SecurityLogs, d.Config.SecurityLog.Secret, d.Logger)

	d.Recorder = securitylog.NewRecorder(d.SecurityLogService, d.Logger, securitylog.RecorderConfig{
		BufferSize:  d.Config.SecurityLog.RecorderBuffer,
		WorkerCount: d.Config.SecurityLog.RecorderWorkers,
	})
	return d.Recorder.Start()
}

// initRateLimit picks the shared Redis store when REDIS_URL is set and reachable,
// otherwise a per-process token bucket.
func (d *Dependencies) initRateLimit(ctx context.Context) {
	rl := d.Config.RateLimit
	if !rl.Enabled {
		d.Logger.Info("ingestion rate limiting disabled")
		return
	}

	if d.Config.Redis.URL != "" {
		client, err := middleware.NewRedisClient(d.Config.Redis.URL)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = client.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				d.Redis = client
				d.RateLimitStore = middleware.NewRedisRateLimitStore(client, rl.WindowLimit(), time.Minute)
				d.Logger.Info("using redis rate limit store",
					zap.Int("requests_per_minute", rl.RequestsPerMinute),
					zap.Int("burst", rl.Burst),
					zap.Int("window_limit", rl.WindowLimit()))
				return
			}
			_ = client.Close()
		}
		d.Logger.Warn("redis unavailable, falling back to in-memory rate limiting", zap.Error(err))
	}

	d.RateLimitStore = middleware.NewMemoryRateLimitStore(rl.RequestsPerMinute, rl.Burst)
	d.Logger.Info("using in-memory rate limit store",
		zap.Int("requests_per_minute", rl.RequestsPerMinute),
		zap.Int("burst", rl.Burst))
}

// SQLDB returns the underlying pool, or nil when no database is connected
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Close gracefully shuts down all dependencies. Queued recorder entries are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Recorder != nil && d.Recorder.Stats().Started {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		if err := d.Recorder.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop recorder: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
		d.DB = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
