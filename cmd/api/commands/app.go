package commands

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/planty/core/internal/adapters/cache"
	"github.com/planty/core/internal/adapters/repository/memory"
	"github.com/planty/core/internal/adapters/repository/postgres"
	"github.com/planty/core/internal/adapters/storage"
	"github.com/planty/core/internal/application/services"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/database"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/infrastructure/metrics"
	"github.com/planty/core/internal/infrastructure/server"
	"github.com/planty/core/internal/ports"
)

// app is the wired application
type app struct {
	services server.Services
	metrics  *metrics.Metrics
	checks   map[string]server.HealthCheck
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore returns the transactor selected by database.driver
func openStore(ctx context.Context, cfg *config.Config, a *app) (ports.Transactor, error) {
	if cfg.Database.Driver == "memory" {
		return memory.NewStore(), nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.checks["database"] = db.HealthCheck
	return postgres.NewStore(db), nil
}

func newApp(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*app, error) {
	a := &app{
		metrics: metrics.New(),
		checks:  make(map[string]server.HealthCheck),
	}

	tx, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var sectionCache ports.SectionCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		sectionCache = cache.NewSectionCache(client, cfg.Redis.TTL, appLogger)
	}

	clock := entities.SystemClock{}
	ids := entities.RandomIDs{}

	attachments, err := storage.NewAttachmentStore(cfg.Storage, clock)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to configure attachment storage: %w", err)
	}
	if err := attachments.EnsureBucket(ctx); err != nil {
		appLogger.Warn("Attachment bucket is not reachable", "error", err, "bucket", cfg.Storage.Bucket)
	}
	a.checks["storage"] = attachments.HealthCheck

	users := services.NewUserService(tx, clock, ids, appLogger)
	a.services = server.Services{
		Users: users,
		Auth:  services.NewAuthService(users, tx, cfg.JWT, clock, appLogger),
		Sections: services.NewSectionService(services.SectionServiceDeps{
			Tx:       tx,
			Cache:    sectionCache,
			Recorder: a.metrics,
			Storage:  attachments,
			Clock:    clock,
			IDs:      ids,
			Rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		}, cfg.Tasks, appLogger),
		Tasks: services.NewTaskService(tx, attachments, a.metrics, clock, ids, appLogger),
	}
	return a, nil
}
