// Package app assembles the stores and services shared by the service
// binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topcity/ticket-service/internal/config"
	"github.com/topcity/ticket-service/internal/persistence"
	"github.com/topcity/ticket-service/internal/repository"
	"github.com/topcity/ticket-service/internal/repository/memory"
)

// Stores owns the backing connections and the repositories built on them.
type Stores struct {
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Repos    repository.Set
}

// OpenStores connects Postgres when a DSN is configured, falling back to
// the in-process store otherwise, and puts the Redis event cache in front
// of event reads. The in-process store starts with the events listed in
// cfg.Memory.EventsFile.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	stores := &Stores{Postgres: pg}
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		stores.Repos = repository.NewPostgresSet(pg.PoolHandle())
	} else {
		store := memory.NewStore()
		if path := cfg.Memory.EventsFile; path != "" {
			n, err := loadEventsFile(path, store)
			if err != nil {
				return nil, err
			}
			logger.Info("events loaded into memory store", zap.String("file", path), zap.Int("events", n))
		} else {
			logger.Warn("in-memory store has no events and rejects every payment; set MEMORY_EVENTS_FILE or POSTGRES_DSN outside tests")
		}
		stores.Repos = store.Set()
	}

	stores.Redis = persistence.NewRedis(cfg.Redis, logger)
	if ttl := cfg.Redis.EventCacheTTL(); ttl > 0 && stores.Redis.Enabled() {
		stores.Repos.Events = repository.NewCachedEventRepository(stores.Repos.Events, stores.Redis.Client, ttl, logger)
	}
	return stores, nil
}

// Close releases every connection.
func (s *Stores) Close() {
	s.Redis.Close()
	s.Postgres.Close()
}
