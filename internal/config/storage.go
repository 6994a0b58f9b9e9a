package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"wardsync/internal/cache"
	"wardsync/internal/census"
	"wardsync/internal/remote"
	"wardsync/internal/repository"
)

// OpenRepository builds the storage tiers the config describes and wires
// them into a Repository. The caller owns the result and must Close it;
// closing the repository closes both tiers.
//
// Live mode opens the SQLite cache behind a memory failover and dials the
// configured remote backend. Demo mode ignores the backend setting: both
// tiers live in memory and today's date is seeded with sample data.
func (c *Config) OpenRepository(logger *log.Logger) (*repository.Repository, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[wardsync] ", log.LstdFlags)
	}

	layout, err := c.WardLayout()
	if err != nil {
		return nil, err
	}

	local, err := c.openLocal(logger)
	if err != nil {
		return nil, err
	}

	rem, err := c.openRemote(logger)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	repo := repository.New(repository.Config{
		Local:  local,
		Remote: rem,
		Layout: layout,
		Logger: logger,
	})

	if c.Storage.Mode == ModeDemo {
		if err := seedDemo(repo, layout); err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

// OpenLocal opens only the local cache tier, for commands that operate on
// the cache directly (export, import).
func (c *Config) OpenLocal(logger *log.Logger) (cache.Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[wardsync] ", log.LstdFlags)
	}
	return c.openLocal(logger)
}

func (c *Config) openLocal(logger *log.Logger) (cache.Store, error) {
	if c.Storage.Mode == ModeDemo {
		return cache.NewMemory(), nil
	}
	sq, err := cache.OpenSQLite(c.Storage.CachePath, logger)
	if err != nil {
		return nil, err
	}
	// Runtime cache faults degrade to memory instead of failing writes.
	return cache.NewFailover(sq, logger), nil
}

func (c *Config) openRemote(logger *log.Logger) (remote.Store, error) {
	backend := c.Storage.Backend
	if c.Storage.Mode == ModeDemo {
		backend = BackendMemory
	}
	if backend == BackendNone {
		return nil, nil
	}
	return remote.New(backend, remote.Options{
		DSN:    c.Storage.DSN,
		Origin: c.Storage.Origin,
		Logger: logger,
	})
}

// seedDemo populates today's record so demo sessions open onto a ward with
// patients in it.
func seedDemo(repo *repository.Repository, layout *census.Layout) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := census.DemoRecord(census.FormatDate(time.Now()), layout)
	if _, err := repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	return nil
}
