package main

import (
	"fmt"
	"time"

	"github.com/metabridge/catalogd/internal/config"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/entitystore/bbolt"
	"github.com/metabridge/catalogd/internal/entitystore/memory"
	"github.com/metabridge/catalogd/internal/entitystore/postgres"
)

// buildEntityStore selects and opens the configured entitystore.Store
// backend. Which backend is running is purely a config choice; the
// dispatcher core never knows which of these it was handed.
func buildEntityStore(cfg *config.Config) (entitystore.Store, error) {
	switch cfg.EntityStore.Type {
	case "", "memory":
		return memory.New(), nil

	case "bbolt":
		path := cfg.EntityStore.BBolt.Path
		if path == "" {
			path = "catalogd.db"
		}
		return bbolt.Open(path)

	case "postgresql":
		pg := cfg.EntityStore.Postgres
		pgCfg := postgres.DefaultConfig()
		if pg.Host != "" {
			pgCfg.Host = pg.Host
		}
		if pg.Port != 0 {
			pgCfg.Port = pg.Port
		}
		if pg.Database != "" {
			pgCfg.Database = pg.Database
		}
		if pg.Username != "" {
			pgCfg.Username = pg.Username
		}
		pgCfg.Password = pg.Password
		if pg.SSLMode != "" {
			pgCfg.SSLMode = pg.SSLMode
		}
		if pg.MaxOpenConns != 0 {
			pgCfg.MaxOpenConns = pg.MaxOpenConns
		}
		if pg.MaxIdleConns != 0 {
			pgCfg.MaxIdleConns = pg.MaxIdleConns
		}
		if pg.ConnMaxLifetime != 0 {
			pgCfg.ConnMaxLifetime = time.Duration(pg.ConnMaxLifetime) * time.Second
		}
		return postgres.Open(pgCfg)

	default:
		return nil, fmt.Errorf("unsupported entity store type: %s", cfg.EntityStore.Type)
	}
}
