package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		var poolCfg *store.PoolConfig
		if cfg.Store.Pool.MaxConns > 0 || cfg.Store.Pool.MinConns > 0 {
			poolCfg = &store.PoolConfig{
				MaxConns: cfg.Store.Pool.MaxConns,
				MinConns: cfg.Store.Pool.MinConns,
			}
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolCfg)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCatalog loads the guidance catalog, falling back to the built-in one
// when no override path is configured.
func initCatalog() (*advice.Catalog, error) {
	if cfg.Advice.Path == "" {
		return advice.Default(), nil
	}
	catalog, err := advice.Load(cfg.Advice.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load advice catalog")
	}
	return catalog, nil
}
