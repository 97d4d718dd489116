package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/clipvault/internal/config"
	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/memstore"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/pgstore"
	"github.com/raphaelgruber/clipvault/internal/service"
)

// store is a video store the server owns for its lifetime.
type store interface {
	service.VideoStore
	Close(ctx context.Context) error
}

// wiper is implemented by stores that can drop all data.
type wiper interface {
	WipeData(ctx context.Context) error
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg config.Config, m *metrics.Collector, logger *slog.Logger) (store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := pgstore.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.SetMetrics(m)
		return s, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, videos are lost on restart")
		return memstore.New(), nil

	default:
		c, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := c.InitSchema(ctx); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		c.SetMetrics(m)
		return c, nil
	}
}
