// Package repository opens the snapshot store selected by configuration.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagebattle/sage-server-go/internal/config"
	"github.com/sagebattle/sage-server-go/internal/game"
	"github.com/sagebattle/sage-server-go/internal/repository/memory"
	"github.com/sagebattle/sage-server-go/internal/repository/postgres"
	"github.com/sagebattle/sage-server-go/internal/repository/sqlite"
	"go.uber.org/zap"
)

// Store is a game.Store that holds resources until closed.
type Store interface {
	game.Store
	Close() error
}

// Open returns the store for cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("using in-memory snapshot store")
		return memory.New(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite snapshot store", zap.String("path", cfg.SQLite.Path))
		return store, nil
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Postgres.URL, postgres.Options{
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
