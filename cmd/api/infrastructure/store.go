package infrastructure

import (
	"context"
	"fmt"

	"user-records-service/internal/adapter/db/jsonfile"
	"user-records-service/internal/config"

	"go.uber.org/zap"
)

// NewStore opens the JSON file store and loads it eagerly so a corrupt data
// file fails startup instead of the first request.
func NewStore(ctx context.Context, cfg *config.Config, l *zap.Logger) (*jsonfile.UserRepoJSON, error) {
	store := jsonfile.NewUserRepoJSON(jsonfile.Options{
		Path:        cfg.Store.DataFile,
		AtomicWrite: cfg.Store.AtomicWrite,
	}, l)

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.Store.DataFile, err)
	}

	l.Info("user store ready",
		zap.String("path", store.Path()),
		zap.Bool("atomic_write", cfg.Store.AtomicWrite),
	)
	return store, nil
}
