package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kon-rad/wuhistory/internal/config"
	"github.com/kon-rad/wuhistory/internal/db"
	"github.com/kon-rad/wuhistory/internal/protein"
)

// OpenRepository initializes the history store named by cfg. When upgrade
// is true and the store needs it, the upgrade runs before returning and its
// progress is logged. A failed upgrade is logged and the store is returned
// open in its old shape.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, upgrade bool) (*db.Repository, error) {
	svc, err := proteinService(cfg)
	if err != nil {
		return nil, err
	}
	repo := db.New(protein.ProductionCalculator{}, svc, logger)
	if err := repo.Initialize(ctx, cfg.DBPath); err != nil {
		return nil, err
	}

	required, err := repo.RequiresUpgrade(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}
	if !required {
		return repo, nil
	}
	if !upgrade {
		logger.Warn("history store requires upgrade", "path", cfg.DBPath)
		return repo, nil
	}
	if err := repo.Upgrade(ctx, LogProgress(logger)); err != nil {
		logger.Error("history upgrade failed; continuing with the old shape", "path", cfg.DBPath, "error", err)
	}
	return repo, nil
}

// LogProgress returns an upgrade observer that logs each step.
func LogProgress(logger *slog.Logger) func(db.Progress) {
	return func(p db.Progress) {
		logger.Info("upgrade progress", "percent", p.Percent, "message", p.Message)
	}
}

func proteinService(cfg *config.Config) (protein.Service, error) {
	if cfg.ProteinsPath == "" {
		return protein.NewCatalog(), nil
	}
	return protein.LoadCatalog(cfg.ProteinsPath)
}
