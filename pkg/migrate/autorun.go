package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

// MaybeRunDev applies the schema automatically in dev mode when the feature
// flag is enabled, and always for sqlite, which has no goose history.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "applying gorm auto-migrate (sqlite)")
		return AutoMigrate(client.DB())
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	fsys, err := Source("")
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying embedded migrations (dev auto-run)")

	applied, err := Run(ctx, sqlDB, client.Dialect(), fsys, "up")
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "migrations up to date")
	return nil
}
