package migrate

import (
	"context"
	"fmt"

	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/db"
	"github.com/promptability/Website-sub002/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// PROMPTABILITY_AUTO_MIGRATE is set. The embedded set keeps this
// independent of the working directory.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "migrate.autorun_start")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.autorun_complete")
	return nil
}
