package migration

import (
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("database migrations disabled")
			return nil
		}
		if err := Run(conn); err != nil {
			return err
		}
		log.Info("database migrations applied", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}),
)
