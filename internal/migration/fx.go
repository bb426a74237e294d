package migration

import (
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"github.com/kaimoapp/kaimo/internal/notification"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/kaimoapp/kaimo/internal/scheduler"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres (local sqlite) falls back to model-driven schema.
		return conn.AutoMigrate(
			&familydomain.User{},
			&familydomain.Subscription{},
			&familydomain.Family{},
			&notification.Notification{},
			&ratelimit.Record{},
			&scheduler.JobRun{},
		)
	}),
)
