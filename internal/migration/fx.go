package migration

import (
	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/dineline/dineline/internal/config"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	usagedomain "github.com/dineline/dineline/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		// Non-postgres targets (sqlite for local hacking, mysql) fall back
		// to gorm's schema sync.
		return conn.AutoMigrate(
			&restaurantdomain.Restaurant{},
			&restaurantdomain.MenuOverride{},
			&calldomain.CallRecord{},
			&billingdomain.BillingAccount{},
			&usagedomain.LedgerEntry{},
		)
	}),
)
