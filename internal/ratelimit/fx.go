package ratelimit

import (
	"github.com/kaimoapp/kaimo/internal/clock"
	"github.com/kaimoapp/kaimo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("rate.limit",
	fx.Provide(func(db *gorm.DB, log *zap.Logger, clk clock.Clock, cfg config.Config) *Limiter {
		return NewLimiter(db, log, clk, Config{
			PerMinute: cfg.RateLimitPerMinute,
			PerDay:    cfg.RateLimitPerDay,
		})
	}),
)
