package recipe

import (
	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("recipe",
	fx.Provide(func(limiter *ratelimit.Limiter, completer chat.Completer, log *zap.Logger) *Service {
		return NewService(limiter, completer, log)
	}),
)
