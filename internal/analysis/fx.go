package analysis

import (
	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/clock"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/kaimoapp/kaimo/internal/vision"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("analysis",
	fx.Provide(func(limiter *ratelimit.Limiter, annotator vision.Annotator, completer chat.Completer, clk clock.Clock, log *zap.Logger) *Service {
		return NewService(limiter, annotator, completer, clk, log)
	}),
)
