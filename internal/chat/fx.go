package chat

import (
	"github.com/kaimoapp/kaimo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("chat",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Completer {
		return NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
	}),
)
