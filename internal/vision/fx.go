package vision

import (
	"context"

	"github.com/kaimoapp/kaimo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("vision",
	fx.Provide(func(cfg config.Config, log *zap.Logger) (Annotator, error) {
		return NewGoogleAnnotator(context.Background(), cfg.VisionAPIKey, cfg.VisionEndpoint, log)
	}),
)
