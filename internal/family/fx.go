package family

import (
	"github.com/kaimoapp/kaimo/internal/family/repository"
	"github.com/kaimoapp/kaimo/internal/family/service"
	"go.uber.org/fx"
)

var Module = fx.Module("family.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
