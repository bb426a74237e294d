package notification

import (
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		NewService,
		func(s *Service) familydomain.Notifier { return s },
	),
)
