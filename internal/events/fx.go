package events

import (
	"context"

	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Invoke(registerFamilyHandlers),
)

func registerFamilyHandlers(bus *Bus, svc familydomain.Service) {
	bus.OnFamilyCreated(func(ctx context.Context, ev FamilyCreated) error {
		return svc.ApplyPlanToGroup(ctx, ev.FamilyID)
	})
	bus.OnSubscriptionUpdated(func(ctx context.Context, ev SubscriptionUpdated) error {
		return svc.HandleSubscriptionChange(ctx, ev.Before, ev.After)
	})
}
