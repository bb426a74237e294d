// Package events is an in-process change bus. Writers publish document
// changes after committing them; subscribers react in the same process.
// Handler failures are logged and never surfaced to the writer.
package events

import (
	"context"
	"sync"

	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"go.uber.org/zap"
)

// FamilyCreated fires after a new family row is committed.
type FamilyCreated struct {
	FamilyID string
}

// SubscriptionUpdated fires after a subscription row is rewritten, carrying
// both sides of the change so subscribers can detect edges.
type SubscriptionUpdated struct {
	Before familydomain.Subscription
	After  familydomain.Subscription
}

type (
	FamilyCreatedHandler       func(ctx context.Context, ev FamilyCreated) error
	SubscriptionUpdatedHandler func(ctx context.Context, ev SubscriptionUpdated) error
)

type Bus struct {
	log *zap.Logger

	mu                  sync.RWMutex
	familyCreated       []FamilyCreatedHandler
	subscriptionUpdated []SubscriptionUpdatedHandler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{log: log.Named("events")}
}

func (b *Bus) OnFamilyCreated(h FamilyCreatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.familyCreated = append(b.familyCreated, h)
}

func (b *Bus) OnSubscriptionUpdated(h SubscriptionUpdatedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptionUpdated = append(b.subscriptionUpdated, h)
}

func (b *Bus) PublishFamilyCreated(ctx context.Context, ev FamilyCreated) {
	b.mu.RLock()
	handlers := b.familyCreated
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.log.Error("family created handler failed",
				zap.String("family_id", ev.FamilyID),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) PublishSubscriptionUpdated(ctx context.Context, ev SubscriptionUpdated) {
	b.mu.RLock()
	handlers := b.subscriptionUpdated
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			b.log.Error("subscription updated handler failed",
				zap.String("user_id", ev.After.UserID),
				zap.Error(err),
			)
		}
	}
}
