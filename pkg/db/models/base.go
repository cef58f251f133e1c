package models

import (
	"github.com/google/uuid"
)

// ensureID assigns a random UUID when the caller did not pick one.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Company{},
		&Fruit{},
		&BasketSize{},
		&Subscription{},
		&SubscriptionItem{},
		&Order{},
		&OrderLineItem{},
		&PromoCode{},
		&PromoRedemption{},
		&ProcessedWebhookEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
