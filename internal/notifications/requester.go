// Package notifications decides which customer messages a state change calls
// for and queues them on the outbox inside the caller's transaction.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/calendar"
	"github.com/corbeille/corbeille-backend/pkg/db/models"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	"github.com/corbeille/corbeille-backend/pkg/outbox"
	"github.com/corbeille/corbeille-backend/pkg/outbox/payloads"
)

// Requester queues notification_requested events.
type Requester struct {
	outbox outbox.Emitter
}

func NewRequester(emitter outbox.Emitter) (*Requester, error) {
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Requester{outbox: emitter}, nil
}

// OrderConfirmed follows a paid one-time checkout.
func (r *Requester) OrderConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return r.forOrder(ctx, tx, order, enums.NotificationOrderConfirmed,
		"Votre commande Corbeille est confirmée",
		map[string]any{
			"total_cents":   order.TotalCents,
			"delivery_date": calendar.FormatISODate(order.DeliveryDate),
			"delivery_long": calendar.FormatFrenchLong(order.DeliveryDate),
		})
}

// RenewalOrderCreated follows a paid renewal invoice.
func (r *Requester) RenewalOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.Subscription) error {
	return r.forOrder(ctx, tx, order, enums.NotificationRenewalOrderCreated,
		"Votre prochaine corbeille est en préparation",
		map[string]any{
			"total_cents":        order.TotalCents,
			"delivery_date":      calendar.FormatISODate(order.DeliveryDate),
			"delivery_long":      calendar.FormatFrenchLong(order.DeliveryDate),
			"frequency":          sub.Frequency,
			"next_delivery_date": calendar.FormatISODate(sub.NextDeliveryDate),
		})
}

// OrderStatusChanged follows an operator transition.
func (r *Requester) OrderStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus) error {
	return r.forOrder(ctx, tx, order, enums.NotificationOrderStatusChanged,
		fmt.Sprintf("Commande %s : %s", shortID(order.ID), statusLabel(order.Status)),
		map[string]any{
			"from": from,
			"to":   order.Status,
		})
}

// PaymentFailed warns the customer; the provider owns the retry schedule.
func (r *Requester) PaymentFailed(ctx context.Context, tx *gorm.DB, sub *models.Subscription, invoiceID string, amountDueCents int64) error {
	return r.forSubscription(ctx, tx, sub, enums.NotificationPaymentFailed,
		"Le paiement de votre abonnement a échoué",
		map[string]any{
			"invoice_id":       invoiceID,
			"amount_due_cents": amountDueCents,
		})
}

// SubscriptionCancelled confirms a cancellation, with the last paid day when known.
func (r *Requester) SubscriptionCancelled(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	data := map[string]any{
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"is_active":            sub.IsActive,
	}
	if sub.CurrentPeriodEnd != nil {
		data["ends_at"] = calendar.FormatISODate(*sub.CurrentPeriodEnd)
	}
	return r.forSubscription(ctx, tx, sub, enums.NotificationSubscriptionCancelled,
		"Votre abonnement Corbeille est résilié", data)
}

func (r *Requester) forOrder(ctx context.Context, tx *gorm.DB, order *models.Order, kind enums.NotificationType, subject string, data map[string]any) error {
	if order == nil {
		return errors.New("order required")
	}
	orderID := order.ID
	return r.emit(ctx, tx, enums.AggregateOrder, order.ID, payloads.NotificationRequestedEvent{
		Type:           kind,
		Recipient:      order.CustomerEmail,
		OrderID:        &orderID,
		SubscriptionID: order.SubscriptionID,
		Subject:        subject,
		Data:           data,
	})
}

func (r *Requester) forSubscription(ctx context.Context, tx *gorm.DB, sub *models.Subscription, kind enums.NotificationType, subject string, data map[string]any) error {
	if sub == nil {
		return errors.New("subscription required")
	}
	subID := sub.ID
	return r.emit(ctx, tx, enums.AggregateSubscription, sub.ID, payloads.NotificationRequestedEvent{
		Type:           kind,
		Recipient:      sub.CustomerEmail,
		SubscriptionID: &subID,
		Subject:        subject,
		Data:           data,
	})
}

func (r *Requester) emit(ctx context.Context, tx *gorm.DB, aggregate enums.OutboxAggregateType, id uuid.UUID, payload payloads.NotificationRequestedEvent) error {
	if payload.Recipient == "" {
		return fmt.Errorf("%s notification has no recipient", payload.Type)
	}
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: aggregate,
		AggregateID:   id,
		Actor:         outbox.ActorSystem,
		Data:          payload,
	})
}

var statusLabels = map[enums.OrderStatus]string{
	enums.OrderStatusPending:   "en attente",
	enums.OrderStatusConfirmed: "confirmée",
	enums.OrderStatusPreparing: "en préparation",
	enums.OrderStatusDelivered: "livrée",
	enums.OrderStatusCancelled: "annulée",
}

func statusLabel(status enums.OrderStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
