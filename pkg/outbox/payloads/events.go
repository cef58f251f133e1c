package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// NotificationRequestedEvent asks the notifier to send one customer message.
type NotificationRequestedEvent struct {
	Type           enums.NotificationType `json:"type"`
	Recipient      string                 `json:"recipient"`
	OrderID        *uuid.UUID             `json:"order_id,omitempty"`
	SubscriptionID *uuid.UUID             `json:"subscription_id,omitempty"`
	Subject        string                 `json:"subject"`
	Data           map[string]any         `json:"data,omitempty"`
}

// OrderCreatedEvent announces a new order to the preparation team.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	SubscriptionID *uuid.UUID        `json:"subscription_id,omitempty"`
	Status         enums.OrderStatus `json:"status"`
	TotalCents     int64             `json:"total_cents"`
	DeliveryDate   string            `json:"delivery_date"`
	Renewal        bool              `json:"renewal"`
}

// OrderStatusChangedEvent is emitted on every operator-driven transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	From       enums.OrderStatus   `json:"from"`
	To         enums.OrderStatus   `json:"to"`
	DriverID   *string             `json:"driver_id,omitempty"`
	Driver     *enums.DriverStatus `json:"driver_status,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// SubscriptionChangedEvent mirrors a subscription state change.
type SubscriptionChangedEvent struct {
	SubscriptionID    uuid.UUID `json:"subscription_id"`
	CompanyID         uuid.UUID `json:"company_id"`
	IsActive          bool      `json:"is_active"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	NextDeliveryDate  string    `json:"next_delivery_date"`
	ExternalStatus    string    `json:"external_status,omitempty"`
}
