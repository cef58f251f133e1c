package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// Subscription is a company's recurring basket. At most one is active per company.
type Subscription struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID            uuid.UUID                 `gorm:"column:company_id;type:uuid;not null;index"`
	Frequency            enums.Frequency           `gorm:"column:frequency;not null"`
	PreferredWeekday     enums.DeliveryWeekday     `gorm:"column:preferred_weekday;not null"`
	NextDeliveryDate     time.Time                 `gorm:"column:next_delivery_date;type:date;not null"`
	DeliveryAddress      string                    `gorm:"column:delivery_address;not null"`
	CustomerEmail        string                    `gorm:"column:customer_email;not null"`
	IsActive             bool                      `gorm:"column:is_active;not null"`
	StripeSubscriptionID *string                   `gorm:"column:stripe_subscription_id;uniqueIndex:ux_subscriptions_stripe_subscription"`
	StripeCustomerID     *string                   `gorm:"column:stripe_customer_id"`
	PriceID              *string                   `gorm:"column:price_id"`
	ExternalStatus       *enums.SubscriptionStatus `gorm:"column:external_status"`
	CurrentPeriodEnd     *time.Time                `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                      `gorm:"column:cancel_at_period_end;not null"`
	CanceledAt           *time.Time                `gorm:"column:canceled_at"`
	Items                []SubscriptionItem        `gorm:"foreignKey:SubscriptionID"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// HasExternalReference reports whether the billing provider owns this subscription.
func (s Subscription) HasExternalReference() bool {
	return s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// SubscriptionItem is one line of the basket delivered on every renewal.
type SubscriptionItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionID uuid.UUID         `gorm:"column:subscription_id;type:uuid;not null;index"`
	ProductType    enums.ProductType `gorm:"column:product_type;not null"`
	ProductID      string            `gorm:"column:product_id;not null"`
	Name           string            `gorm:"column:name;not null"`
	Quantity       int               `gorm:"column:quantity;not null"`
	UnitPriceCents int64             `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (i *SubscriptionItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
