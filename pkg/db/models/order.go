package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/enums"
)

// Order is a single delivery. Money is kept in euro cents.
type Order struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID         *uuid.UUID             `gorm:"column:company_id;type:uuid;index"`
	SubscriptionID    *uuid.UUID             `gorm:"column:subscription_id;type:uuid;index"`
	Status            enums.OrderStatus      `gorm:"column:status;not null"`
	SubtotalCents     int64                  `gorm:"column:subtotal_cents;not null"`
	DeliveryFeeCents  int64                  `gorm:"column:delivery_fee_cents;not null"`
	DiscountCents     int64                  `gorm:"column:discount_cents;not null"`
	TotalCents        int64                  `gorm:"column:total_cents;not null"`
	PromoCode         *string                `gorm:"column:promo_code"`
	PreferredWeekday  *enums.DeliveryWeekday `gorm:"column:preferred_weekday"`
	DeliveryDate      time.Time              `gorm:"column:delivery_date;type:date;not null"`
	DeliveryAddress   string                 `gorm:"column:delivery_address;not null"`
	CustomerEmail     string                 `gorm:"column:customer_email;not null"`
	CustomerPhone     *string                `gorm:"column:customer_phone"`
	DriverID          *string                `gorm:"column:driver_id"`
	DriverStatus      *enums.DriverStatus    `gorm:"column:driver_status"`
	ExternalSessionID *string                `gorm:"column:external_session_id;uniqueIndex:ux_orders_external_session"`
	ExternalInvoiceID *string                `gorm:"column:external_invoice_id;uniqueIndex:ux_orders_external_invoice"`
	LineItems         []OrderLineItem        `gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
